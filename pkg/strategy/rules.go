package strategy

import (
	"net/http"
	"strings"
	"time"
)

type Rules []Rule

// Rule assigns a default strategy and/or TTL to the URLs whose path starts with Prefix.
// A zero TTL or a nil Strategy leaves that attribute to the next matching rule.
type Rule struct {
	Prefix   string        `yaml:"prefix" json:"prefix"`
	Strategy *Strategy     `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

func strategyPtr(s Strategy) *Strategy {
	return &s
}

// DefaultRules is the URL-pattern table used when no rules are configured.
var DefaultRules = Rules{
	{Prefix: "/api/static", Strategy: strategyPtr(CacheFirst), TTL: time.Hour},
	{Prefix: "/api/config", Strategy: strategyPtr(CacheFirst), TTL: time.Hour},
	{Prefix: "/api/services", Strategy: strategyPtr(StaleWhileRevalidate), TTL: 15 * time.Minute},
	{Prefix: "/api/search", Strategy: strategyPtr(StaleWhileRevalidate), TTL: 5 * time.Minute},
	{Prefix: "/api/user", Strategy: strategyPtr(NetworkFirst), TTL: 2 * time.Minute},
	{Prefix: "/api/profile", Strategy: strategyPtr(NetworkFirst)},
}

// Strategy returns the strategy of the first rule matching the request, if any.
func (r Rules) Strategy(req *http.Request) (Strategy, bool) {
	for _, rule := range r {
		if rule.Strategy != nil && rule.matches(req) {
			return *rule.Strategy, true
		}
	}
	return CacheFirst, false
}

// TTL returns the TTL of the first rule matching the request, if any.
func (r Rules) TTL(req *http.Request) (time.Duration, bool) {
	for _, rule := range r {
		if rule.TTL > 0 && rule.matches(req) {
			return rule.TTL, true
		}
	}
	return 0, false
}

func (rule Rule) matches(req *http.Request) bool {
	return rule.Prefix == "" || strings.HasPrefix(req.URL.Path, rule.Prefix)
}
