// Package strategy maps outbound requests to a cache serving strategy,
// a time-to-live and a set of invalidation tags.
//
// Resolution is a pure function of the request: explicit override headers win,
// then the URL-pattern rules apply, and cache-first is the fallback.
package strategy

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	cachekey "github.com/always-cache/request-cache/pkg/cache-key"
	"github.com/always-cache/request-cache/rfc9111"
)

// Request headers recognized by the resolver.
const (
	HeaderStrategy = "X-Cache-Strategy"
	HeaderTTL      = "X-Cache-TTL"
	HeaderTags     = "X-Cache-Tags"
	HeaderNoCache  = "X-No-Cache"
)

// authPath matches authentication endpoints, which are never cached.
var authPath = regexp.MustCompile(`(?i)(^|/)(auth|login|logout|oauth|token)(/|$)`)

// Resolution is the outcome of resolving a request.
type Resolution struct {
	Key      string
	Strategy Strategy
	// TTL for admitted responses; zero means the store default applies.
	TTL  time.Duration
	Tags []string
	// Cacheable is false when the request must bypass the cache entirely.
	Cacheable bool
}

type Resolver struct {
	Keyer cachekey.CacheKeyer
	Rules Rules
}

// NewResolver creates a resolver with the given rules.
// If no rules are given, DefaultRules are used.
func NewResolver(rules Rules) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Resolver{
		Keyer: cachekey.NewCacheKeyer(),
		Rules: rules,
	}
}

// Resolve computes key, strategy, TTL and tags for the request.
func (r *Resolver) Resolve(req *http.Request) Resolution {
	return Resolution{
		Key:       r.Keyer.Key(req),
		Strategy:  r.Strategy(req),
		TTL:       r.TTL(req),
		Tags:      r.Tags(req),
		Cacheable: ShouldCache(req),
	}
}

// Strategy returns the strategy for the request.
// An X-Cache-Strategy header naming a known strategy wins over the rules.
func (r *Resolver) Strategy(req *http.Request) Strategy {
	if s, ok := Parse(req.Header.Get(HeaderStrategy)); ok {
		return s
	}
	if s, ok := r.Rules.Strategy(req); ok {
		return s
	}
	return CacheFirst
}

// TTL returns the TTL for the request, in whole seconds when overridden by X-Cache-TTL.
func (r *Resolver) TTL(req *http.Request) time.Duration {
	if v := req.Header.Get(HeaderTTL); v != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	ttl, _ := r.Rules.TTL(req)
	return ttl
}

// Tags returns X-Cache-Tags merged with the tags inferred from the URL.
func (r *Resolver) Tags(req *http.Request) []string {
	return MergeTags(ParseTags(req.Header.Get(HeaderTags)), InferTags(req))
}

// ShouldCache reports whether the request may be served from or admitted into the cache.
// Only GET and HEAD are cacheable, no-cache directives and authentication endpoints opt out.
func ShouldCache(req *http.Request) bool {
	switch req.Method {
	case "", http.MethodGet, http.MethodHead:
	default:
		return false
	}
	if _, ok := req.Header[http.CanonicalHeaderKey(HeaderNoCache)]; ok {
		return false
	}
	if cc := rfc9111.RequestCacheControl(req.Header); cc.NoCache() || cc.NoStore() {
		return false
	}
	return !authPath.MatchString(req.URL.Path)
}
