package strategy

import (
	"fmt"
	"strings"
)

// Strategy is the policy governing how a request is satisfied.
type Strategy int

const (
	// Serve from cache if a live entry exists, otherwise fetch and admit.
	CacheFirst Strategy = iota
	// Never touch the network.
	CacheOnly
	// Never read the cache, but admit successful responses.
	NetworkOnly
	// Always fetch; fall back to a stored entry on failure.
	NetworkFirst
	// Serve from cache immediately and refresh the entry in the background.
	StaleWhileRevalidate
)

// All lists every strategy, in declaration order.
var All = []Strategy{CacheFirst, CacheOnly, NetworkOnly, NetworkFirst, StaleWhileRevalidate}

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case CacheOnly:
		return "cache-only"
	case NetworkOnly:
		return "network-only"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Parse returns the strategy with the given name.
// Names are compared case-insensitively.
func Parse(name string) (Strategy, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range All {
		if s.String() == name {
			return s, true
		}
	}
	return CacheFirst, false
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("unknown cache strategy: %q", text)
	}
	*s = parsed
	return nil
}
