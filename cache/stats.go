package cache

import (
	"time"

	"github.com/always-cache/request-cache/pkg/strategy"
)

// Stats is a snapshot of the store statistics.
// It is derived from the store state; the store is the only authority.
type Stats struct {
	TotalEntries  int       `json:"total_entries"`
	TotalSize     int64     `json:"total_size"`
	TotalRequests int64     `json:"total_requests"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	HitRate       float64   `json:"hit_rate_percent"`
	MissRate      float64   `json:"miss_rate_percent"`
	Admissions    int64     `json:"admissions"`
	Rejections    int64     `json:"rejections"`
	Evictions     int64     `json:"evictions"`
	Expirations   int64     `json:"expirations"`
	Invalidations int64     `json:"invalidations"`
	LastCleanupAt time.Time `json:"last_cleanup_at"`
	// Requests served per strategy, keyed by strategy name.
	Strategies map[string]int64 `json:"strategies"`
}

// counters are the authoritative statistics, guarded by the store mutex.
type counters struct {
	hits, misses  int64
	admissions    int64
	rejections    int64
	evictions     int64
	expirations   int64
	invalidations int64
	lastCleanupAt time.Time
	strategies    map[strategy.Strategy]int64
}

func newCounters() counters {
	return counters{strategies: make(map[strategy.Strategy]int64)}
}

func (c counters) snapshot(entries int, size int64) Stats {
	s := Stats{
		TotalEntries:  entries,
		TotalSize:     size,
		TotalRequests: c.hits + c.misses,
		Hits:          c.hits,
		Misses:        c.misses,
		Admissions:    c.admissions,
		Rejections:    c.rejections,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
		LastCleanupAt: c.lastCleanupAt,
		Strategies:    make(map[string]int64, len(c.strategies)),
	}
	if s.TotalRequests > 0 {
		s.HitRate = float64(c.hits) / float64(s.TotalRequests) * 100
		s.MissRate = float64(c.misses) / float64(s.TotalRequests) * 100
	}
	for st, n := range c.strategies {
		s.Strategies[st.String()] = n
	}
	return s
}

// restore loads counters from a persisted snapshot.
func restoreCounters(s Stats) counters {
	c := newCounters()
	c.hits = s.Hits
	c.misses = s.Misses
	c.admissions = s.Admissions
	c.rejections = s.Rejections
	c.evictions = s.Evictions
	c.expirations = s.Expirations
	c.invalidations = s.Invalidations
	c.lastCleanupAt = s.LastCleanupAt
	for name, n := range s.Strategies {
		if st, ok := strategy.Parse(name); ok {
			c.strategies[st] = n
		}
	}
	return c
}
