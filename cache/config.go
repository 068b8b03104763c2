package cache

import (
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
)

// MaxEntrySize is the largest response, in bytes, the store admits.
const MaxEntrySize int64 = 10 << 20

// Eviction selects the order in which entries are evicted under budget pressure.
type Eviction string

const (
	// Least recently accessed first.
	EvictLRU Eviction = "lru"
	// Least frequently accessed first.
	EvictLFU Eviction = "lfu"
	// Oldest admission first.
	EvictFIFO Eviction = "fifo"
)

// Valid reports whether e names a known eviction strategy.
func (e Eviction) Valid() bool {
	switch e {
	case EvictLRU, EvictLFU, EvictFIFO:
		return true
	}
	return false
}

// ParseEviction returns the eviction strategy with the given name.
func ParseEviction(name string) (Eviction, error) {
	e := Eviction(strings.ToLower(strings.TrimSpace(name)))
	if !e.Valid() {
		return "", errors.Newf(errors.CodeInvalidConfig, "unknown eviction strategy: %q", name)
	}
	return e, nil
}

type Config struct {
	// TTL for admitted responses when none is given.
	DefaultTTL time.Duration `json:"default_ttl" yaml:"defaultTtl"`
	// Budget for the summed size of all entries, in bytes.
	MaxTotalSize int64 `json:"max_total_size" yaml:"maxTotalSize"`
	// Budget for the number of entries.
	MaxEntries int `json:"max_entries" yaml:"maxEntries"`
	// How often expired entries are swept.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanupInterval"`
	Eviction        Eviction      `json:"eviction" yaml:"eviction"`
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      10 * time.Minute,
		MaxTotalSize:    50 << 20,
		MaxEntries:      1000,
		CleanupInterval: time.Minute,
		Eviction:        EvictLRU,
	}
}

// Validate checks that every budget is positive and the eviction strategy is known.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "default ttl must be positive, got %v", c.DefaultTTL)
	}
	if c.MaxTotalSize <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "max total size must be positive, got %d", c.MaxTotalSize)
	}
	if c.MaxEntries <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "max entries must be positive, got %d", c.MaxEntries)
	}
	if c.CleanupInterval <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "cleanup interval must be positive, got %v", c.CleanupInterval)
	}
	if !c.Eviction.Valid() {
		return errors.Newf(errors.CodeInvalidConfig, "unknown eviction strategy: %q", c.Eviction)
	}
	return nil
}

// ConfigPatch is a partial configuration update. Nil fields are left unchanged.
type ConfigPatch struct {
	DefaultTTL      *time.Duration `json:"default_ttl,omitempty"`
	MaxTotalSize    *int64         `json:"max_total_size,omitempty"`
	MaxEntries      *int           `json:"max_entries,omitempty"`
	CleanupInterval *time.Duration `json:"cleanup_interval,omitempty"`
	Eviction        *Eviction      `json:"eviction,omitempty"`
}

// Apply returns a copy of c with the patch merged in.
func (c Config) Apply(p ConfigPatch) Config {
	if p.DefaultTTL != nil {
		c.DefaultTTL = *p.DefaultTTL
	}
	if p.MaxTotalSize != nil {
		c.MaxTotalSize = *p.MaxTotalSize
	}
	if p.MaxEntries != nil {
		c.MaxEntries = *p.MaxEntries
	}
	if p.CleanupInterval != nil {
		c.CleanupInterval = *p.CleanupInterval
	}
	if p.Eviction != nil {
		c.Eviction = *p.Eviction
	}
	return c
}
