package cache

import (
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero ttl", func(c *Config) { c.DefaultTTL = 0 }, false},
		{"negative size", func(c *Config) { c.MaxTotalSize = -1 }, false},
		{"zero entries", func(c *Config) { c.MaxEntries = 0 }, false},
		{"zero cleanup interval", func(c *Config) { c.CleanupInterval = 0 }, false},
		{"unknown eviction", func(c *Config) { c.Eviction = "mru" }, false},
		{"fifo", func(c *Config) { c.Eviction = EvictFIFO }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
			}
		})
	}
}

func TestConfigApply(t *testing.T) {
	ttl := time.Hour
	eviction := EvictLFU
	c := DefaultConfig().Apply(ConfigPatch{DefaultTTL: &ttl, Eviction: &eviction})

	assert.Equal(t, time.Hour, c.DefaultTTL)
	assert.Equal(t, EvictLFU, c.Eviction)
	assert.Equal(t, DefaultConfig().MaxEntries, c.MaxEntries)
}

func TestParseEviction(t *testing.T) {
	e, err := ParseEviction(" LFU ")
	assert.NoError(t, err)
	assert.Equal(t, EvictLFU, e)

	_, err = ParseEviction("random")
	assert.Error(t, err)
}
