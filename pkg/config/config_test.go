package config

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/always-cache/request-cache/cache"
	"github.com/always-cache/request-cache/pkg/strategy"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestLoad(t *testing.T) {
	filename := writeConfig(t, `
origin: https://api.example.com
port: 9090
cache:
  defaultTtl: 5m
  eviction: fifo
rules:
  - prefix: /api/news
    strategy: network-first
    ttl: 30s
persistence:
  backend: memory-less
`)
	_, err := Load(filename)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	filename = writeConfig(t, `
origin: https://api.example.com
port: 9090
cache:
  defaultTtl: 5m
  eviction: fifo
rules:
  - prefix: /api/news
    strategy: network-first
    ttl: 30s
transform:
  - prefix: /api/static
    default: max-age=3600
persistence:
  backend: none
admin:
  port: 0
`)
	config, err := Load(filename)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", config.Origin)
	assert.Equal(t, 9090, config.Port)
	assert.Equal(t, 5*time.Minute, config.Cache.DefaultTTL)
	assert.Equal(t, cache.EvictFIFO, config.Cache.Eviction)
	assert.Equal(t, cache.DefaultConfig().MaxEntries, config.Cache.MaxEntries, "unset values keep their default")
	assert.Equal(t, 0, config.Admin.Port)

	require.Len(t, config.Rules, 1)
	req := httptest.NewRequest("GET", "http://example.com/api/news/1", nil)
	s, ok := config.Rules.Strategy(req)
	assert.True(t, ok)
	assert.Equal(t, strategy.NetworkFirst, s)

	require.Len(t, config.Transform, 1)
	assert.Equal(t, "max-age=3600", config.Transform[0].Default)

	p, err := config.OpenPersister()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())

	c.Persistence = Persistence{Backend: BackendRedis}
	assert.Error(t, c.Validate())

	c = Default()
	c.Admin.Port = c.Port
	assert.Error(t, c.Validate())

	c = Default()
	c.Rules = strategy.Rules{{Prefix: "/x"}}
	assert.Error(t, c.Validate())

	c = Default()
	c.Cache.MaxEntries = -5
	assert.Error(t, c.Validate())
}

func TestOpenSQLitePersister(t *testing.T) {
	c := Default()
	c.Persistence.File = filepath.Join(t.TempDir(), "cache.db")

	p, err := c.OpenPersister()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Close())
}
