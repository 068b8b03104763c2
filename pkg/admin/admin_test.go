package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/always-cache/request-cache/cache"
	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T) (*cache.Store, http.Handler) {
	t.Helper()
	registry := prometheus.NewRegistry()
	store, err := cache.New(cache.DefaultConfig(),
		cache.WithLogger(zerolog.Nop()),
		cache.WithMetrics(registry, "admin-test"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.Nop()
	return store, NewRouter(Config{Store: store, Gatherer: registry, Logger: &logger})
}

func put(t *testing.T, store *cache.Store, path string, tags ...string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
	ok := store.Put(req, &serializer.Snapshot{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       []byte(path),
		ReceivedAt: time.Now(),
	}, cache.PutOptions{Tags: tags})
	require.True(t, ok)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStats(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/a")

	w := do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, int64(1), stats.Admissions)
}

func TestEntries(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/a")
	put(t, store, "/b")

	w := do(t, h, http.MethodGet, "/entries", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res entriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Keys, 2)
	assert.Empty(t, res.Restored)
}

func TestConfig(t *testing.T) {
	_, h := testSetup(t)

	w := do(t, h, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"default_ttl": "10m0s",
		"max_total_size": 52428800,
		"max_entries": 1000,
		"cleanup_interval": "1m0s",
		"eviction": "lru"
	}`, w.Body.String())
}

func TestUpdateConfig(t *testing.T) {
	store, h := testSetup(t)

	w := do(t, h, http.MethodPatch, "/config", `{"default_ttl": "5m", "max_entries": 10, "eviction": "lfu"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	config := store.Config()
	assert.Equal(t, 5*time.Minute, config.DefaultTTL)
	assert.Equal(t, 10, config.MaxEntries)
	assert.Equal(t, cache.EvictLFU, config.Eviction)
	assert.Equal(t, int64(50<<20), config.MaxTotalSize)
}

func TestUpdateConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		code errors.ErrorCode
	}{
		{"malformed", `{`, errors.CodeInvalidInput},
		{"bad duration", `{"default_ttl": "soon"}`, errors.CodeInvalidInput},
		{"zero entries", `{"max_entries": 0}`, errors.CodeInvalidConfig},
		{"unknown eviction", `{"eviction": "random"}`, errors.CodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, h := testSetup(t)
			before := store.Config()

			w := do(t, h, http.MethodPatch, "/config", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var res errors.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, string(tt.code), res.Code)
			assert.Equal(t, before, store.Config())
		})
	}
}

func TestInvalidatePattern(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/api/users/1")
	put(t, store, "/api/users/2")
	put(t, store, "/api/posts/1")

	w := do(t, h, http.MethodPost, "/invalidate?pattern=/api/users/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": 2}`, w.Body.String())
	assert.Equal(t, 1, store.Len())
}

func TestInvalidatePatternInvalid(t *testing.T) {
	_, h := testSetup(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/invalidate", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/invalidate?pattern=%28", "").Code)
}

func TestInvalidateTags(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/a", "services")
	put(t, store, "/b", "search")
	put(t, store, "/c", "other")

	w := do(t, h, http.MethodPost, "/invalidate/tags?tag=services&tag=search", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": 2}`, w.Body.String())
	assert.Equal(t, 1, store.Len())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/invalidate/tags", "").Code)
}

func TestClear(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/a")
	put(t, store, "/b")

	w := do(t, h, http.MethodPost, "/clear", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, store.Len())
}

func TestMetrics(t *testing.T) {
	store, h := testSetup(t)
	put(t, store, "/a")

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `request_cache_store_admissions_total{component="admin-test"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	_, h := testSetup(t)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/stats", "").Code)
}
