package cache

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/jmgilman/go/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersister struct {
	mu      sync.Mutex
	state   *PersistedState
	saves   int
	loadErr error
}

func (p *memoryPersister) Load(ctx context.Context) (*PersistedState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.loadErr
}

func (p *memoryPersister) Save(ctx context.Context, state *PersistedState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.saves++
	return nil
}

func (p *memoryPersister) Close() error { return nil }

func (p *memoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

func TestPersistOnChange(t *testing.T) {
	p := &memoryPersister{}
	s, _ := newTestStore(t, DefaultConfig(), WithPersister(p))

	s.Put(request("/a"), snapshot(http.StatusOK, "A"), PutOptions{})
	assert.Eventually(t, func() bool { return p.Saves() > 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseWritesFinalState(t *testing.T) {
	p := &memoryPersister{}
	s, err := New(DefaultConfig(), WithLogger(zerolog.Nop()), WithPersister(p))
	require.NoError(t, err)
	s.Put(request("/a"), snapshot(http.StatusOK, "A"), PutOptions{Tags: []string{"x"}})
	s.Get(request("/a"))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is harmless")

	require.NotNil(t, p.state)
	require.Len(t, p.state.Metadata, 1)
	assert.Equal(t, []string{"x"}, p.state.Metadata[0].Tags)
	assert.Equal(t, int64(1), p.state.Metadata[0].AccessCount)
	assert.Equal(t, int64(1), p.state.Stats.Hits)
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	p := &memoryPersister{loadErr: errors.New(errors.CodeDatabase, "broken")}
	s, _ := newTestStore(t, DefaultConfig(), WithPersister(p))

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Restored())
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestRestoreIgnoresInvalidConfig(t *testing.T) {
	p := &memoryPersister{state: &PersistedState{
		Config: Config{MaxEntries: -1},
		Stats:  Stats{Hits: 3, Misses: 1},
	}}
	s, _ := newTestStore(t, DefaultConfig(), WithPersister(p))

	assert.Equal(t, DefaultConfig(), s.Config())
	assert.Equal(t, int64(4), s.Stats().TotalRequests)
}

func TestRestoreConfigPrecedence(t *testing.T) {
	persisted := DefaultConfig()
	persisted.MaxEntries = 42
	supplied := DefaultConfig()
	supplied.MaxEntries = 7

	var logs bytes.Buffer
	p := &memoryPersister{state: &PersistedState{Config: persisted}}
	s, err := New(supplied, WithLogger(zerolog.New(&logs)), WithPersister(p))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, persisted, s.Config())
	assert.Contains(t, logs.String(), "Persisted configuration replaces the supplied one")

	p = &memoryPersister{state: &PersistedState{Config: persisted}}
	s, err = New(supplied, WithLogger(zerolog.Nop()), WithPersister(p), WithSuppliedConfig())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, supplied, s.Config())
}

func TestInvalidateForgetsRestoredMetadata(t *testing.T) {
	p := &memoryPersister{state: &PersistedState{
		Config: DefaultConfig(),
		Metadata: []EntryMetadata{
			{Key: "GET:http://example.com/api/services/1", Tags: []string{"services", "service-1"}},
			{Key: "GET:http://example.com/api/search", Tags: []string{"search"}},
			{Key: "GET:http://example.com/api/user", Tags: []string{"user"}},
		},
	}}
	s, _ := newTestStore(t, DefaultConfig(), WithPersister(p))
	require.Len(t, s.Restored(), 3)

	assert.Equal(t, 0, s.InvalidateByTags("service-1"))
	restored := s.Restored()
	require.Len(t, restored, 2)
	for _, md := range restored {
		assert.NotContains(t, md.Tags, "services")
	}

	s.InvalidateByPattern(regexp.MustCompile(`/api/search`))
	restored = s.Restored()
	require.Len(t, restored, 1)
	assert.Equal(t, []string{"user"}, restored[0].Tags)
}

func testRestart(t *testing.T, open func() Persister) {
	config := DefaultConfig()
	config.MaxEntries = 50
	config.Eviction = EvictLFU

	first, err := New(config, WithLogger(zerolog.Nop()), WithPersister(open()))
	require.NoError(t, err)
	first.Put(request("/api/services/1"), snapshot(http.StatusOK, "one"), PutOptions{Tags: []string{"services"}})
	first.Put(request("/api/search"), snapshot(http.StatusOK, "found"), PutOptions{TTL: time.Minute})
	first.Get(request("/api/services/1"))
	first.Get(request("/missing"))
	first.RecordStrategy(strategy.StaleWhileRevalidate)
	require.NoError(t, first.Close())

	second, err := New(DefaultConfig(), WithLogger(zerolog.Nop()), WithPersister(open()))
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	assert.Equal(t, config, second.Config())

	stats := second.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Strategies["stale-while-revalidate"])
	assert.Equal(t, 0, stats.TotalEntries)

	restored := second.Restored()
	require.Len(t, restored, 2)
	assert.Equal(t, second.resolver.Keyer.Key(request("/api/search")), restored[0].Key)
	assert.Equal(t, time.Minute, restored[0].TTL)
	assert.Equal(t, []string{"services"}, restored[1].Tags)
	assert.Equal(t, int64(1), restored[1].AccessCount)
	assert.Equal(t, http.StatusOK, restored[1].StatusCode)

	// bodies are not persisted, so restored entries are never served
	_, ok := second.Get(request("/api/search"))
	assert.False(t, ok)

	// storing again supersedes the restored metadata
	second.Put(request("/api/search"), snapshot(http.StatusOK, "again"), PutOptions{})
	assert.Len(t, second.Restored(), 1)
}

func TestSQLiteRestart(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cache.db")
	testRestart(t, func() Persister {
		p, err := NewSQLitePersister(filename)
		require.NoError(t, err)
		return p
	})
}

func TestSQLiteLoadEmpty(t *testing.T) {
	p, err := NewSQLitePersister(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer p.Close()

	state, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestRedisRestart(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	key := "request-cache:test:" + t.Name()
	testRestart(t, func() Persister {
		p, err := NewRedisPersisterURL(url, key)
		require.NoError(t, err)
		return p
	})

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()
	client.Del(context.Background(), key)
}

func TestRedisPersisterInvalidURL(t *testing.T) {
	_, err := NewRedisPersisterURL("not a url", "")
	assert.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}
