// Package cache implements the response store: a bounded, expiring map of
// request keys to response snapshots with tag and pattern invalidation.
package cache

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/rs/zerolog"
)

type removeReason int

const (
	removeReplaced removeReason = iota
	removeEvicted
	removeExpired
	removeInvalidated
)

// PutOptions control how a response is admitted.
type PutOptions struct {
	// Zero means the configured default TTL.
	TTL  time.Duration
	Tags []string
}

// Store holds cached responses. All methods are safe for concurrent use;
// every operation runs to completion under the store lock.
type Store struct {
	mu       sync.Mutex
	config   Config
	entries  map[string]*Entry
	size     int64
	counters counters
	// Metadata restored from the persister. Bodies are not persisted,
	// so these are never served.
	restored map[string]EntryMetadata

	resolver  *strategy.Resolver
	now       func() time.Time
	log       zerolog.Logger
	metrics   *storeMetrics
	persister Persister

	persistCh chan struct{}
	intervals chan time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a store with the given configuration and starts its
// background cleanup. Close must be called to stop it.
// With a persister, a valid persisted configuration takes precedence over
// config unless WithSuppliedConfig is given.
func New(config Config, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	s := &Store{
		config:    config,
		entries:   make(map[string]*Entry),
		counters:  newCounters(),
		restored:  make(map[string]EntryMetadata),
		resolver:  o.resolver,
		now:       o.now,
		persister: o.persister,
		persistCh: make(chan struct{}, 1),
		intervals: make(chan time.Duration, 1),
	}
	if o.logger != nil {
		s.log = o.logger.With().Str("component", "cache").Logger()
	} else {
		s.log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "cache").Logger()
	}
	if o.registerer != nil {
		m, err := newStoreMetrics(o.registerer, o.component)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if s.persister != nil {
		s.restore(o.keepConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.maintain(ctx, s.config.CleanupInterval)
	if s.persister != nil {
		s.wg.Add(1)
		go s.persistLoop(ctx)
	}

	s.log.Info().
		Dur("defaultTtl", s.config.DefaultTTL).
		Int64("maxTotalSize", s.config.MaxTotalSize).
		Int("maxEntries", s.config.MaxEntries).
		Str("eviction", string(s.config.Eviction)).
		Msg("Cache store ready")
	return s, nil
}

// Close stops background work and writes a final persistence snapshot.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if s.persister != nil {
			s.save(context.Background())
			err = s.persister.Close()
		}
	})
	return err
}

// Get returns a copy of the fresh entry for the request.
// An expired entry is removed and reported as a miss.
func (s *Store) Get(req *http.Request) (*Entry, bool) {
	key := s.resolver.Keyer.Key(req)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.recordMissLocked()
		return nil, false
	}
	if e.Expired(now) {
		s.removeLocked(key, removeExpired)
		s.recordMissLocked()
		return nil, false
	}
	s.touchLocked(e, now)
	return e.clone(), true
}

// GetStale returns a copy of the entry for the request even if it has expired.
// It is used as a fallback when the network is unavailable.
func (s *Store) GetStale(req *http.Request) (*Entry, bool) {
	key := s.resolver.Keyer.Key(req)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.recordMissLocked()
		return nil, false
	}
	s.touchLocked(e, now)
	return e.clone(), true
}

// Peek returns a copy of the entry for the request, expired or not, without
// touching it or counting a lookup.
func (s *Store) Peek(req *http.Request) (*Entry, bool) {
	key := s.resolver.Keyer.Key(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

func (s *Store) touchLocked(e *Entry, now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
	s.counters.hits++
	s.metrics.recordHit()
}

func (s *Store) recordMissLocked() {
	s.counters.misses++
	s.metrics.recordMiss()
}

// Put admits the response for the request. Responses that are not 2xx,
// larger than MaxEntrySize or larger than the whole budget are rejected.
// An existing entry under the same key is replaced.
// Reports whether the response was stored.
func (s *Store) Put(req *http.Request, res *serializer.Snapshot, opts PutOptions) bool {
	key := s.resolver.Keyer.Key(req)
	if res == nil || !res.Successful() {
		s.reject(key, "unsuccessful response")
		return false
	}
	size := res.Size()
	if size > MaxEntrySize {
		s.reject(key, "response exceeds entry size limit")
		return false
	}

	now := s.now()
	s.mu.Lock()
	if size > s.config.MaxTotalSize {
		s.mu.Unlock()
		s.reject(key, "response exceeds total size budget")
		return false
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if _, ok := s.entries[key]; ok {
		s.removeLocked(key, removeReplaced)
	}
	s.ensureSpaceLocked(size, 1)
	s.entries[key] = &Entry{
		Key:            key,
		Response:       res.Clone(),
		CreatedAt:      now,
		TTL:            ttl,
		Tags:           strategy.MergeTags(opts.Tags),
		Size:           size,
		LastAccessedAt: now,
	}
	s.size += size
	delete(s.restored, key)
	s.counters.admissions++
	s.metrics.recordAdmission()
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.log.Debug().Str("key", key).Int64("size", size).Dur("ttl", ttl).Msg("Stored response")
	s.schedulePersist()
	return true
}

// Reject records a response for the request that was refused before it
// could be passed to Put.
func (s *Store) Reject(req *http.Request, reason string) {
	s.reject(s.resolver.Keyer.Key(req), reason)
}

func (s *Store) reject(key, reason string) {
	s.mu.Lock()
	s.counters.rejections++
	s.mu.Unlock()
	s.metrics.recordRejection()
	s.log.Debug().Str("key", key).Str("reason", reason).Msg("Response not stored")
}

// removeLocked deletes the entry under key and updates the bookkeeping.
func (s *Store) removeLocked(key string, reason removeReason) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	s.size -= e.Size
	switch reason {
	case removeEvicted:
		s.counters.evictions++
		s.metrics.recordEviction()
	case removeExpired:
		s.counters.expirations++
		s.metrics.recordExpiration()
	case removeInvalidated:
		s.counters.invalidations++
		s.metrics.recordInvalidation()
	}
	s.updateGaugesLocked()
}

// InvalidateByPattern removes every entry whose key matches the pattern.
// Returns the number of entries removed.
func (s *Store) InvalidateByPattern(pattern *regexp.Regexp) int {
	s.mu.Lock()
	removed := 0
	for key := range s.entries {
		if pattern.MatchString(key) {
			s.removeLocked(key, removeInvalidated)
			removed++
		}
	}
	for key := range s.restored {
		if pattern.MatchString(key) {
			delete(s.restored, key)
		}
	}
	s.mu.Unlock()

	s.log.Info().Str("pattern", pattern.String()).Int("removed", removed).Msg("Invalidated by pattern")
	if removed > 0 {
		s.schedulePersist()
	}
	return removed
}

// InvalidateByTags removes every entry carrying at least one of the tags.
// Returns the number of entries removed.
func (s *Store) InvalidateByTags(tags ...string) int {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}

	s.mu.Lock()
	removed := 0
	for key, e := range s.entries {
		if e.hasAnyTag(set) {
			s.removeLocked(key, removeInvalidated)
			removed++
		}
	}
	for key, md := range s.restored {
		if hasAnyTag(md.Tags, set) {
			delete(s.restored, key)
		}
	}
	s.mu.Unlock()

	s.log.Info().Strs("tags", tags).Int("removed", removed).Msg("Invalidated by tags")
	if removed > 0 {
		s.schedulePersist()
	}
	return removed
}

// Clear removes all entries and resets the statistics.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.restored = make(map[string]EntryMetadata)
	s.size = 0
	s.counters = newCounters()
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.log.Info().Msg("Cache cleared")
	s.schedulePersist()
}

// Config returns the current configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// UpdateConfig merges the patch into the configuration. Shrunk budgets are
// enforced immediately and a changed cleanup interval restarts the schedule.
func (s *Store) UpdateConfig(patch ConfigPatch) (Config, error) {
	s.mu.Lock()
	next := s.config.Apply(patch)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Config{}, err
	}
	intervalChanged := next.CleanupInterval != s.config.CleanupInterval
	s.config = next
	s.ensureSpaceLocked(0, 0)
	s.mu.Unlock()

	if intervalChanged {
		s.reschedule(next.CleanupInterval)
	}
	s.log.Info().
		Dur("defaultTtl", next.DefaultTTL).
		Int64("maxTotalSize", next.MaxTotalSize).
		Int("maxEntries", next.MaxEntries).
		Dur("cleanupInterval", next.CleanupInterval).
		Str("eviction", string(next.Eviction)).
		Msg("Configuration updated")
	s.schedulePersist()
	return next, nil
}

// Cleanup removes expired entries and re-enforces the budgets.
// Returns the number of expired entries removed.
func (s *Store) Cleanup() int {
	now := s.now()

	s.mu.Lock()
	expired := 0
	for key, e := range s.entries {
		if e.Expired(now) {
			s.removeLocked(key, removeExpired)
			expired++
		}
	}
	s.ensureSpaceLocked(0, 0)
	s.counters.lastCleanupAt = now
	s.mu.Unlock()

	if expired > 0 {
		s.log.Debug().Int("expired", expired).Msg("Removed expired entries")
	}
	s.schedulePersist()
	return expired
}

// reschedule hands a new cleanup interval to the maintenance loop,
// replacing any interval not yet picked up.
func (s *Store) reschedule(d time.Duration) {
	for {
		select {
		case s.intervals <- d:
			return
		default:
		}
		select {
		case <-s.intervals:
		default:
		}
	}
}

func (s *Store) maintain(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.intervals:
			ticker.Reset(d)
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Stats returns a snapshot of the statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.snapshot(len(s.entries), s.size)
}

// RecordStrategy counts a request served with the given strategy.
func (s *Store) RecordStrategy(st strategy.Strategy) {
	s.mu.Lock()
	s.counters.strategies[st]++
	s.mu.Unlock()
	s.metrics.recordStrategy(st)
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the keys of all entries, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Restored returns the metadata loaded from the persister for entries that
// have not been stored again since.
func (s *Store) Restored() []EntryMetadata {
	s.mu.Lock()
	md := make([]EntryMetadata, 0, len(s.restored))
	for _, m := range s.restored {
		md = append(md, m)
	}
	s.mu.Unlock()
	sort.Slice(md, func(i, j int) bool { return md[i].Key < md[j].Key })
	return md
}

// ShouldCache reports whether the request is eligible for caching at all.
func (s *Store) ShouldCache(req *http.Request) bool {
	return strategy.ShouldCache(req)
}

// ResolveStrategy returns the strategy for the request.
func (s *Store) ResolveStrategy(req *http.Request) strategy.Strategy {
	return s.resolver.Strategy(req)
}

// Resolve returns key, strategy, TTL and tags for the request.
func (s *Store) Resolve(req *http.Request) strategy.Resolution {
	return s.resolver.Resolve(req)
}

// TimeToLive returns the remaining lifetime of the entry.
func (s *Store) TimeToLive(e *Entry) time.Duration {
	return e.TimeToLive(s.now())
}

// Now returns the current time according to the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) updateGaugesLocked() {
	s.metrics.updateSize(len(s.entries), s.size)
}
