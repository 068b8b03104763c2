package cache

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jmgilman/go/errors"
)

const persistTimeout = 5 * time.Second

// Persister saves and loads the store state between runs.
// Load returns a nil state if nothing was saved yet.
type Persister interface {
	Load(ctx context.Context) (*PersistedState, error)
	Save(ctx context.Context, state *PersistedState) error
	Close() error
}

// PersistedState is the document written by a Persister.
// Response bodies are not part of it.
type PersistedState struct {
	Metadata []EntryMetadata `json:"metadata"`
	Stats    Stats           `json:"stats"`
	Config   Config          `json:"config"`
	SavedAt  time.Time       `json:"saved_at"`
}

func encodeState(state *PersistedState) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "could not encode cache state")
	}
	return b, nil
}

func decodeState(b []byte) (*PersistedState, error) {
	var state PersistedState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not decode cache state")
	}
	return &state, nil
}

// State returns the current persistable state.
func (s *Store) State() *PersistedState {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state := &PersistedState{
		Metadata: make([]EntryMetadata, 0, len(s.entries)),
		Stats:    s.counters.snapshot(len(s.entries), s.size),
		Config:   s.config,
		SavedAt:  now,
	}
	for _, e := range s.entries {
		state.Metadata = append(state.Metadata, e.metadata())
	}
	sort.Slice(state.Metadata, func(i, j int) bool { return state.Metadata[i].Key < state.Metadata[j].Key })
	return state
}

// restore applies a previously saved state. Failures are logged and the
// store starts empty.
func (s *Store) restore(keepConfig bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	state, err := s.persister.Load(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Could not load persisted cache state")
		return
	}
	if state == nil {
		return
	}
	switch err := state.Config.Validate(); {
	case err != nil:
		s.log.Warn().Err(err).Msg("Ignoring invalid persisted configuration")
	case keepConfig:
		if state.Config != s.config {
			s.log.Info().Msg("Keeping supplied configuration, persisted one is discarded")
		}
	case state.Config != s.config:
		s.log.Info().
			Dur("defaultTtl", state.Config.DefaultTTL).
			Int64("maxTotalSize", state.Config.MaxTotalSize).
			Int("maxEntries", state.Config.MaxEntries).
			Dur("cleanupInterval", state.Config.CleanupInterval).
			Str("eviction", string(state.Config.Eviction)).
			Msg("Persisted configuration replaces the supplied one")
		s.config = state.Config
	}
	s.counters = restoreCounters(state.Stats)
	for _, md := range state.Metadata {
		s.restored[md.Key] = md
	}
	s.log.Info().
		Int("entries", len(state.Metadata)).
		Time("savedAt", state.SavedAt).
		Msg("Restored cache state")
}

func (s *Store) schedulePersist() {
	if s.persister == nil {
		return
	}
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.persistCh:
			s.save(ctx)
		}
	}
}

func (s *Store) save(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.State()); err != nil {
		s.log.Error().Err(err).Msg("Could not persist cache state")
	}
}
