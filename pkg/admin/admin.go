// Package admin exposes the cache store over HTTP for inspection and invalidation.
//
//	GET    /stats
//	GET    /entries
//	GET    /config
//	PATCH  /config             {"max_entries": 500, "default_ttl": "5m"}
//	POST   /invalidate?pattern=/api/users/
//	POST   /invalidate/tags?tag=services&tag=search
//	POST   /clear
//	GET    /metrics
package admin

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/always-cache/request-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Config struct {
	Store *cache.Store
	// Served on /metrics if set.
	Gatherer prometheus.Gatherer
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type server struct {
	store *cache.Store
	log   zerolog.Logger
}

// NewRouter returns the admin API handler.
func NewRouter(config Config) http.Handler {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	s := &server{
		store: config.Store,
		log:   logger.With().Str("component", "admin").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/stats", s.stats)
	r.Get("/entries", s.entries)
	r.Get("/config", s.config)
	r.Patch("/config", s.updateConfig)
	r.Post("/invalidate", s.invalidatePattern)
	r.Post("/invalidate/tags", s.invalidateTags)
	r.Post("/clear", s.clear)
	if config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

type entriesResponse struct {
	Keys []string `json:"keys"`
	// Known from a previous run but without a body.
	Restored []cache.EntryMetadata `json:"restored"`
}

func (s *server) entries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, entriesResponse{
		Keys:     s.store.Keys(),
		Restored: s.store.Restored(),
	})
}

// configDocument is the JSON form of the configuration, with durations as strings.
type configDocument struct {
	DefaultTTL      *string         `json:"default_ttl,omitempty"`
	MaxTotalSize    *int64          `json:"max_total_size,omitempty"`
	MaxEntries      *int            `json:"max_entries,omitempty"`
	CleanupInterval *string         `json:"cleanup_interval,omitempty"`
	Eviction        *cache.Eviction `json:"eviction,omitempty"`
}

func toDocument(c cache.Config) configDocument {
	ttl := c.DefaultTTL.String()
	interval := c.CleanupInterval.String()
	return configDocument{
		DefaultTTL:      &ttl,
		MaxTotalSize:    &c.MaxTotalSize,
		MaxEntries:      &c.MaxEntries,
		CleanupInterval: &interval,
		Eviction:        &c.Eviction,
	}
}

func (d configDocument) patch() (cache.ConfigPatch, error) {
	p := cache.ConfigPatch{
		MaxTotalSize: d.MaxTotalSize,
		MaxEntries:   d.MaxEntries,
		Eviction:     d.Eviction,
	}
	var err error
	if p.DefaultTTL, err = parseDuration(d.DefaultTTL); err != nil {
		return p, err
	}
	if p.CleanupInterval, err = parseDuration(d.CleanupInterval); err != nil {
		return p, err
	}
	return p, nil
}

func parseDuration(s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidInput, "invalid duration %q", *s)
	}
	return &d, nil
}

func (s *server) config(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toDocument(s.store.Config()))
}

func (s *server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var doc configDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "invalid config patch"))
		return
	}
	patch, err := doc.patch()
	if err != nil {
		s.writeError(w, err)
		return
	}
	config, err := s.store.UpdateConfig(patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDocument(config))
}

type removedResponse struct {
	Removed int `json:"removed"`
}

func (s *server) invalidatePattern(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("pattern")
	if expr == "" {
		s.writeError(w, errors.New(errors.CodeInvalidInput, "pattern is required"))
		return
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		s.writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "invalid pattern"))
		return
	}
	s.writeJSON(w, http.StatusOK, removedResponse{Removed: s.store.InvalidateByPattern(pattern)})
}

func (s *server) invalidateTags(w http.ResponseWriter, r *http.Request) {
	tags := r.URL.Query()["tag"]
	if len(tags) == 0 {
		s.writeError(w, errors.New(errors.CodeInvalidInput, "at least one tag is required"))
		return
	}
	s.writeJSON(w, http.StatusOK, removedResponse{Removed: s.store.InvalidateByTags(tags...)})
}

func (s *server) clear(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Could not write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeInvalidConfig:
		status = http.StatusBadRequest
	}
	s.log.Debug().Err(err).Msg("Admin request failed")
	s.writeJSON(w, status, errors.ToJSON(err))
}
