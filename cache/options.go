package cache

import (
	"time"

	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger     *zerolog.Logger
	now        func() time.Time
	resolver   *strategy.Resolver
	persister  Persister
	registerer prometheus.Registerer
	component  string
	keepConfig bool
}

// WithLogger sets the logger used by the store.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithResolver sets the strategy resolver consulted by ShouldCache and ResolveStrategy.
func WithResolver(r *strategy.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithPersister enables persistence of entry metadata, statistics and configuration.
func WithPersister(p Persister) Option {
	return func(o *options) {
		o.persister = p
	}
}

// WithSuppliedConfig makes the configuration passed to New win over one
// restored from the persister. Without it, a valid persisted configuration
// replaces the supplied one, so runtime updates survive restarts.
func WithSuppliedConfig() Option {
	return func(o *options) {
		o.keepConfig = true
	}
}

// WithMetrics exports store statistics as Prometheus metrics.
// If registerer is nil, this option is ignored.
func WithMetrics(registerer prometheus.Registerer, component string) Option {
	return func(o *options) {
		if registerer != nil {
			o.registerer = registerer
			o.component = component
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.resolver == nil {
		o.resolver = strategy.NewResolver(nil)
	}
	if o.component == "" {
		o.component = "default"
	}
	return o
}
