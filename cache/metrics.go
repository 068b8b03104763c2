package cache

import (
	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics mirrors the store statistics as Prometheus metrics.
// A nil *storeMetrics is valid and records nothing.
type storeMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	admissions    prometheus.Counter
	rejections    prometheus.Counter
	evictions     prometheus.Counter
	expirations   prometheus.Counter
	invalidations prometheus.Counter
	strategies    *prometheus.CounterVec

	entries prometheus.Gauge
	bytes   prometheus.Gauge
}

func newStoreMetrics(registerer prometheus.Registerer, component string) (*storeMetrics, error) {
	labels := prometheus.Labels{"component": component}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "request_cache",
			Subsystem:   "store",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "request_cache",
			Subsystem:   "store",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &storeMetrics{
		hits:          counter("hits_total", "Total number of cache hits"),
		misses:        counter("misses_total", "Total number of cache misses"),
		admissions:    counter("admissions_total", "Total number of stored responses"),
		rejections:    counter("rejections_total", "Total number of responses refused for storage"),
		evictions:     counter("evictions_total", "Total number of entries evicted to stay within budget"),
		expirations:   counter("expirations_total", "Total number of expired entries removed"),
		invalidations: counter("invalidations_total", "Total number of entries removed by invalidation"),
		strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "request_cache",
			Subsystem:   "store",
			Name:        "requests_total",
			ConstLabels: labels,
			Help:        "Total number of requests served, by strategy",
		}, []string{"strategy"}),
		entries: gauge("entries", "Current number of entries"),
		bytes:   gauge("size_bytes", "Current summed size of all entries in bytes"),
	}

	for _, c := range []prometheus.Collector{
		m.hits, m.misses, m.admissions, m.rejections, m.evictions,
		m.expirations, m.invalidations, m.strategies, m.entries, m.bytes,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *storeMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *storeMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *storeMetrics) recordAdmission() {
	if m != nil {
		m.admissions.Inc()
	}
}

func (m *storeMetrics) recordRejection() {
	if m != nil {
		m.rejections.Inc()
	}
}

func (m *storeMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *storeMetrics) recordExpiration() {
	if m != nil {
		m.expirations.Inc()
	}
}

func (m *storeMetrics) recordInvalidation() {
	if m != nil {
		m.invalidations.Inc()
	}
}

func (m *storeMetrics) recordStrategy(s strategy.Strategy) {
	if m != nil {
		m.strategies.WithLabelValues(s.String()).Inc()
	}
}

func (m *storeMetrics) updateSize(entries int, bytes int64) {
	if m != nil {
		m.entries.Set(float64(entries))
		m.bytes.Set(float64(bytes))
	}
}
