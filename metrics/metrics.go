// Package metrics exposes Prometheus counters for cache and chunker activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chunkcache"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheErrors *prometheus.CounterVec
	Chunks      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cached calls served from the backend.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cached calls that invoked the wrapped operation.",
		}, []string{"cache"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Backend or codec failures that were degraded to a miss.",
		}, []string{"cache", "op"}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunker",
			Name:      "chunks_total",
			Help:      "Chunks emitted by break reason.",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{m.CacheHits, m.CacheMisses, m.CacheErrors, m.Chunks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Hit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) Miss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) Error(cache, op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(cache, op).Inc()
}

func (m *Metrics) Chunk(reason string) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues(reason).Inc()
}
