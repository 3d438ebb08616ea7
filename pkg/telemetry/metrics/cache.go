package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// Cache freshness label values.
const (
	FreshnessFresh = "fresh"
	FreshnessStale = "stale"
)

// CacheMetrics tracks response cache performance.
//
// Metrics:
//   - conduit_cache_hits_total: hits by capability and freshness
//   - conduit_cache_misses_total: misses by capability
//   - conduit_cache_evictions_total: entries removed by the sweeper or capacity bound
type CacheMetrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    *prometheus.CounterVec
	evictionsTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"capability", "freshness"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"capability"},
		),

		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache evictions",
			},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.evictionsTotal)
	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit(capability string, fresh bool) {
	freshness := FreshnessStale
	if fresh {
		freshness = FreshnessFresh
	}
	cm.hitsTotal.WithLabelValues(capability, freshness).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss(capability string) {
	cm.missesTotal.WithLabelValues(capability).Inc()
}

// RecordEvictions records n evicted entries.
func (cm *CacheMetrics) RecordEvictions(n int) {
	cm.evictionsTotal.Add(float64(n))
}
