package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// RequestMetrics tracks gateway queries.
//
// Metrics:
//   - conduit_queries_total: queries by capability and outcome
//   - conduit_query_duration_seconds: end-to-end query latency
//   - conduit_fallback_total: cascade resolutions by capability and outcome
type RequestMetrics struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	fallbackTotal *prometheus.CounterVec
}

// NewRequestMetrics creates and registers query metrics with the provided registry.
func NewRequestMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "queries_total",
				Help:      "Total number of gateway queries by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),

		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "query_duration_seconds",
				Help:      "Gateway query duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"capability"},
		),

		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "fallback_total",
				Help:      "Total number of fallback cascade resolutions (fresh, stale, unavailable)",
			},
			[]string{"capability", "outcome"},
		),
	}

	registry.MustRegister(rm.queriesTotal, rm.queryDuration, rm.fallbackTotal)
	return rm
}

// RecordQuery records a completed query.
func (rm *RequestMetrics) RecordQuery(capability, outcome string, duration time.Duration) {
	rm.queriesTotal.WithLabelValues(capability, outcome).Inc()
	rm.queryDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordFallback records a cascade resolution.
func (rm *RequestMetrics) RecordFallback(capability, outcome string) {
	rm.fallbackTotal.WithLabelValues(capability, outcome).Inc()
}
