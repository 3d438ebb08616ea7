package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// rateLimitWaitBuckets cover waits up to the default max wait and a bit past it.
var rateLimitWaitBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// RateLimitMetrics tracks token bucket pressure.
//
// Metrics:
//   - conduit_ratelimit_rejections_total: calls refused because the wait exceeded the bound
//   - conduit_ratelimit_wait_seconds: time spent waiting for a token
type RateLimitMetrics struct {
	rejections *prometheus.CounterVec
	wait       *prometheus.HistogramVec
}

// NewRateLimitMetrics creates and registers limiter metrics with the provided registry.
func NewRateLimitMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *RateLimitMetrics {
	rm := &RateLimitMetrics{
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "ratelimit_rejections_total",
				Help:      "Total number of calls refused by a provider rate limiter",
			},
			[]string{"provider"},
		),

		wait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "ratelimit_wait_seconds",
				Help:      "Time spent waiting for a rate limit token in seconds",
				Buckets:   rateLimitWaitBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(rm.rejections, rm.wait)
	return rm
}

// RecordRejection records a refused call.
func (rm *RateLimitMetrics) RecordRejection(provider string) {
	rm.rejections.WithLabelValues(provider).Inc()
}

// RecordWait records a wait.
func (rm *RateLimitMetrics) RecordWait(provider string, wait time.Duration) {
	rm.wait.WithLabelValues(provider).Observe(wait.Seconds())
}
