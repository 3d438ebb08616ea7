package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// ProviderMetrics tracks upstream attempts.
//
// Metrics:
//   - conduit_provider_requests_total: attempts by provider, capability and status
//   - conduit_provider_request_duration_seconds: attempt latency
//   - conduit_provider_errors_total: failed attempts by error category
//   - conduit_provider_retries_total: retried attempts
type ProviderMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of upstream attempts by provider, capability and status",
			},
			[]string{"provider", "capability", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Upstream attempt latency in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "capability"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of failed upstream attempts by error category",
			},
			[]string{"provider", "category"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_retries_total",
				Help:      "Total number of retried upstream attempts",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.requests, pm.duration, pm.errors, pm.retries)
	return pm
}

// RecordRequest records one attempt.
func (pm *ProviderMetrics) RecordRequest(provider, capability, status string, duration time.Duration) {
	pm.requests.WithLabelValues(provider, capability, status).Inc()
	pm.duration.WithLabelValues(provider, capability).Observe(duration.Seconds())
}

// RecordError records a failed attempt.
func (pm *ProviderMetrics) RecordError(provider, category string) {
	pm.errors.WithLabelValues(provider, category).Inc()
}

// RecordRetry records a retry.
func (pm *ProviderMetrics) RecordRetry(provider string) {
	pm.retries.WithLabelValues(provider).Inc()
}
