package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/config"
)

// otherLabel replaces label values past the cardinality limit.
const otherLabel = "other"

// DefaultMaxCardinality bounds the capability label of query metrics.
const DefaultMaxCardinality = 1000

// Collector owns the Prometheus metrics of the gateway and implements the
// observer interfaces of the providers, ratelimit, breaker, cache,
// fallback and gateway packages.
//
// A disabled collector accepts every call and records nothing.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	providerMetrics  *ProviderMetrics
	circuitMetrics   *CircuitMetrics
	rateLimitMetrics *RateLimitMetrics
	cacheMetrics     *CacheMetrics
	requestMetrics   *RequestMetrics

	capabilities *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with
// registry. A nil registry gets a fresh one.
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	return &Collector{
		enabled:          cfg.Enabled == nil || *cfg.Enabled,
		registry:         registry,
		providerMetrics:  NewProviderMetrics(cfg, registry),
		circuitMetrics:   NewCircuitMetrics(cfg, registry),
		rateLimitMetrics: NewRateLimitMetrics(cfg, registry),
		cacheMetrics:     NewCacheMetrics(cfg, registry),
		requestMetrics:   NewRequestMetrics(cfg, registry),
		capabilities:     NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// RecordProviderRequest records one upstream attempt.
func (c *Collector) RecordProviderRequest(provider, capability, status string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.providerMetrics.RecordRequest(provider, capability, status, duration)
}

// RecordProviderError records a failed attempt by error category.
func (c *Collector) RecordProviderError(provider, category string) {
	if !c.enabled {
		return
	}
	c.providerMetrics.RecordError(provider, category)
}

// RecordProviderRetry records a retried attempt.
func (c *Collector) RecordProviderRetry(provider string) {
	if !c.enabled {
		return
	}
	c.providerMetrics.RecordRetry(provider)
}

// ObserveStateChange records a breaker transition. Its signature matches
// breaker.StateChangeFunc.
func (c *Collector) ObserveStateChange(provider string, from, to breaker.State) {
	if !c.enabled {
		return
	}
	c.circuitMetrics.RecordTransition(provider, from, to)
}

// SetCircuitState seeds the state gauge of a newly registered breaker.
func (c *Collector) SetCircuitState(provider string, state breaker.State) {
	if !c.enabled {
		return
	}
	c.circuitMetrics.SetState(provider, state)
}

// ObserveRateLimitWait records the time a call waited for a token.
func (c *Collector) ObserveRateLimitWait(provider string, wait time.Duration) {
	if !c.enabled {
		return
	}
	c.rateLimitMetrics.RecordWait(provider, wait)
}

// ObserveRateLimitRejection records a call refused by the limiter.
func (c *Collector) ObserveRateLimitRejection(provider string) {
	if !c.enabled {
		return
	}
	c.rateLimitMetrics.RecordRejection(provider)
}

// ObserveCacheHit records a cache hit.
func (c *Collector) ObserveCacheHit(capability string, fresh bool) {
	if !c.enabled {
		return
	}
	c.cacheMetrics.RecordHit(capability, fresh)
}

// ObserveCacheMiss records a cache miss.
func (c *Collector) ObserveCacheMiss(capability string) {
	if !c.enabled {
		return
	}
	c.cacheMetrics.RecordMiss(capability)
}

// ObserveCacheEviction records n removed entries.
func (c *Collector) ObserveCacheEviction(n int) {
	if !c.enabled || n <= 0 {
		return
	}
	c.cacheMetrics.RecordEvictions(n)
}

// ObserveFallback records how a cascade resolved.
func (c *Collector) ObserveFallback(capability, outcome string) {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordFallback(c.capabilityLabel(capability), outcome)
}

// ObserveQuery records a completed gateway query. Callers can name any
// capability, so label values past DefaultMaxCardinality collapse into
// "other".
func (c *Collector) ObserveQuery(capability, outcome string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordQuery(c.capabilityLabel(capability), outcome, duration)
}

func (c *Collector) capabilityLabel(capability string) string {
	if c.capabilities.Allow(capability) {
		return capability
	}
	return otherLabel
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct values a label may take.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or still fits.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
