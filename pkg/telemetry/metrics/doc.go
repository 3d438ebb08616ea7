// Package metrics provides Prometheus metrics for the Conduit gateway.
//
// # Overview
//
// A Collector owns a prometheus.Registry and implements the observer hooks
// of the resilience components, so each component reports through the
// same value:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//
//	br := breaker.New(name, bcfg, breaker.WithStateChange(collector.ObserveStateChange))
//	client := providers.NewClient(adapter, br, bucket, ccfg, providers.WithRecorder(collector))
//	c := cache.New(store, cache.Options{Observer: collector})
//
//	mux.Handle("/metrics", collector.Handler())
//
// # Metrics
//
//   - conduit_provider_requests_total{provider,capability,status}
//   - conduit_provider_request_duration_seconds{provider,capability}
//   - conduit_provider_errors_total{provider,category}
//   - conduit_provider_retries_total{provider}
//   - conduit_circuit_state{provider}
//   - conduit_circuit_transitions_total{provider,from,to}
//   - conduit_ratelimit_rejections_total{provider}
//   - conduit_ratelimit_wait_seconds{provider}
//   - conduit_cache_hits_total{capability,freshness}
//   - conduit_cache_misses_total{capability}
//   - conduit_cache_evictions_total
//   - conduit_fallback_total{capability,outcome}
//   - conduit_queries_total{capability,outcome}
//   - conduit_query_duration_seconds{capability}
//
// The capability label of query and fallback metrics is bounded by a
// CardinalityLimiter; values past the bound are reported as "other".
package metrics
