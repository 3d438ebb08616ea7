// Package telemetry groups Conduit's observability packages.
//
// # Components
//
//   - logging: slog handler with request/capability/provider context
//     fields, trace correlation and credential redaction
//   - metrics: Prometheus collector implementing the provider, rate
//     limit, breaker, cache, cascade and query observer hooks
//   - tracing: OpenTelemetry tracer with OTLP export, one span per query
//     and one per upstream attempt
//   - health: liveness, readiness and per-provider health endpoints
//
// The packages are wired together by pkg/app; nothing here reaches into
// the gateway directly.
package telemetry
