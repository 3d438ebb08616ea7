package server

import (
	"net/http"

	"mercator-hq/conduit/pkg/app"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// NewHandler assembles the HTTP API of a:
//
//	GET  /health              liveness
//	GET  /ready               readiness
//	GET  /health/providers    per-provider health
//	GET  /version             build information
//	GET  /metrics             Prometheus metrics (path is configurable)
//	GET  /v1/capabilities     capabilities with a provider chain
//	GET  /v1/query/{cap}      query with parameters in the query string
//	POST /v1/query/{cap}      query with a JSON QueryRequest body
func NewHandler(a *app.App, info BuildInfo) http.Handler {
	cfg := a.Config()
	mux := http.NewServeMux()

	health.Register(mux, a.Checker, a.Health, info.Version, info.Commit, info.BuildTime)
	if a.Metrics.Enabled() {
		mux.Handle(cfg.Telemetry.Metrics.Path, a.Metrics.Handler())
	}

	mux.Handle("GET /v1/capabilities", CapabilitiesHandler(a.Gateway))
	mux.Handle("/v1/query/{capability}", NewQueryHandler(a.Gateway, cfg.Server.WriteTimeout))

	return Chain(mux,
		RecoveryMiddleware(a.Logger),
		RequestIDMiddleware,
		LoggingMiddleware(a.Logger),
		func(next http.Handler) http.Handler {
			return tracing.HTTPMiddleware(a.Tracer.Tracer(), next)
		},
	)
}
