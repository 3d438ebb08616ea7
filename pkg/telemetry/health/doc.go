// Package health reports provider state and serves the liveness and
// readiness probes.
//
// # Overview
//
// Health in Conduit is passive: nothing here probes an upstream. The
// Registry reads each provider's rate limit bucket, circuit breaker and
// last call outcome, so a snapshot reflects what real traffic has
// observed.
//
// # Endpoints
//
//   - /health: liveness, always 200 while the process serves
//   - /ready: readiness, 503 when a registered check fails
//   - /health/providers: the registry snapshot
//   - /version: build information
//
// # Usage
//
//	reg := health.NewRegistry()
//	for _, c := range manager.Clients() {
//	    reg.Register(c)
//	}
//
//	checker := health.NewChecker(time.Second)
//	checker.RegisterCheck("capabilities", health.CapabilityCheck(reg, cascade))
//
//	health.Register(mux, checker, reg, version, commit, buildTime)
//
// CapabilityCheck marks the service degraded while every provider of some
// capability has an open breaker. Requests for that capability can then
// only be answered from cache.
//
// # Snapshot Format
//
//	{
//	    "finnhub": {
//	        "tokensRemaining": 58.5,
//	        "circuitState": "closed",
//	        "lastSuccessAt": "2025-11-20T10:29:58Z",
//	        "lastError": null,
//	        "attempts": 120,
//	        "retries": 3,
//	        "successes": 118,
//	        "failures": 2
//	    }
//	}
//
// lastSuccessAt and lastError are null until the provider has succeeded or
// failed at least once.
package health
