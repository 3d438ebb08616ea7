// Package server exposes the data gateway over HTTP.
//
// Queries are addressed by capability:
//
//	GET /v1/query/quote?symbol=AAPL
//	GET /v1/query/economic_series?series_id=GDP&force_fresh=true&timeout=3s
//
// force_fresh and timeout are reserved; every other query string key is
// passed to the capability as a parameter. POST takes the same request as
// JSON:
//
//	{"params": {"symbol": "AAPL"}, "force_fresh": false, "timeout": "2s"}
//
// A successful response is the gateway result. X-Conduit-Source names the
// provider that produced the data and X-Cache is "hit", "miss" or "stale".
//
// Errors use a single envelope:
//
//	{"error": {"type": "unavailable", "message": "...", "requestId": "...", "attempts": [...]}}
//
// Status codes:
//
//	400 invalid_request       missing or unexpected parameters
//	404 unknown_capability    no provider chain for the capability
//	429 rate_limited          every provider's local budget was exhausted (Retry-After set)
//	503 unavailable           every provider failed and nothing is cached
//	504 timeout               the query deadline ran out
//
// Every response carries X-Request-ID, taken from the request when present.
package server
