// Conduit is a resilient data gateway in front of public financial, economic
// and demographic data providers.
//
// It answers capability queries (quote, news, filings, economic_series,
// labor_series, demographics) from a response cache or by cascading through
// an ordered chain of providers, each guarded by a rate limiter and a
// circuit breaker. When every provider fails, the last good answer is served
// as stale data.
//
// Usage:
//
//	# Start the gateway
//	conduit run --config conduit.yaml
//
//	# Query a capability without a running server
//	conduit query quote -p symbol=AAPL
//
//	# Query a running server
//	conduit query economic_series -p series_id=GDP --server http://localhost:8080
//
//	# Show provider health of a running server
//	conduit health
//
//	# Pre-populate the cache
//	conduit warm --file queries.yaml
//
//	# Check a configuration file
//	conduit validate --config conduit.yaml
package main

func main() {
	Execute()
}
