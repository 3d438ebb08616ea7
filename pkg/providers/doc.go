// Package providers implements the upstream adapters and the resilient
// client that wraps each of them.
//
// # Overview
//
// Every upstream data API (Finnhub, Alpha Vantage, SEC EDGAR, FRED, ...) is
// integrated through an Adapter. An adapter knows one upstream: how to turn a
// capability and its parameters into an HTTP exchange and how to recognise
// that upstream's failures, including the ones reported inside a 200 body.
//
// A Client owns the resilience around an adapter:
//
//  1. Circuit breaker - rejects calls while the provider is failing
//  2. Rate limit bucket - one token per upstream attempt
//  3. Per-attempt timeout - bounds each attempt by the provider timeout
//  4. Retry with backoff - transient failures only
//
// # Basic Usage
//
//	adapter := finnhub.New(providers.ProviderConfig{
//	    APIKey:  os.Getenv("FINNHUB_API_KEY"),
//	    Timeout: 10 * time.Second,
//	})
//
//	client := providers.NewClient(adapter,
//	    breaker.New("finnhub", breaker.DefaultConfig()),
//	    ratelimit.NewBucket("finnhub", ratelimit.Config{Capacity: 60, RefillRatePerSec: 1}),
//	    providers.ClientConfig{Timeout: 10 * time.Second, MaxRetries: 2, MaxWait: 5 * time.Second},
//	)
//
//	resp, err := client.Call(ctx, providers.CapabilityQuote, providers.Params{"symbol": "AAPL"})
//
// # Error Handling
//
// Failures are classified by Category:
//
//   - network, timeout, rate_limit, server_error: transient, retried
//   - auth, client_error, malformed: permanent, never retried
//
// A *ValidationError means the caller's parameters were refused before any
// request was sent. It is neither retried nor counted against the breaker.
//
//	var pe *providers.ProviderError
//	if errors.As(err, &pe) {
//	    fmt.Println(pe.Category, pe.StatusCode)
//	}
//
// # Thread Safety
//
// Adapters and Clients are safe for concurrent use.
package providers
