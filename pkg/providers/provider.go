package providers

import (
	"context"
	"encoding/json"
)

// Adapter is implemented by every upstream integration. An adapter knows how
// to turn a capability and its parameters into one HTTP exchange with its
// upstream and how to recognise that upstream's failure modes.
//
// Validate checks parameters without any network traffic. Client calls it
// before taking a rate-limit token, so malformed input never spends quota.
//
// Fetch performs exactly one attempt. It must not retry, rate limit or
// consult a circuit breaker; Client does that. Errors must be either a
// *ValidationError (bad parameters, no request was sent) or a
// *ProviderError carrying a Category.
type Adapter interface {
	// Name returns the provider id (e.g., "finnhub").
	Name() string

	// Capabilities returns the capabilities the adapter can serve.
	Capabilities() []string

	// Validate returns a *ValidationError if capability or params would be
	// refused by Fetch.
	Validate(capability string, params Params) error

	// Fetch performs a single upstream request and returns the raw JSON
	// payload.
	Fetch(ctx context.Context, capability string, params Params) (json.RawMessage, error)

	// Close releases idle connections.
	Close() error
}

// Supports reports whether a serves capability.
func Supports(a Adapter, capability string) bool {
	for _, c := range a.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}

// Unsupported returns the error adapters use for unknown capabilities.
func Unsupported(provider, capability string) error {
	return &ValidationError{
		Field:   "capability",
		Message: provider + " does not serve " + capability + ": " + ErrUnsupportedCapability.Error(),
	}
}
