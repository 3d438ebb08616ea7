package fallback

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// ErrAllProvidersUnavailable is matched by *AllProvidersUnavailableError.
var ErrAllProvidersUnavailable = errors.New("all providers unavailable")

// Reason is why a provider in the chain did not produce a result.
type Reason string

const (
	// ReasonCircuitOpen means the breaker rejected the call; no request was sent.
	ReasonCircuitOpen Reason = "circuit_open"

	// ReasonRateLimited means the local limiter could not grant a token in time.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonTransient means the upstream kept failing with retryable errors.
	ReasonTransient Reason = "transient_failure"

	// ReasonPermanent means the upstream failed with a non-retryable error.
	ReasonPermanent Reason = "permanent_failure"

	// ReasonDeadline means the overall deadline ran out before or during the attempt.
	ReasonDeadline Reason = "deadline_exceeded"

	// ReasonCancelled means the caller gave up.
	ReasonCancelled Reason = "cancelled"
)

// Attempt records the outcome of one provider in a cascade.
type Attempt struct {
	Provider string             `json:"provider"`
	Reason   Reason             `json:"reason"`
	Category providers.Category `json:"category,omitempty"`
	Error    string             `json:"error,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// AllProvidersUnavailableError is returned when every provider in the chain
// failed or was skipped and no usable cache entry exists.
type AllProvidersUnavailableError struct {
	// Capability is the requested capability.
	Capability string

	// Attempts lists every provider in chain order with its reason.
	Attempts []Attempt
}

// Error implements the error interface.
func (e *AllProvidersUnavailableError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Provider + ": " + string(a.Reason)
	}
	return fmt.Sprintf("all providers unavailable for %q (%s)", e.Capability, strings.Join(parts, ", "))
}

// Is implements error matching for errors.Is().
func (e *AllProvidersUnavailableError) Is(target error) bool {
	return target == ErrAllProvidersUnavailable
}

// Unwrap returns the per-provider errors.
func (e *AllProvidersUnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// RateLimitedOnly reports whether every provider that was tried was refused
// by its local rate limiter.
func (e *AllProvidersUnavailableError) RateLimitedOnly() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.Reason != ReasonRateLimited {
			return false
		}
	}
	return true
}

// UnknownCapabilityError is returned for a capability without a chain.
type UnknownCapabilityError struct {
	Capability string
	Known      []string
}

// Error implements the error interface.
func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("no providers configured for capability %q (known: %s)",
		e.Capability, strings.Join(e.Known, ", "))
}

// Is matches providers.ErrValidation: an unknown capability is a caller error.
func (e *UnknownCapabilityError) Is(target error) bool {
	return target == providers.ErrValidation
}
