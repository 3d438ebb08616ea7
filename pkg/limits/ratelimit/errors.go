package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded is matched by every *ExceededError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownProvider is returned when no bucket is registered for a provider.
	ErrUnknownProvider = errors.New("no rate limit bucket for provider")
)

// ExceededError reports that a provider's quota could not cover a request
// within the caller's wait budget.
type ExceededError struct {
	// Provider is the provider whose bucket refused the request.
	Provider string

	// Requested is the number of tokens asked for.
	Requested int

	// Wait is how long the caller would have had to wait. It is zero when
	// the request can never be satisfied (Requested > capacity).
	Wait time.Duration

	// MaxWait is the wait budget the caller allowed.
	MaxWait time.Duration
}

// Error returns the error message.
func (e *ExceededError) Error() string {
	if e.Wait == 0 {
		return fmt.Sprintf("rate limit exceeded for %s: %d tokens exceeds bucket capacity", e.Provider, e.Requested)
	}
	return fmt.Sprintf("rate limit exceeded for %s: need to wait %v, budget %v", e.Provider, e.Wait.Round(time.Millisecond), e.MaxWait.Round(time.Millisecond))
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfter suggests how long a caller should back off before asking again.
func (e *ExceededError) RetryAfter() time.Duration {
	return e.Wait
}
