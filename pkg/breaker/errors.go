package breaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is matched by every *OpenError.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned by Allow while a breaker rejects calls.
type OpenError struct {
	// Provider is the breaker name.
	Provider string

	// State is OPEN, or HALF_OPEN when all trial slots are taken.
	State State

	// OpenedAt is when the breaker last opened.
	OpenedAt time.Time

	// RetryAt is the earliest time the breaker will admit a trial call.
	RetryAt time.Time
}

// Error returns the error message.
func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker for %s is half-open: trial calls in progress", e.Provider)
	}
	return fmt.Sprintf("circuit breaker for %s is open until %s", e.Provider, e.RetryAt.Format(time.RFC3339))
}

// Is reports whether target is ErrCircuitOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
