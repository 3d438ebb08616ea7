package providers

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProvider is matched by every *ProviderError.
	ErrProvider = errors.New("provider error")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrUnsupportedCapability is returned when an adapter is asked for a
	// capability it does not serve.
	ErrUnsupportedCapability = errors.New("capability not supported by provider")
)

// Kind tells whether a provider failure is worth retrying.
type Kind int

const (
	// Transient failures are retried with backoff.
	Transient Kind = iota
	// Permanent failures abort the provider immediately.
	Permanent
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// Category is the failure cause, used for metrics labels and backoff.
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryTimeout     Category = "timeout"
	CategoryRateLimit   Category = "rate_limit"
	CategoryServerError Category = "server_error"
	CategoryAuth        Category = "auth"
	CategoryClientError Category = "client_error"
	CategoryMalformed   Category = "malformed"
)

// Kind returns the retry kind implied by the category.
func (c Category) Kind() Kind {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit, CategoryServerError:
		return Transient
	default:
		return Permanent
	}
}

// ProviderError is a classified upstream failure.
type ProviderError struct {
	// Provider is the adapter that produced the error.
	Provider string

	// Category is the failure cause.
	Category Category

	// StatusCode is the HTTP status code, 0 when no response was received.
	StatusCode int

	// Message is a short description, usually taken from the response body.
	Message string

	// RetryAfter is the upstream's Retry-After hint for 429 responses.
	RetryAfter time.Duration

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q %s error (status %d): %s", e.Provider, e.Category, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %q %s error: %s", e.Provider, e.Category, msg)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Kind returns whether the failure is transient or permanent.
func (e *ProviderError) Kind() Kind {
	return e.Category.Kind()
}

// Retryable reports whether the failure should be retried.
func (e *ProviderError) Retryable() bool {
	return e.Kind() == Transient
}

// ValidationError reports bad caller input. It is never retried and never
// causes a fallback to another provider.
type ValidationError struct {
	// Field is the offending parameter.
	Field string

	// Message describes what is wrong with it.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigError represents a provider configuration error.
type ConfigError struct {
	// Provider is the name of the provider with invalid configuration
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// CategoryOf returns the failure category of err, or "" when err is not a
// *ProviderError.
func CategoryOf(err error) Category {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// missingParam returns a ValidationError for a required parameter.
func missingParam(name string) error {
	return &ValidationError{Field: name, Message: "required parameter is missing"}
}
