// Package secrets resolves ${secret:name} references in configuration
// values against environment variables and mounted secret files.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no provider holds a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one source.
type Provider interface {
	// GetSecret retrieves a secret by name.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name returns the source name ("env", "file").
	Name() string

	// Supports reports whether the source may hold name.
	Supports(name string) bool
}
