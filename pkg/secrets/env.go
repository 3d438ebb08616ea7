package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// Secret names are upper-cased with hyphens and dots replaced by
// underscores, then prefixed: "finnhub-api-key" with prefix
// "CONDUIT_SECRET_" reads CONDUIT_SECRET_FINNHUB_API_KEY.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment variable provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the variable for name.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.EnvVar(name)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env var: %s)", ErrNotFound, name, envVar)
	}
	return value, nil
}

// EnvVar returns the variable name that holds name.
func (p *EnvProvider) EnvVar(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.Prefix + strings.ToUpper(r.Replace(name))
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// Supports reports whether the variable for name is set.
func (p *EnvProvider) Supports(name string) bool {
	_, ok := os.LookupEnv(p.EnvVar(name))
	return ok
}
