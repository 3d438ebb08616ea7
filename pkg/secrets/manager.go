package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"mercator-hq/conduit/pkg/config"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Manager tries each provider in order and caches resolved values.
type Manager struct {
	providers []Provider
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewManager creates a manager over providers. A ttl of zero disables
// caching.
func NewManager(providers []Provider, ttl time.Duration) *Manager {
	return &Manager{
		providers: providers,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// FromConfig builds the env provider and, when a directory is set, the
// file provider. Files take precedence over the environment.
func FromConfig(cfg config.SecretsConfig) (*Manager, error) {
	var providers []Provider
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewManager(providers, cfg.CacheTTL), nil
}

// GetSecret returns the first value any supporting provider yields.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	if e, ok := m.cache[name]; ok && m.now().Before(e.expiresAt) {
		m.mu.Unlock()
		return e.value, nil
	}
	m.mu.Unlock()

	var lastErr error
	for _, p := range m.providers {
		if !p.Supports(name) {
			continue
		}
		value, err := p.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			slog.DebugContext(ctx, "secret provider failed", "source", p.Name(), "name", name, "error", err)
			continue
		}
		if m.ttl > 0 {
			m.mu.Lock()
			m.cache[name] = cacheEntry{value: value, expiresAt: m.now().Add(m.ttl)}
			m.mu.Unlock()
		}
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q (no provider holds it)", ErrNotFound, name)
}

// ResolveReferences replaces every ${secret:name} in input. Unresolved
// references are left in place and reported together.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	output := refPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(refPattern.FindStringSubmatch(match)[1])
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	return output, errors.Join(errs...)
}

// Refresh drops every cached value.
func (m *Manager) Refresh() {
	m.mu.Lock()
	m.cache = make(map[string]cacheEntry)
	m.mu.Unlock()
}

// HasReference reports whether s contains a secret reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}
