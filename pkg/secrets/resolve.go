package secrets

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/conduit/pkg/config"
)

// ResolveConfig replaces secret references in provider API keys and the
// redis password in place. Configs without references are untouched and
// need no secret source.
func ResolveConfig(ctx context.Context, cfg *config.Config) error {
	if !hasReferences(cfg) {
		return nil
	}

	m, err := FromConfig(cfg.Secrets)
	if err != nil {
		return fmt.Errorf("failed to set up secret providers: %w", err)
	}
	return m.ResolveConfig(ctx, cfg)
}

// ResolveConfig resolves cfg using m.
func (m *Manager) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []error

	for name, p := range cfg.Providers {
		if !HasReference(p.APIKey) {
			continue
		}
		value, err := m.ResolveReferences(ctx, p.APIKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("providers.%s.api_key: %w", name, err))
			continue
		}
		p.APIKey = value
		cfg.Providers[name] = p
	}

	if HasReference(cfg.Cache.Redis.Password) {
		value, err := m.ResolveReferences(ctx, cfg.Cache.Redis.Password)
		if err != nil {
			errs = append(errs, fmt.Errorf("cache.redis.password: %w", err))
		} else {
			cfg.Cache.Redis.Password = value
		}
	}

	return errors.Join(errs...)
}

func hasReferences(cfg *config.Config) bool {
	for _, p := range cfg.Providers {
		if HasReference(p.APIKey) {
			return true
		}
	}
	return HasReference(cfg.Cache.Redis.Password)
}
