// Package app assembles a running Conduit gateway from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/cache"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/fallback"
	"mercator-hq/conduit/pkg/gateway"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providerfactory"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/secrets"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/metrics"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// App is a fully wired gateway: provider clients with their buckets and
// breakers, the cascade, the response cache and its sweeper, health
// reporting, metrics and tracing.
type App struct {
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Tracer    *tracing.Tracer
	Providers *providerfactory.Manager
	Cascade   *fallback.Cascade
	Cache     *cache.Cache
	Sweeper   *cache.Sweeper
	Gateway   *gateway.Gateway
	Health    *health.Registry
	Checker   *health.Checker

	mu  sync.Mutex
	cfg *config.Config
}

// Option configures New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	version  string
	tracing  []tracing.Option
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry registers metrics on registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithVersion sets the version reported in traces and the user agent of
// the trace exporter.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithTracingOptions passes extra options to tracing.New.
func WithTracingOptions(opts ...tracing.Option) Option {
	return func(o *options) { o.tracing = append(o.tracing, opts...) }
}

// New builds an App from cfg. cfg is expected to be validated. The
// sweeper is created but not started.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if err := secrets.ResolveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	a := &App{Logger: o.logger, cfg: cfg}

	a.Metrics = metrics.NewCollector(cfg.Telemetry.Metrics, o.registry)

	tracer, err := tracing.New(ctx, cfg.Telemetry.Tracing,
		append([]tracing.Option{tracing.WithVersion(o.version)}, o.tracing...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.Tracer = tracer

	limiter := ratelimit.New(nil, ratelimit.WithObserver(a.Metrics))
	breakers := breaker.NewSet(breaker.WithStateChange(a.Metrics.ObserveStateChange))
	a.Providers = providerfactory.NewManager(limiter, breakers,
		providers.WithLogger(o.logger),
		providers.WithRecorder(a.Metrics),
		providers.WithTracer(tracer.Tracer()),
	)
	if err := a.Providers.LoadFromConfig(Descriptors(cfg)); err != nil {
		a.closeQuietly()
		return nil, err
	}
	for _, s := range breakers.Snapshots() {
		a.Metrics.SetCircuitState(s.Provider, s.State)
	}

	store, err := OpenStore(ctx, cfg.Cache, a.Metrics.ObserveCacheEviction)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}
	a.Cache = cache.New(store, cache.Options{
		DefaultTTL:  cfg.Cache.DefaultTTL,
		TTLs:        TTLs(cfg),
		MaxStaleAge: cfg.Gateway.MaxStaleAge,
		Observer:    a.Metrics,
		Logger:      o.logger,
	})

	a.Sweeper, err = cache.NewSweeper(a.Cache, cache.SweeperConfig{
		Schedule: cfg.Cache.SweepSchedule,
		Batch:    cfg.Cache.SweepBatch,
		Logger:   o.logger,
	})
	if err != nil {
		a.closeQuietly()
		return nil, err
	}

	clients := a.Providers.Clients()
	callers := make([]fallback.Caller, len(clients))
	sources := make([]health.Source, len(clients))
	for i, c := range clients {
		callers[i] = c
		sources[i] = c
	}

	a.Cascade, err = fallback.New(callers, fallback.Options{
		Chains:   Chains(cfg),
		Cache:    a.Cache,
		Observer: a.Metrics,
		Logger:   o.logger,
	})
	if err != nil {
		a.closeQuietly()
		return nil, fmt.Errorf("invalid capability chains: %w", err)
	}

	a.Gateway = gateway.New(a.Cascade, a.Cache, gateway.Config{
		DefaultTimeout: cfg.Gateway.DefaultTimeout,
		Capabilities:   CapabilitySpecs(cfg),
	},
		gateway.WithLogger(o.logger),
		gateway.WithTracer(tracer.Tracer()),
		gateway.WithObserver(a.Metrics),
	)

	a.Health = health.NewRegistry(sources...)
	a.Checker = health.NewChecker(cfg.Telemetry.Health.CheckTimeout)
	a.Checker.RegisterCheck("capabilities", health.CapabilityCheck(a.Health, a.Cascade))
	a.Checker.RegisterCheck("cache", storeCheck(store))

	o.logger.Info("gateway assembled",
		"providers", a.Providers.Names(),
		"capabilities", a.Cascade.Capabilities(),
		"cache_backend", cfg.Cache.Backend,
		"tracing", tracer.Enabled(),
	)
	return a, nil
}

// Config returns the configuration the App currently runs with.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Apply switches a running App to cfg. Cache TTLs, the stale window and
// capability chains change immediately. Provider definitions are fixed for
// the life of the process because their buckets and breakers are; changes
// to them are logged and otherwise ignored until restart.
func (a *App) Apply(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := secrets.ResolveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}

	for _, name := range ChangedProviders(a.cfg, cfg) {
		a.Logger.Warn("provider configuration changed, restart to apply", "provider", name)
	}

	if err := a.Cascade.SetChains(Chains(cfg)); err != nil {
		return fmt.Errorf("failed to apply capability chains: %w", err)
	}
	a.Cache.SetPolicy(cfg.Cache.DefaultTTL, TTLs(cfg), cfg.Gateway.MaxStaleAge)

	a.cfg = cfg
	a.Logger.Info("configuration applied", "capabilities", a.Cascade.Capabilities())
	return nil
}

// Close stops the sweeper and releases the providers, the cache backend
// and the tracer.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sweeper != nil {
		if err := a.Sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sweeper: %w", err))
		}
	}
	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("cleanup after failed start", "error", err)
	}
}

// Descriptors converts the provider section of cfg, sorted by provider id.
func Descriptors(cfg *config.Config) []providerfactory.Descriptor {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]providerfactory.Descriptor, 0, len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		out = append(out, providerfactory.Descriptor{
			Provider: providers.ProviderConfig{
				Name:       name,
				Type:       p.Type,
				BaseURL:    p.BaseURL,
				APIKey:     p.APIKey,
				UserAgent:  p.UserAgent,
				Timeout:    p.Timeout,
				MaxRetries: p.Retries(),
				Retry: providers.RetryPolicy{
					BaseDelay:  p.Retry.BaseDelay,
					MaxDelay:   p.Retry.MaxDelay,
					Multiplier: p.Retry.Multiplier,
					Jitter:     p.Retry.Jitter,
				},
			},
			RateLimit: ratelimit.Config{
				Capacity:         p.RateLimit.Capacity,
				RefillRatePerSec: p.RateLimit.RefillRatePerSec,
			},
			Breaker: breaker.Config{
				FailureThreshold:         p.Breaker.FailureThreshold,
				Window:                   p.Breaker.Window,
				RatioWindow:              p.Breaker.RatioWindow,
				FailureRatio:             p.Breaker.FailureRatio,
				OpenDuration:             p.Breaker.OpenDuration,
				HalfOpenSuccessThreshold: p.Breaker.HalfOpenSuccessThreshold,
				HalfOpenMaxCalls:         p.Breaker.HalfOpenMaxCalls,
			},
			MaxWait: cfg.Gateway.MaxWait,
		})
	}
	return out
}

// Chains returns the capability chains of cfg.
func Chains(cfg *config.Config) map[string][]string {
	out := make(map[string][]string, len(cfg.Capabilities))
	for name, c := range cfg.Capabilities {
		out[name] = append([]string(nil), c.Chain...)
	}
	return out
}

// TTLs returns the freshness window of every configured capability.
func TTLs(cfg *config.Config) map[string]time.Duration {
	out := make(map[string]time.Duration, len(cfg.Capabilities))
	for name, c := range cfg.Capabilities {
		if c.TTL > 0 {
			out[name] = c.TTL
		}
	}
	return out
}

// CapabilitySpecs returns the parameter rules per capability. Configured
// rules win; built-in capabilities without configured rules keep the
// bundled ones.
func CapabilitySpecs(cfg *config.Config) map[string]providers.CapabilitySpec {
	out := make(map[string]providers.CapabilitySpec, len(cfg.Capabilities))
	for name, c := range cfg.Capabilities {
		if len(c.Required)+len(c.Optional) > 0 {
			out[name] = providers.CapabilitySpec{Name: name, Required: c.Required, Optional: c.Optional}
			continue
		}
		if spec, ok := providers.BuiltinCapabilities[name]; ok {
			out[name] = spec
		}
	}
	return out
}

// ChangedProviders lists providers that were added, removed or modified
// between old and next, sorted.
func ChangedProviders(old, next *config.Config) []string {
	seen := make(map[string]bool)
	var changed []string
	for name, p := range next.Providers {
		seen[name] = true
		prev, ok := old.Providers[name]
		if !ok || !sameProvider(prev, p) {
			changed = append(changed, name)
		}
	}
	for name := range old.Providers {
		if !seen[name] {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func sameProvider(a, b config.ProviderConfig) bool {
	return a.Type == b.Type &&
		a.BaseURL == b.BaseURL &&
		a.APIKey == b.APIKey &&
		a.UserAgent == b.UserAgent &&
		a.Timeout == b.Timeout &&
		a.Retries() == b.Retries() &&
		a.Retry == b.Retry &&
		a.RateLimit == b.RateLimit &&
		a.Breaker == b.Breaker
}

// OpenStore opens the cache backend selected by cfg. onEvict receives
// capacity evictions of the memory backend.
func OpenStore(ctx context.Context, cfg config.CacheConfig, onEvict func(n int)) (cache.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryStoreWithConfig(cache.MemoryStoreConfig{
			MaxEntries: cfg.MaxEntries,
			OnEvict:    onEvict,
		}), nil

	case "sqlite":
		store, err := cache.NewSQLiteStoreWithConfig(cache.SQLiteStoreConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return store, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := cache.NewRedisStore(rdb, cache.WithRedisPrefix(cfg.Redis.Prefix))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis cache at %s: %w", cfg.Redis.Addr, err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// storeCheck reports the cache backend as unready when it cannot be read.
func storeCheck(store cache.Store) health.CheckFunc {
	return func(ctx context.Context) error {
		if p, ok := store.(pinger); ok {
			return p.Ping(ctx)
		}
		_, err := store.Len(ctx)
		return err
	}
}
