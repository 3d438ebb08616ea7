package config

import (
	"strings"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Gateway defaults
	DefaultQueryTimeout = 10 * time.Second
	DefaultMaxWait      = 2 * time.Second
	DefaultMaxStaleAge  = 24 * time.Hour

	// Provider defaults
	DefaultProviderTimeout    = 10 * time.Second
	DefaultProviderMaxRetries = 2
	DefaultRetryBaseDelay     = time.Second
	DefaultRetryMaxDelay      = 60 * time.Second
	DefaultRetryMultiplier    = 2.0
	DefaultRetryJitter        = 0.25
	DefaultRateLimitCapacity  = 5
	DefaultRateLimitRefill    = 1.0

	// Breaker defaults
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerWindow           = 60 * time.Second
	DefaultBreakerRatioWindow      = 20
	DefaultBreakerFailureRatio     = 0.5
	DefaultBreakerOpenDuration     = 30 * time.Second
	DefaultBreakerHalfOpenSuccess  = 2
	DefaultBreakerHalfOpenMaxCalls = 1

	// Cache defaults
	DefaultCacheBackend           = "memory"
	DefaultCacheTTL               = 5 * time.Minute
	DefaultCacheMaxEntries        = 10000
	DefaultCacheSweepSchedule     = "@every 1m"
	DefaultCacheSweepBatch        = 1000
	DefaultCacheSQLitePath        = "data/cache.db"
	DefaultCacheSQLiteBusyTimeout = 5 * time.Second
	DefaultCacheRedisAddr         = "localhost:6379"
	DefaultCacheRedisPrefix       = "conduit:cache"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "CONDUIT_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultRedactSecrets      = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "conduit"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingService     = "conduit"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultHealthCheckTimeout = 5 * time.Second
)

// DefaultRequestDurationBuckets are the upstream latency histogram buckets.
var DefaultRequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Gateway defaults
	if cfg.Gateway.DefaultTimeout == 0 {
		cfg.Gateway.DefaultTimeout = DefaultQueryTimeout
	}
	if cfg.Gateway.MaxWait == 0 {
		cfg.Gateway.MaxWait = DefaultMaxWait
	}
	if cfg.Gateway.MaxStaleAge == 0 {
		cfg.Gateway.MaxStaleAge = DefaultMaxStaleAge
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		applyProviderDefaults(name, &provider)
		cfg.Providers[name] = provider
	}

	// Cache defaults
	applyCacheDefaults(&cfg.Cache)

	// Capability defaults
	for name, capability := range cfg.Capabilities {
		if capability.TTL == 0 {
			capability.TTL = cfg.Cache.DefaultTTL
		}
		cfg.Capabilities[name] = capability
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	// Telemetry defaults
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyProviderDefaults(name string, p *ProviderConfig) {
	if p.Type == "" {
		p.Type = strings.ToLower(name)
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.MaxRetries == nil {
		p.MaxRetries = IntPtr(DefaultProviderMaxRetries)
	}

	if p.Retry.BaseDelay == 0 {
		p.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if p.Retry.MaxDelay == 0 {
		p.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if p.Retry.Multiplier == 0 {
		p.Retry.Multiplier = DefaultRetryMultiplier
	}
	if p.Retry.Jitter == 0 {
		p.Retry.Jitter = DefaultRetryJitter
	}

	if p.RateLimit.Capacity == 0 {
		p.RateLimit.Capacity = DefaultRateLimitCapacity
	}
	if p.RateLimit.RefillRatePerSec == 0 {
		p.RateLimit.RefillRatePerSec = DefaultRateLimitRefill
	}

	b := &p.Breaker
	if b.FailureThreshold == 0 {
		b.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if b.Window == 0 {
		b.Window = DefaultBreakerWindow
	}
	if b.RatioWindow == 0 {
		b.RatioWindow = DefaultBreakerRatioWindow
	}
	if b.FailureRatio == 0 {
		b.FailureRatio = DefaultBreakerFailureRatio
	}
	if b.OpenDuration == 0 {
		b.OpenDuration = DefaultBreakerOpenDuration
	}
	if b.HalfOpenSuccessThreshold == 0 {
		b.HalfOpenSuccessThreshold = DefaultBreakerHalfOpenSuccess
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = DefaultBreakerHalfOpenMaxCalls
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.Backend == "" {
		c.Backend = DefaultCacheBackend
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = DefaultCacheTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultCacheMaxEntries
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = DefaultCacheSweepSchedule
	}
	if c.SweepBatch == 0 {
		c.SweepBatch = DefaultCacheSweepBatch
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultCacheSQLitePath
	}
	if c.SQLite.BusyTimeout == 0 {
		c.SQLite.BusyTimeout = DefaultCacheSQLiteBusyTimeout
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultCacheRedisAddr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultCacheRedisPrefix
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.RedactSecrets == nil {
		t.Logging.RedactSecrets = BoolPtr(DefaultRedactSecrets)
	}

	if t.Metrics.Enabled == nil {
		t.Metrics.Enabled = BoolPtr(DefaultMetricsEnabled)
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingService
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// NewDefaultConfig returns a configuration with every default applied and
// no providers. It is the starting point for tests and the validate command.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Providers:    make(map[string]ProviderConfig),
		Capabilities: make(map[string]CapabilityConfig),
	}
	ApplyDefaults(cfg)
	return cfg
}

// MetricsEnabled reports whether metrics are on.
func (t TelemetryConfig) MetricsEnabled() bool {
	return t.Metrics.Enabled == nil || *t.Metrics.Enabled
}

// RedactEnabled reports whether log redaction is on.
func (l LoggingConfig) RedactEnabled() bool {
	return l.RedactSecrets == nil || *l.RedactSecrets
}

// Retries returns the configured retry count.
func (p ProviderConfig) Retries() int {
	if p.MaxRetries == nil {
		return DefaultProviderMaxRetries
	}
	return *p.MaxRetries
}
