package config

import "time"

// Config is the root configuration structure for Conduit.
// It contains the HTTP server, gateway, provider, capability, cache and
// telemetry sections.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Gateway contains query defaults shared by every capability.
	Gateway GatewayConfig `yaml:"gateway"`

	// Providers contains the upstream data providers.
	// Keys are provider ids (e.g., "finnhub", "sec").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Capabilities maps each capability (e.g., "quote") to its ordered
	// provider chain, cache TTL and parameter rules.
	Capabilities map[string]CapabilityConfig `yaml:"capabilities"`

	// Cache contains response cache configuration.
	Cache CacheConfig `yaml:"cache"`

	// Secrets configures ${secret:name} resolution in provider API keys
	// and the redis password.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It should exceed the gateway default timeout.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// GatewayConfig contains query defaults.
type GatewayConfig struct {
	// DefaultTimeout is the deadline for a query, across the whole
	// fallback cascade, when the caller does not set one.
	// Default: 10s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxWait is the longest a call waits for a rate limit token.
	// Default: 2s
	MaxWait time.Duration `yaml:"max_wait"`

	// MaxStaleAge is how old a cached response may be and still be served
	// when every provider fails.
	// Default: 24h
	MaxStaleAge time.Duration `yaml:"max_stale_age"`
}

// ProviderConfig contains configuration for a single upstream provider.
type ProviderConfig struct {
	// Type selects the adapter. Defaults to the provider id.
	// Options: "alphavantage", "finnhub", "newsapi", "sec", "fred", "bls", "census"
	Type string `yaml:"type"`

	// BaseURL overrides the adapter's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential sent to the provider.
	// This should typically be loaded from CONDUIT_PROVIDERS_<ID>_API_KEY.
	APIKey string `yaml:"api_key"`

	// UserAgent is sent on every request. Required for "sec".
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds a single upstream attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	// Default: 2
	MaxRetries *int `yaml:"max_retries"`

	// Retry controls backoff between attempts.
	Retry RetryConfig `yaml:"retry"`

	// RateLimit is the provider's token bucket.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Breaker controls the provider's circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig controls exponential backoff.
type RetryConfig struct {
	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps every delay, including Retry-After hints.
	// Default: 60s
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay between retries.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the random fraction added or removed from each delay.
	// Default: 0.25
	Jitter float64 `yaml:"jitter"`
}

// RateLimitConfig is a token bucket.
type RateLimitConfig struct {
	// Capacity is the burst size.
	// Default: 5
	Capacity int `yaml:"capacity"`

	// RefillRatePerSec is the sustained request rate.
	// Default: 1.0
	RefillRatePerSec float64 `yaml:"refill_rate_per_sec"`
}

// BreakerConfig controls when a provider's circuit opens and recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within Window that opens
	// the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// Window is the rolling window for FailureThreshold.
	// Default: 60s
	Window time.Duration `yaml:"window"`

	// RatioWindow is the number of recent calls the failure ratio is
	// computed over.
	// Default: 20
	RatioWindow int `yaml:"ratio_window"`

	// FailureRatio opens the circuit when the failure share of the last
	// RatioWindow calls exceeds it.
	// Default: 0.5
	FailureRatio float64 `yaml:"failure_ratio"`

	// OpenDuration is the cooldown before a trial call.
	// Default: 30s
	OpenDuration time.Duration `yaml:"open_duration"`

	// HalfOpenSuccessThreshold is the number of consecutive successful
	// trial calls that close the circuit.
	// Default: 2
	HalfOpenSuccessThreshold int `yaml:"half_open_success_threshold"`

	// HalfOpenMaxCalls caps concurrent trial calls.
	// Default: 1
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

// CapabilityConfig configures one capability.
type CapabilityConfig struct {
	// Chain lists provider ids in priority order.
	Chain []string `yaml:"chain"`

	// TTL is how long a response stays fresh.
	// Default: cache.default_ttl
	TTL time.Duration `yaml:"ttl"`

	// Required lists parameters that must be present. For the built-in
	// capabilities the bundled rules apply when this is empty.
	Required []string `yaml:"required"`

	// Optional lists additional accepted parameters.
	Optional []string `yaml:"optional"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	// Backend selects the store.
	// Options: "memory", "sqlite", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// DefaultTTL applies to capabilities without their own TTL.
	// Default: 5m
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxEntries bounds the memory backend.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// SweepSchedule is the cron schedule for removing entries past the
	// stale window.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`

	// SweepBatch bounds the entries removed per sweep.
	// Default: 1000
	SweepBatch int `yaml:"sweep_batch"`

	// SQLite contains settings for the sqlite backend.
	SQLite CacheSQLiteConfig `yaml:"sqlite"`

	// Redis contains settings for the redis backend.
	Redis CacheRedisConfig `yaml:"redis"`
}

// CacheSQLiteConfig contains sqlite cache settings.
type CacheSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/cache.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheRedisConfig contains redis cache settings.
type CacheRedisConfig struct {
	// Addr is the server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password authenticates to the server.
	Password string `yaml:"password"`

	// DB is the database number.
	DB int `yaml:"db"`

	// Prefix is prepended to every key.
	// Default: "conduit:cache"
	Prefix string `yaml:"prefix"`
}

// SecretsConfig contains secret reference resolution settings.
type SecretsConfig struct {
	// EnvPrefix is prepended to environment variable names.
	// Default: "CONDUIT_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Empty disables the file source.
	Dir string `yaml:"dir"`

	// CacheTTL is how long a resolved secret is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API keys and tokens in log fields. Upstream
	// credentials travel in query strings, so URLs in errors carry them.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`

	// RedactPatterns contains additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "conduit"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets defines histogram buckets for upstream
	// request duration (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_based_ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "conduit"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout is the timeout for individual readiness checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// IntPtr returns a pointer to v, for optional integer fields.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v, for optional boolean fields.
func BoolPtr(v bool) *bool { return &v }
