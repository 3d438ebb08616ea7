package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ProviderTypes lists the adapter types a provider may use.
var ProviderTypes = []string{"alphavantage", "finnhub", "newsapi", "sec", "fred", "bls", "census"}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateGateway(&cfg.Gateway, &cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateCapabilities(cfg.Capabilities, cfg.Providers)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	if cfg.Secrets.CacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "secrets.cache_ttl",
			Message: "cache TTL must not be negative",
		})
	}
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validateGateway validates query defaults.
func validateGateway(cfg *GatewayConfig, server *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.default_timeout",
			Message: "default timeout must be positive",
		})
	} else if server.WriteTimeout > 0 && cfg.DefaultTimeout >= server.WriteTimeout {
		errs = append(errs, FieldError{
			Field:   "gateway.default_timeout",
			Message: fmt.Sprintf("default timeout %v must be shorter than server.write_timeout %v", cfg.DefaultTimeout, server.WriteTimeout),
		})
	}
	if cfg.MaxWait < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_wait",
			Message: "max wait must be non-negative",
		})
	}
	if cfg.MaxStaleAge < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_stale_age",
			Message: "max stale age must be non-negative",
		})
	}

	return errs
}

// validateProviders validates provider configurations.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if len(providers) == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one provider must be configured",
		})
		return errs
	}

	known := make(map[string]bool, len(ProviderTypes))
	for _, t := range ProviderTypes {
		known[t] = true
	}

	for _, name := range sortedKeys(providers) {
		provider := providers[name]
		prefix := fmt.Sprintf("providers.%s", name)

		if !known[strings.ToLower(provider.Type)] {
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unsupported provider type %q (supported: %s)", provider.Type, strings.Join(ProviderTypes, ", ")),
			})
		}

		// An empty base URL selects the adapter's default endpoint.
		if provider.BaseURL != "" {
			if u, err := url.Parse(provider.BaseURL); err != nil {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid URL format: %v", err),
				})
			} else if u.Scheme != "http" && u.Scheme != "https" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("unsupported URL scheme %q: must be http or https", u.Scheme),
				})
			}
		}

		// API keys may be empty here; they are usually injected through
		// CONDUIT_PROVIDERS_<ID>_API_KEY and the upstream rejects a missing one.

		if strings.EqualFold(provider.Type, "sec") && provider.UserAgent == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".user_agent",
				Message: "user agent is required for SEC EDGAR (e.g., \"Company admin@example.com\")",
			})
		}

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}

		if retries := provider.Retries(); retries < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries must be non-negative",
			})
		} else if retries > 10 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries exceeds reasonable limit (10)",
			})
		}

		errs = append(errs, validateRetry(prefix+".retry", &provider.Retry)...)
		errs = append(errs, validateRateLimit(prefix+".rate_limit", &provider.RateLimit)...)
		errs = append(errs, validateBreaker(prefix+".breaker", &provider.Breaker)...)
	}

	return errs
}

// validateRetry validates backoff settings.
func validateRetry(prefix string, cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseDelay < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".base_delay",
			Message: "base delay must be non-negative",
		})
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		errs = append(errs, FieldError{
			Field:   prefix + ".max_delay",
			Message: "max delay must not be shorter than base delay",
		})
	}
	if cfg.Multiplier < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be at least 1",
		})
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".jitter",
			Message: "jitter must be between 0 and 1",
		})
	}

	return errs
}

// validateRateLimit validates a token bucket.
func validateRateLimit(prefix string, cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".capacity",
			Message: "capacity must be positive",
		})
	}
	if cfg.RefillRatePerSec <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".refill_rate_per_sec",
			Message: "refill rate must be positive",
		})
	}
	if cfg.RefillRatePerSec > 100000 {
		errs = append(errs, FieldError{
			Field:   prefix + ".refill_rate_per_sec",
			Message: "refill rate exceeds reasonable limit (100,000)",
		})
	}

	return errs
}

// validateBreaker validates circuit breaker settings.
func validateBreaker(prefix string, cfg *BreakerConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".failure_threshold",
			Message: "failure threshold must be positive",
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".window",
			Message: "window must be positive",
		})
	}
	if cfg.RatioWindow < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".ratio_window",
			Message: "ratio window must be non-negative",
		})
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".failure_ratio",
			Message: "failure ratio must be in (0, 1]",
		})
	}
	if cfg.OpenDuration <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".open_duration",
			Message: "open duration must be positive",
		})
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".half_open_success_threshold",
			Message: "half-open success threshold must be positive",
		})
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".half_open_max_calls",
			Message: "half-open max calls must be positive",
		})
	}

	return errs
}

// validateCapabilities validates provider chains.
func validateCapabilities(capabilities map[string]CapabilityConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if len(capabilities) == 0 {
		errs = append(errs, FieldError{
			Field:   "capabilities",
			Message: "at least one capability must be configured",
		})
		return errs
	}

	for _, name := range sortedKeys(capabilities) {
		capability := capabilities[name]
		prefix := fmt.Sprintf("capabilities.%s", name)

		if len(capability.Chain) == 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".chain",
				Message: "chain must list at least one provider",
			})
		}
		seen := make(map[string]bool, len(capability.Chain))
		for i, provider := range capability.Chain {
			field := fmt.Sprintf("%s.chain[%d]", prefix, i)
			if _, ok := providers[provider]; !ok {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("unknown provider %q", provider),
				})
			}
			if seen[provider] {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("provider %q listed more than once", provider),
				})
			}
			seen[provider] = true
		}

		if capability.TTL < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".ttl",
				Message: "ttl must be non-negative",
			})
		}
	}

	return errs
}

// validateCache validates cache configuration.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"memory": true, "sqlite": true, "redis": true}
	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'redis'", cfg.Backend),
		})
	}

	if cfg.DefaultTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.default_ttl",
			Message: "default ttl must be positive",
		})
	}
	if cfg.MaxEntries < 0 {
		errs = append(errs, FieldError{
			Field:   "cache.max_entries",
			Message: "max entries must be non-negative",
		})
	}
	if cfg.SweepBatch <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.sweep_batch",
			Message: "sweep batch must be positive",
		})
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "cache.sweep_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.SweepSchedule, err),
		})
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "cache.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "cache.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "cache.redis.addr",
				Message: "redis address is required when backend is 'redis'",
			})
		}
		if cfg.Redis.DB < 0 || cfg.Redis.DB > 15 {
			errs = append(errs, FieldError{
				Field:   "cache.redis.db",
				Message: "redis db must be between 0 and 15",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "pattern is required",
			})
		}
	}

	if cfg.MetricsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "tracing endpoint is required when tracing is enabled",
			})
		}
		validSamplers := map[string]bool{"always": true, "never": true, "ratio": true, "parent_based_ratio": true}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', 'ratio', or 'parent_based_ratio'", cfg.Tracing.Sampler),
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0 and 1",
		})
	}

	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
