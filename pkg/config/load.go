package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "CONDUIT_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUIT_SECTION_FIELD (e.g., CONDUIT_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// Validation runs once, after the overrides, so a provider whose API key
// only comes from CONDUIT_PROVIDERS_<ID>_API_KEY loads cleanly.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not
// validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = make(map[string]CapabilityConfig)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format CONDUIT_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)

	// Gateway overrides
	envDuration("GATEWAY_DEFAULT_TIMEOUT", &cfg.Gateway.DefaultTimeout)
	envDuration("GATEWAY_MAX_WAIT", &cfg.Gateway.MaxWait)
	envDuration("GATEWAY_MAX_STALE_AGE", &cfg.Gateway.MaxStaleAge)

	// Provider overrides, one set per configured provider
	for name := range cfg.Providers {
		applyProviderEnvOverrides(cfg, name)
	}

	// Cache overrides
	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envDuration("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	envString("CACHE_SWEEP_SCHEDULE", &cfg.Cache.SweepSchedule)
	envInt("CACHE_SWEEP_BATCH", &cfg.Cache.SweepBatch)
	envString("CACHE_SQLITE_PATH", &cfg.Cache.SQLite.Path)
	envString("CACHE_REDIS_ADDR", &cfg.Cache.Redis.Addr)
	envString("CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	envInt("CACHE_REDIS_DB", &cfg.Cache.Redis.DB)
	envString("CACHE_REDIS_PREFIX", &cfg.Cache.Redis.Prefix)

	// Secrets overrides
	envString("SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)
	envString("SECRETS_DIR", &cfg.Secrets.Dir)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_LOGGING_REDACT_SECRETS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Logging.RedactSecrets = BoolPtr(b)
		}
	}
	if val := os.Getenv(EnvPrefix + "TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = BoolPtr(b)
		}
	}
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyProviderEnvOverrides applies environment variable overrides for a specific provider.
// Provider environment variables follow the format CONDUIT_PROVIDERS_<NAME>_<FIELD>
// where NAME is the uppercase provider name with dashes replaced by underscores.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	provider := cfg.Providers[providerName]
	prefix := ProviderEnvPrefix(providerName)

	envString(prefix+"BASE_URL", &provider.BaseURL)
	envString(prefix+"API_KEY", &provider.APIKey)
	envString(prefix+"USER_AGENT", &provider.UserAgent)
	envDuration(prefix+"TIMEOUT", &provider.Timeout)
	if val := os.Getenv(EnvPrefix + prefix + "MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.MaxRetries = IntPtr(i)
		}
	}
	envInt(prefix+"RATE_LIMIT_CAPACITY", &provider.RateLimit.Capacity)
	if val := os.Getenv(EnvPrefix + prefix + "RATE_LIMIT_REFILL_RATE_PER_SEC"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			provider.RateLimit.RefillRatePerSec = f
		}
	}

	cfg.Providers[providerName] = provider
}

// ProviderEnvPrefix returns the variable prefix, without CONDUIT_, for a
// provider's overrides (e.g., "PROVIDERS_FRED_BACKUP_" for "fred-backup").
func ProviderEnvPrefix(providerName string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(providerName))
	return "PROVIDERS_" + name + "_"
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
