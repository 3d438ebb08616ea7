package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with one provider and one capability and applies defaults on
// Build, so the result validates unless a test breaks it on purpose.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with a finnhub provider serving
// the quote capability.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"finnhub": {APIKey: "test-key"},
		},
		Capabilities: map[string]CapabilityConfig{
			"quote": {Chain: []string{"finnhub"}},
		},
	}
	return &ConfigBuilder{cfg: cfg}
}

// Build applies defaults and returns the Config.
func (b *ConfigBuilder) Build() *Config {
	ApplyDefaults(&b.cfg)
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithProvider adds or updates a provider configuration.
func (b *ConfigBuilder) WithProvider(name string, provider ProviderConfig) *ConfigBuilder {
	b.cfg.Providers[name] = provider
	return b
}

// WithCapability adds or updates a capability.
func (b *ConfigBuilder) WithCapability(name string, ttl time.Duration, chain ...string) *ConfigBuilder {
	b.cfg.Capabilities[name] = CapabilityConfig{Chain: chain, TTL: ttl}
	return b
}

// WithCacheBackend sets the cache backend.
func (b *ConfigBuilder) WithCacheBackend(backend string) *ConfigBuilder {
	b.cfg.Cache.Backend = backend
	return b
}

// WithLogLevel sets the logging level.
func (b *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithTracing enables tracing to endpoint.
func (b *ConfigBuilder) WithTracing(endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = true
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	return b
}
