package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"FRED": {},
		},
		Capabilities: map[string]CapabilityConfig{
			"economic_series": {Chain: []string{"FRED"}},
			"quote":           {Chain: []string{"FRED"}, TTL: 15 * time.Second},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Gateway.DefaultTimeout != DefaultQueryTimeout {
		t.Errorf("Gateway.DefaultTimeout = %v, want %v", cfg.Gateway.DefaultTimeout, DefaultQueryTimeout)
	}

	p := cfg.Providers["FRED"]
	if p.Type != "fred" {
		t.Errorf("Type = %q, want lowercased id", p.Type)
	}
	if p.Timeout != DefaultProviderTimeout || p.Retries() != DefaultProviderMaxRetries {
		t.Errorf("provider timeout/retries = %v/%d", p.Timeout, p.Retries())
	}
	if p.RateLimit.Capacity != DefaultRateLimitCapacity || p.RateLimit.RefillRatePerSec != DefaultRateLimitRefill {
		t.Errorf("RateLimit = %+v", p.RateLimit)
	}
	if p.Breaker.HalfOpenMaxCalls != DefaultBreakerHalfOpenMaxCalls || p.Breaker.FailureRatio != DefaultBreakerFailureRatio {
		t.Errorf("Breaker = %+v", p.Breaker)
	}

	if got := cfg.Capabilities["economic_series"].TTL; got != DefaultCacheTTL {
		t.Errorf("economic_series TTL = %v, want %v", got, DefaultCacheTTL)
	}
	if got := cfg.Capabilities["quote"].TTL; got != 15*time.Second {
		t.Errorf("quote TTL = %v, want explicit value kept", got)
	}

	if cfg.Cache.Backend != DefaultCacheBackend || cfg.Cache.SweepSchedule != DefaultCacheSweepSchedule {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix || cfg.Secrets.CacheTTL != DefaultSecretsCacheTTL {
		t.Errorf("Secrets = %+v", cfg.Secrets)
	}
	if !cfg.Telemetry.MetricsEnabled() || !cfg.Telemetry.Logging.RedactEnabled() {
		t.Error("metrics and redaction should default to on")
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) != len(DefaultRequestDurationBuckets) {
		t.Errorf("buckets = %v", cfg.Telemetry.Metrics.RequestDurationBuckets)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := NewTestConfig().Build()
	before := *cfg
	breakerBefore := cfg.Providers["finnhub"].Breaker
	ApplyDefaults(cfg)

	if cfg.Server != before.Server || cfg.Cache != before.Cache || cfg.Gateway != before.Gateway {
		t.Error("second ApplyDefaults changed scalar sections")
	}
	if cfg.Providers["finnhub"].Breaker != breakerBefore {
		t.Error("second ApplyDefaults changed provider breaker settings")
	}
}

func TestApplyDefaults_KeepsExplicitZeroRetries(t *testing.T) {
	cfg := NewTestConfig().WithProvider("sec", ProviderConfig{MaxRetries: IntPtr(0), UserAgent: "ops@example.com"}).Build()
	if got := cfg.Providers["sec"].Retries(); got != 0 {
		t.Errorf("Retries() = %d, want 0", got)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Providers == nil || cfg.Capabilities == nil {
		t.Fatal("maps should be initialized")
	}
	if cfg.Telemetry.Tracing.ServiceName != DefaultTracingService {
		t.Errorf("ServiceName = %q", cfg.Telemetry.Tracing.ServiceName)
	}
}
