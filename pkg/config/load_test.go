package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "60s"

gateway:
  default_timeout: "5s"

providers:
  finnhub:
    api_key: "file-key"
    timeout: "3s"
    max_retries: 0
    rate_limit:
      capacity: 30
      refill_rate_per_sec: 1
  alphavantage:
    rate_limit:
      capacity: 5
      refill_rate_per_sec: 0.083
    breaker:
      failure_threshold: 3
  sec:
    user_agent: "Conduit ops@example.com"
  fred-backup:
    type: fred

capabilities:
  quote:
    chain: [finnhub, alphavantage]
    ttl: "15s"
  filings:
    chain: [sec]
  economic_series:
    chain: [fred-backup]
    ttl: "1h"

cache:
  backend: sqlite
  sqlite:
    path: "cache.db"

telemetry:
  logging:
    level: "debug"
    format: "text"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, "0.0.0.0:9090")
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v, want 60s", cfg.Server.ReadTimeout)
	}
	if cfg.Gateway.DefaultTimeout != 5*time.Second {
		t.Errorf("Gateway.DefaultTimeout = %v, want 5s", cfg.Gateway.DefaultTimeout)
	}

	fh := cfg.Providers["finnhub"]
	if fh.Type != "finnhub" {
		t.Errorf("finnhub.Type = %q, want type taken from the id", fh.Type)
	}
	if fh.APIKey != "file-key" || fh.Timeout != 3*time.Second {
		t.Errorf("finnhub = %+v", fh)
	}
	if fh.Retries() != 0 {
		t.Errorf("finnhub.Retries() = %d, want explicit 0 kept", fh.Retries())
	}
	if fh.RateLimit.Capacity != 30 || fh.RateLimit.RefillRatePerSec != 1 {
		t.Errorf("finnhub.RateLimit = %+v", fh.RateLimit)
	}

	av := cfg.Providers["alphavantage"]
	if av.Breaker.FailureThreshold != 3 {
		t.Errorf("alphavantage.Breaker.FailureThreshold = %d, want 3", av.Breaker.FailureThreshold)
	}
	if av.Breaker.OpenDuration != DefaultBreakerOpenDuration {
		t.Errorf("alphavantage.Breaker.OpenDuration = %v, want default", av.Breaker.OpenDuration)
	}
	if av.Retries() != DefaultProviderMaxRetries {
		t.Errorf("alphavantage.Retries() = %d, want default %d", av.Retries(), DefaultProviderMaxRetries)
	}

	if got := cfg.Providers["fred-backup"].Type; got != "fred" {
		t.Errorf("fred-backup.Type = %q, want fred", got)
	}

	quote := cfg.Capabilities["quote"]
	if strings.Join(quote.Chain, ",") != "finnhub,alphavantage" || quote.TTL != 15*time.Second {
		t.Errorf("quote = %+v", quote)
	}
	if got := cfg.Capabilities["filings"].TTL; got != DefaultCacheTTL {
		t.Errorf("filings.TTL = %v, want cache default %v", got, DefaultCacheTTL)
	}

	if cfg.Cache.Backend != "sqlite" || cfg.Cache.SQLite.Path != "cache.db" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Telemetry.Logging.Level != "debug" || !cfg.Telemetry.Logging.RedactEnabled() {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name:    "no providers",
			content: "capabilities:\n  quote:\n    chain: [finnhub]\n",
			wantErr: "at least one provider",
		},
		{
			name:    "chain names unknown provider",
			content: "providers:\n  finnhub: {}\ncapabilities:\n  quote:\n    chain: [finnhub, bloomberg]\n",
			wantErr: `unknown provider "bloomberg"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("CONDUIT_SERVER_LISTEN_ADDRESS", "127.0.0.1:7070")
	t.Setenv("CONDUIT_GATEWAY_MAX_WAIT", "500ms")
	t.Setenv("CONDUIT_PROVIDERS_ALPHAVANTAGE_API_KEY", "env-av-key")
	t.Setenv("CONDUIT_PROVIDERS_FINNHUB_API_KEY", "env-fh-key")
	t.Setenv("CONDUIT_PROVIDERS_FRED_BACKUP_API_KEY", "env-fred-key")
	t.Setenv("CONDUIT_PROVIDERS_FINNHUB_RATE_LIMIT_REFILL_RATE_PER_SEC", "0.5")
	t.Setenv("CONDUIT_PROVIDERS_FINNHUB_MAX_RETRIES", "4")
	t.Setenv("CONDUIT_CACHE_BACKEND", "memory")
	t.Setenv("CONDUIT_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("CONDUIT_TELEMETRY_LOGGING_REDACT_SECRETS", "false")
	t.Setenv("CONDUIT_SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:7070" {
		t.Errorf("ListenAddress = %q, want env value", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v, want file value kept when env is malformed", cfg.Server.ReadTimeout)
	}
	if cfg.Gateway.MaxWait != 500*time.Millisecond {
		t.Errorf("MaxWait = %v, want 500ms", cfg.Gateway.MaxWait)
	}

	tests := []struct {
		provider string
		want     string
	}{
		{"alphavantage", "env-av-key"},
		{"finnhub", "env-fh-key"},
		{"fred-backup", "env-fred-key"},
		{"sec", ""},
	}
	for _, tt := range tests {
		if got := cfg.Providers[tt.provider].APIKey; got != tt.want {
			t.Errorf("%s.APIKey = %q, want %q", tt.provider, got, tt.want)
		}
	}

	fh := cfg.Providers["finnhub"]
	if fh.RateLimit.RefillRatePerSec != 0.5 || fh.Retries() != 4 {
		t.Errorf("finnhub overrides = %+v", fh)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Telemetry.MetricsEnabled() {
		t.Error("metrics should be disabled by env")
	}
	if cfg.Telemetry.Logging.RedactEnabled() {
		t.Error("redaction should be disabled by env")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	t.Setenv("CONDUIT_CACHE_BACKEND", "memcached")

	_, err := LoadConfigWithEnvOverrides(writeConfig(t, sampleConfig))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "cache.backend" {
		t.Errorf("Errors = %+v, want one cache.backend error", verr.Errors)
	}
}

func TestProviderEnvPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"finnhub", "PROVIDERS_FINNHUB_"},
		{"fred-backup", "PROVIDERS_FRED_BACKUP_"},
		{"census.v2", "PROVIDERS_CENSUS_V2_"},
	}
	for _, tt := range tests {
		if got := ProviderEnvPrefix(tt.name); got != tt.want {
			t.Errorf("ProviderEnvPrefix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
