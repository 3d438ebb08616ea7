package providers

import (
	"testing"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

// TestConfig returns a provider configuration suited to tests: short
// timeout, no retries and millisecond backoff.
func TestConfig(name, providerType, baseURL string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:       name,
		Type:       providerType,
		BaseURL:    baseURL,
		APIKey:     "test-key",
		UserAgent:  "conduit-test admin@example.com",
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		Retry: providers.RetryPolicy{
			BaseDelay:  time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
			Multiplier: 2,
		},
	}
}

// WaitForCondition waits for a condition to become true within a timeout.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}
		<-ticker.C
	}
}
