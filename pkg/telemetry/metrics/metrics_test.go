package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/cache"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/fallback"
	"mercator-hq/conduit/pkg/gateway"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
)

// Compile-time checks that Collector satisfies every observer hook.
var (
	_ providers.Recorder = (*Collector)(nil)
	_ ratelimit.Observer = (*Collector)(nil)
	_ cache.Observer     = (*Collector)(nil)
	_ fallback.Observer  = (*Collector)(nil)
	_ gateway.Observer   = (*Collector)(nil)
)

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:                config.BoolPtr(true),
		Namespace:              "test",
		RequestDurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestNewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	if collector.Registry() != registry {
		t.Error("Registry() should return the supplied registry")
	}
	if !collector.Enabled() {
		t.Error("Enabled() = false, want true")
	}

	if NewCollector(config.MetricsConfig{}, nil).Registry() == nil {
		t.Error("nil registry should be replaced")
	}
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	collector := NewCollector(config.MetricsConfig{}, nil)
	collector.RecordProviderRetry("fred")

	if got := testutil.ToFloat64(collector.providerMetrics.retries.WithLabelValues("fred")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	expected := `
# HELP conduit_provider_retries_total Total number of retried upstream attempts
# TYPE conduit_provider_retries_total counter
conduit_provider_retries_total{provider="fred"} 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "conduit_provider_retries_total"); err != nil {
		t.Error(err)
	}
}

func TestCollector_ProviderMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordProviderRequest("finnhub", "quote", "success", 120*time.Millisecond)
	collector.RecordProviderRequest("finnhub", "quote", "success", 300*time.Millisecond)
	collector.RecordProviderRequest("finnhub", "quote", "error", 2*time.Second)
	collector.RecordProviderError("finnhub", "server")
	collector.RecordProviderRetry("finnhub")
	collector.RecordProviderRetry("finnhub")

	pm := collector.providerMetrics
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"success requests", testutil.ToFloat64(pm.requests.WithLabelValues("finnhub", "quote", "success")), 2},
		{"error requests", testutil.ToFloat64(pm.requests.WithLabelValues("finnhub", "quote", "error")), 1},
		{"server errors", testutil.ToFloat64(pm.errors.WithLabelValues("finnhub", "server")), 1},
		{"retries", testutil.ToFloat64(pm.retries.WithLabelValues("finnhub")), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(pm.duration, "test_provider_request_duration_seconds"); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestCollector_CircuitMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.SetCircuitState("sec", breaker.StateClosed)
	if got := testutil.ToFloat64(collector.circuitMetrics.state.WithLabelValues("sec")); got != 0 {
		t.Errorf("initial state = %v, want 0", got)
	}

	transitions := []struct {
		from, to breaker.State
		want     float64
	}{
		{breaker.StateClosed, breaker.StateOpen, 2},
		{breaker.StateOpen, breaker.StateHalfOpen, 1},
		{breaker.StateHalfOpen, breaker.StateOpen, 2},
		{breaker.StateOpen, breaker.StateHalfOpen, 1},
		{breaker.StateHalfOpen, breaker.StateClosed, 0},
	}
	for _, tr := range transitions {
		collector.ObserveStateChange("sec", tr.from, tr.to)
		if got := testutil.ToFloat64(collector.circuitMetrics.state.WithLabelValues("sec")); got != tr.want {
			t.Errorf("state after %s->%s = %v, want %v", tr.from, tr.to, got, tr.want)
		}
	}

	got := testutil.ToFloat64(collector.circuitMetrics.transitions.WithLabelValues("sec", "open", "half_open"))
	if got != 2 {
		t.Errorf("open->half_open transitions = %v, want 2", got)
	}
}

func TestCollector_BreakerHook(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	br := breaker.New("census", breaker.Config{
		FailureThreshold:         1,
		Window:                   time.Minute,
		OpenDuration:             time.Minute,
		HalfOpenSuccessThreshold: 1,
		HalfOpenMaxCalls:         1,
	}, breaker.WithStateChange(collector.ObserveStateChange))

	if err := br.Allow(); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	br.RecordFailure()

	if got := testutil.ToFloat64(collector.circuitMetrics.state.WithLabelValues("census")); got != 2 {
		t.Errorf("state = %v, want 2 (open)", got)
	}
}

func TestCollector_RateLimitMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.ObserveRateLimitWait("alphavantage", 200*time.Millisecond)
	collector.ObserveRateLimitRejection("alphavantage")
	collector.ObserveRateLimitRejection("alphavantage")

	if got := testutil.ToFloat64(collector.rateLimitMetrics.rejections.WithLabelValues("alphavantage")); got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(collector.rateLimitMetrics.wait); n != 1 {
		t.Errorf("wait series = %d, want 1", n)
	}
}

func TestCollector_CacheMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.ObserveCacheHit("quote", true)
	collector.ObserveCacheHit("quote", false)
	collector.ObserveCacheHit("quote", true)
	collector.ObserveCacheMiss("filings")
	collector.ObserveCacheEviction(5)
	collector.ObserveCacheEviction(0)

	cm := collector.cacheMetrics
	if got := testutil.ToFloat64(cm.hitsTotal.WithLabelValues("quote", FreshnessFresh)); got != 2 {
		t.Errorf("fresh hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(cm.hitsTotal.WithLabelValues("quote", FreshnessStale)); got != 1 {
		t.Errorf("stale hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(cm.missesTotal.WithLabelValues("filings")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(cm.evictionsTotal); got != 5 {
		t.Errorf("evictions = %v, want 5", got)
	}
}

func TestCollector_QueryAndFallback(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.ObserveQuery("quote", "fresh", 80*time.Millisecond)
	collector.ObserveQuery("quote", "stale", 2*time.Second)
	collector.ObserveFallback("quote", fallback.OutcomeStale)
	collector.ObserveFallback("quote", fallback.OutcomeUnavailable)

	rm := collector.requestMetrics
	if got := testutil.ToFloat64(rm.queriesTotal.WithLabelValues("quote", "stale")); got != 1 {
		t.Errorf("stale queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.fallbackTotal.WithLabelValues("quote", "unavailable")); got != 1 {
		t.Errorf("unavailable fallbacks = %v, want 1", got)
	}
}

func TestCollector_CapabilityCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.capabilities = NewCardinalityLimiter(2)

	collector.ObserveQuery("quote", "fresh", time.Millisecond)
	collector.ObserveQuery("filings", "fresh", time.Millisecond)
	collector.ObserveQuery("made-up", "invalid", time.Millisecond)
	collector.ObserveQuery("quote", "fresh", time.Millisecond)

	rm := collector.requestMetrics
	if got := testutil.ToFloat64(rm.queriesTotal.WithLabelValues("other", "invalid")); got != 1 {
		t.Errorf("other queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.queriesTotal.WithLabelValues("quote", "fresh")); got != 2 {
		t.Errorf("quote queries = %v, want 2", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = config.BoolPtr(false)
	collector := NewCollector(cfg, nil)

	collector.RecordProviderRequest("fred", "economic_series", "success", time.Second)
	collector.RecordProviderError("fred", "timeout")
	collector.ObserveCacheHit("economic_series", true)
	collector.ObserveQuery("economic_series", "fresh", time.Second)
	collector.ObserveStateChange("fred", breaker.StateClosed, breaker.StateOpen)

	if n := testutil.CollectAndCount(collector.providerMetrics.requests); n != 0 {
		t.Errorf("provider request series = %d, want 0", n)
	}
	if n := testutil.CollectAndCount(collector.cacheMetrics.hitsTotal); n != 0 {
		t.Errorf("cache hit series = %d, want 0", n)
	}
	if n := testutil.CollectAndCount(collector.requestMetrics.queriesTotal); n != 0 {
		t.Errorf("query series = %d, want 0", n)
	}
	if n := testutil.CollectAndCount(collector.circuitMetrics.state); n != 0 {
		t.Errorf("circuit state series = %d, want 0", n)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(fmt.Sprintf("v%d", i)) {
			t.Errorf("Allow(v%d) = false, want true", i)
		}
	}
	if limiter.Allow("v3") {
		t.Error("Allow() past the limit = true, want false")
	}
	if !limiter.Allow("v0") {
		t.Error("Allow() for a tracked value = false, want true")
	}
	if limiter.Count() != 3 {
		t.Errorf("Count() = %d, want 3", limiter.Count())
	}
}

func TestHandler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordProviderRequest("bls", "economic_series", "success", time.Second)

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `test_provider_requests_total{capability="economic_series",provider="bls",status="success"} 1`) {
		t.Errorf("body missing provider request series:\n%s", body)
	}
}
