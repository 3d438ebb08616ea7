package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/cache"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
)

type fakeCaller struct {
	name  string
	caps  []string
	state breaker.State

	mu    sync.Mutex
	errs  []error
	calls int
}

func newFake(name string, errs ...error) *fakeCaller {
	return &fakeCaller{name: name, caps: []string{providers.CapabilityQuote}, errs: errs}
}

func (f *fakeCaller) Name() string                { return f.name }
func (f *fakeCaller) CircuitState() breaker.State { return f.state }

func (f *fakeCaller) Supports(capability string) bool {
	for _, c := range f.caps {
		if c == capability {
			return true
		}
	}
	return false
}

func (f *fakeCaller) Call(ctx context.Context, capability string, params providers.Params) (*providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &providers.Response{
		Provider:   f.name,
		Capability: capability,
		Data:       json.RawMessage(`{"from":"` + f.name + `"}`),
		FetchedAt:  time.Now(),
	}, nil
}

func (f *fakeCaller) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveFallback(capability, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func serverError(provider string) error {
	return &providers.ProviderError{Provider: provider, Category: providers.CategoryServerError, StatusCode: 503}
}

func newTestCascade(t *testing.T, c *cache.Cache, obs Observer, callers ...*fakeCaller) *Cascade {
	t.Helper()
	chain := make([]string, len(callers))
	list := make([]Caller, len(callers))
	for i, f := range callers {
		chain[i] = f.name
		list[i] = f
	}
	cascade, err := New(list, Options{
		Chains:   map[string][]string{providers.CapabilityQuote: chain},
		Cache:    c,
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return cascade
}

var aapl = providers.Params{"symbol": "AAPL"}

func TestResolve_FirstSuccessWins(t *testing.T) {
	a := newFake("a", serverError("a"))
	b := newFake("b")
	c := newFake("c")
	obs := &countingObserver{}
	store := cache.New(cache.NewMemoryStore(), cache.Options{})
	cascade := newTestCascade(t, store, obs, a, b, c)

	res, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Source != "b" || res.Stale {
		t.Errorf("Resolve() = source %q stale %v, want b, false", res.Source, res.Stale)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Provider != "a" || res.Attempts[0].Reason != ReasonTransient {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
	if got := c.Calls(); got != 0 {
		t.Errorf("provider after the winner was called %d times", got)
	}

	fp := cache.Fingerprint(providers.CapabilityQuote, aapl)
	entry, ok := store.GetFresh(context.Background(), providers.CapabilityQuote, fp)
	if !ok || entry.Source != "b" || string(entry.Payload) != `{"from":"b"}` {
		t.Errorf("cache after resolve = %+v, %v", entry, ok)
	}

	snap := cascade.Stats().Snapshot()
	if snap.Total != 1 || snap.Fallbacks != 1 || snap.ServedBy["b"] != 1 {
		t.Errorf("stats = %+v", snap)
	}
	if obs.outcomes[OutcomeFresh] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestResolve_SkipsOpenBreaker(t *testing.T) {
	a := newFake("a")
	a.state = breaker.StateOpen
	b := newFake("b")
	cascade := newTestCascade(t, nil, nil, a, b)

	res, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if a.Calls() != 0 {
		t.Errorf("open provider was called %d times", a.Calls())
	}
	if res.Source != "b" {
		t.Errorf("Source = %q, want b", res.Source)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Reason != ReasonCircuitOpen {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
	if got := cascade.Stats().Snapshot().Skipped["a"]; got != 1 {
		t.Errorf("Skipped[a] = %d, want 1", got)
	}
}

func TestResolve_StaleWhenAllFail(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.New(cache.NewMemoryStore(), cache.Options{
		DefaultTTL:  time.Minute,
		MaxStaleAge: time.Hour,
		Now:         clock,
	})
	fp := cache.Fingerprint(providers.CapabilityQuote, aapl)
	fetched := now.Add(-10 * time.Minute)
	if _, err := store.Set(context.Background(), fp, providers.CapabilityQuote, "a", json.RawMessage(`{"old":true}`), fetched); err != nil {
		t.Fatal(err)
	}

	obs := &countingObserver{}
	cascade := newTestCascade(t, store, obs, newFake("a", serverError("a")), newFake("b", serverError("b")))

	res, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !res.Stale || res.Source != "a" || string(res.Data) != `{"old":true}` {
		t.Errorf("Resolve() = %+v, want stale entry from a", res)
	}
	if !res.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", res.FetchedAt, fetched)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("Attempts = %+v, want 2", res.Attempts)
	}
	if obs.outcomes[OutcomeStale] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestResolve_StaleTooOld(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := cache.New(cache.NewMemoryStore(), cache.Options{
		DefaultTTL:  time.Minute,
		MaxStaleAge: time.Hour,
		Now:         func() time.Time { return now },
	})
	fp := cache.Fingerprint(providers.CapabilityQuote, aapl)
	_, _ = store.Set(context.Background(), fp, providers.CapabilityQuote, "a", json.RawMessage(`{}`), now.Add(-2*time.Hour))

	cascade := newTestCascade(t, store, nil, newFake("a", serverError("a")))
	_, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	if !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Errorf("err = %v, want ErrAllProvidersUnavailable", err)
	}
}

func TestResolve_AllProvidersUnavailable(t *testing.T) {
	open := newFake("b")
	open.state = breaker.StateOpen
	limited := newFake("c", &ratelimit.ExceededError{Provider: "c", Requested: 1, Wait: time.Second})
	auth := &providers.ProviderError{Provider: "a", Category: providers.CategoryAuth, StatusCode: 401}

	obs := &countingObserver{}
	cascade := newTestCascade(t, nil, obs, newFake("a", auth), open, limited)

	_, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	var uerr *AllProvidersUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *AllProvidersUnavailableError", err)
	}
	if uerr.Capability != providers.CapabilityQuote {
		t.Errorf("Capability = %q", uerr.Capability)
	}

	want := []struct {
		provider string
		reason   Reason
	}{
		{"a", ReasonPermanent},
		{"b", ReasonCircuitOpen},
		{"c", ReasonRateLimited},
	}
	if len(uerr.Attempts) != len(want) {
		t.Fatalf("Attempts = %+v", uerr.Attempts)
	}
	for i, w := range want {
		got := uerr.Attempts[i]
		if got.Provider != w.provider || got.Reason != w.reason {
			t.Errorf("Attempts[%d] = %s/%s, want %s/%s", i, got.Provider, got.Reason, w.provider, w.reason)
		}
	}
	if uerr.Attempts[0].Category != providers.CategoryAuth {
		t.Errorf("Attempts[0].Category = %q, want auth", uerr.Attempts[0].Category)
	}
	if uerr.RateLimitedOnly() {
		t.Error("RateLimitedOnly() = true with mixed reasons")
	}
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Error("attempt errors should be reachable through Unwrap")
	}
	if obs.outcomes[OutcomeUnavailable] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestResolve_RateLimitedOnly(t *testing.T) {
	exceeded := func(p string) error { return &ratelimit.ExceededError{Provider: p, Requested: 1, Wait: time.Second} }
	cascade := newTestCascade(t, nil, nil, newFake("a", exceeded("a")), newFake("b", exceeded("b")))

	_, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	var uerr *AllProvidersUnavailableError
	if !errors.As(err, &uerr) || !uerr.RateLimitedOnly() {
		t.Errorf("err = %v, want rate-limited-only unavailability", err)
	}
}

func TestResolve_ValidationStopsCascade(t *testing.T) {
	a := newFake("a", &providers.ValidationError{Field: "symbol", Message: "invalid"})
	b := newFake("b")
	cascade := newTestCascade(t, nil, nil, a, b)

	_, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
	if !errors.Is(err, providers.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
	if b.Calls() != 0 {
		t.Error("validation error must not fall back")
	}
}

func TestResolve_DoneContextSkipsRemaining(t *testing.T) {
	a := newFake("a", context.DeadlineExceeded)
	b := newFake("b")
	cascade := newTestCascade(t, nil, nil, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cascade.Resolve(ctx, providers.CapabilityQuote, aapl)
	var uerr *AllProvidersUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v", err)
	}
	if a.Calls() != 0 || b.Calls() != 0 {
		t.Errorf("calls = %d, %d, want none after cancellation", a.Calls(), b.Calls())
	}
	for _, at := range uerr.Attempts {
		if at.Reason != ReasonCancelled {
			t.Errorf("%s reason = %s, want %s", at.Provider, at.Reason, ReasonCancelled)
		}
	}
}

func TestResolve_UnknownCapability(t *testing.T) {
	cascade := newTestCascade(t, nil, nil, newFake("a"))
	_, err := cascade.Resolve(context.Background(), "weather", nil)

	var uerr *UnknownCapabilityError
	if !errors.As(err, &uerr) || !errors.Is(err, providers.ErrValidation) {
		t.Errorf("err = %v, want *UnknownCapabilityError", err)
	}
}

func TestNew_ValidatesChains(t *testing.T) {
	a := newFake("a")
	tests := []struct {
		name   string
		chains map[string][]string
	}{
		{"unknown provider", map[string][]string{providers.CapabilityQuote: {"a", "zz"}}},
		{"unsupported capability", map[string][]string{providers.CapabilityNews: {"a"}}},
		{"duplicate", map[string][]string{providers.CapabilityQuote: {"a", "a"}}},
		{"empty", map[string][]string{providers.CapabilityQuote: {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New([]Caller{a}, Options{Chains: tt.chains}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestResolve_TrippedClientFallsBackWithoutRequest drives a real client
// until its breaker opens and checks that later resolves go straight to
// the next provider.
func TestResolve_TrippedClientFallsBackWithoutRequest(t *testing.T) {
	adapter := &flakyAdapter{name: "primary"}
	primary := providers.NewClient(adapter,
		breaker.New("primary", breaker.Config{FailureThreshold: 3, OpenDuration: 30 * time.Second}),
		ratelimit.NewBucket("primary", ratelimit.Config{Capacity: 100, RefillRatePerSec: 100}),
		providers.ClientConfig{MaxRetries: 0},
	)
	backup := newFake("backup")

	cascade, err := New([]Caller{primary, backup}, Options{
		Chains: map[string][]string{providers.CapabilityQuote: {"primary", "backup"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		res, err := cascade.Resolve(context.Background(), providers.CapabilityQuote, aapl)
		if err != nil || res.Source != "backup" {
			t.Fatalf("Resolve() #%d = %+v, %v", i+1, res, err)
		}
	}
	if got := adapter.Calls(); got != 3 {
		t.Errorf("primary upstream calls = %d, want 3", got)
	}
	if primary.CircuitState() != breaker.StateOpen {
		t.Errorf("primary state = %v, want OPEN", primary.CircuitState())
	}
}

type flakyAdapter struct {
	name  string
	mu    sync.Mutex
	calls int
}

func (a *flakyAdapter) Name() string           { return a.name }
func (a *flakyAdapter) Capabilities() []string { return []string{providers.CapabilityQuote} }
func (a *flakyAdapter) Close() error           { return nil }

func (a *flakyAdapter) Validate(capability string, params providers.Params) error { return nil }

func (a *flakyAdapter) Fetch(ctx context.Context, capability string, params providers.Params) (json.RawMessage, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return nil, &providers.ProviderError{Provider: a.name, Category: providers.CategoryRateLimit, StatusCode: 429}
}

func (a *flakyAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"circuit open", breaker.ErrCircuitOpen, ReasonCircuitOpen},
		{"rate limited", &ratelimit.ExceededError{Provider: "a", Requested: 1}, ReasonRateLimited},
		{"server error", serverError("a"), ReasonTransient},
		{"client error", &providers.ProviderError{Provider: "a", Category: providers.CategoryClientError, StatusCode: 404}, ReasonPermanent},
		{"deadline", context.DeadlineExceeded, ReasonDeadline},
		{"cancelled", context.Canceled, ReasonCancelled},
		{"unclassified", errors.New("failed to build request"), ReasonPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("a", tt.err).Reason; got != tt.want {
				t.Errorf("classify(%v).Reason = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
