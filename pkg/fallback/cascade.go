package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/cache"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// Outcomes reported to the Observer.
const (
	OutcomeFresh       = "fresh"
	OutcomeStale       = "stale"
	OutcomeUnavailable = "unavailable"
)

// staleLookupTimeout bounds the terminal cache read, which runs after the
// caller's deadline may already have passed.
const staleLookupTimeout = time.Second

// Caller is one provider in a chain. *providers.Client implements it.
type Caller interface {
	Name() string
	Supports(capability string) bool
	CircuitState() breaker.State
	Call(ctx context.Context, capability string, params providers.Params) (*providers.Response, error)
}

// Observer receives cascade outcomes. metrics.Collector implements it.
type Observer interface {
	ObserveFallback(capability, outcome string)
}

// Options configures a Cascade.
type Options struct {
	// Chains maps each capability to its providers in priority order.
	Chains map[string][]string

	// Cache receives every successful payload and is consulted for stale
	// data once the chain is exhausted. Nil disables both.
	Cache *cache.Cache

	Observer Observer
	Logger   *slog.Logger
}

// Result is a resolved payload.
type Result struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Stale     bool            `json:"stale"`

	// Attempts lists the providers that failed before the result was
	// produced. It is empty when the first provider answered.
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Cascade tries the providers of a capability one after another until one
// answers. It is safe for concurrent use.
type Cascade struct {
	callers  map[string]Caller
	cache    *cache.Cache
	observer Observer
	logger   *slog.Logger
	stats    *Stats

	mu     sync.RWMutex
	chains map[string][]string
}

// New creates a cascade over callers. Every provider named in a chain must
// be among callers and serve the capability.
func New(callers []Caller, opts Options) (*Cascade, error) {
	c := &Cascade{
		callers:  make(map[string]Caller, len(callers)),
		cache:    opts.Cache,
		observer: opts.Observer,
		logger:   opts.Logger,
		stats:    NewStats(),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	for _, caller := range callers {
		c.callers[caller.Name()] = caller
	}
	if err := c.SetChains(opts.Chains); err != nil {
		return nil, err
	}
	return c, nil
}

// SetChains replaces the chain configuration. Resolves already running keep
// the chain they started with.
func (c *Cascade) SetChains(chains map[string][]string) error {
	cp := make(map[string][]string, len(chains))
	var errs []error
	for capability, names := range chains {
		if len(names) == 0 {
			errs = append(errs, fmt.Errorf("capability %q: empty chain", capability))
			continue
		}
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			caller, ok := c.callers[name]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("capability %q: unknown provider %q", capability, name))
			case !caller.Supports(capability):
				errs = append(errs, fmt.Errorf("capability %q: provider %q does not serve it", capability, name))
			case seen[name]:
				errs = append(errs, fmt.Errorf("capability %q: provider %q listed twice", capability, name))
			}
			seen[name] = true
		}
		cp[capability] = append([]string(nil), names...)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.mu.Lock()
	c.chains = cp
	c.mu.Unlock()
	return nil
}

// Chain returns the providers for capability in priority order.
func (c *Cascade) Chain(capability string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.chains[capability]...)
}

// Capabilities returns the capabilities with a chain, sorted.
func (c *Cascade) Capabilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.chains))
	for k := range c.chains {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Providers returns the callers serving capability in chain order.
func (c *Cascade) Providers(capability string) []Caller {
	names := c.Chain(capability)
	out := make([]Caller, 0, len(names))
	for _, name := range names {
		out = append(out, c.callers[name])
	}
	return out
}

// Stats returns the cascade counters.
func (c *Cascade) Stats() *Stats {
	return c.stats
}

// Resolve fetches capability from the first provider in its chain that
// answers.
//
// Providers with an open breaker are skipped without a request. A
// *providers.ValidationError from any provider stops the cascade and is
// returned as is. Once ctx is done the remaining providers are skipped.
// When no provider answers, a cached entry no older than the maximum
// stale age is returned with Stale set; otherwise the error is an
// *AllProvidersUnavailableError.
func (c *Cascade) Resolve(ctx context.Context, capability string, params providers.Params) (*Result, error) {
	chain := c.Chain(capability)
	if len(chain) == 0 {
		return nil, &UnknownCapabilityError{Capability: capability, Known: c.Capabilities()}
	}
	c.stats.IncrementTotal()

	fingerprint := cache.Fingerprint(capability, params)
	attempts := make([]Attempt, 0, len(chain))
	span := trace.SpanFromContext(ctx)

	for i, name := range chain {
		caller := c.callers[name]

		if err := ctx.Err(); err != nil {
			attempts = append(attempts, contextAttempt(name, err))
			continue
		}
		if caller.CircuitState() == breaker.StateOpen {
			c.stats.IncrementSkipped(name)
			attempts = append(attempts, Attempt{
				Provider: name,
				Reason:   ReasonCircuitOpen,
				Error:    breaker.ErrCircuitOpen.Error(),
			})
			tracing.AddCascadeEvent(span, name, string(ReasonCircuitOpen))
			continue
		}

		resp, err := caller.Call(ctx, capability, params)
		if err == nil {
			return c.served(ctx, capability, fingerprint, resp, i, attempts), nil
		}
		if errors.Is(err, providers.ErrValidation) {
			c.logger.Debug("request rejected by provider",
				"capability", capability,
				"provider", name,
				"error", err,
			)
			return nil, err
		}

		a := classify(name, err)
		attempts = append(attempts, a)
		tracing.AddCascadeEvent(span, name, string(a.Reason))
		c.logger.Info("provider failed, trying next",
			"capability", capability,
			"provider", name,
			"reason", string(a.Reason),
			"error", err,
		)
	}

	if c.cache != nil {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), staleLookupTimeout)
		entry, ok := c.cache.GetStale(lookupCtx, capability, fingerprint)
		cancel()
		if ok {
			c.stats.IncrementStale()
			c.observe(capability, OutcomeStale)
			c.logger.Warn("all providers failed, serving stale data",
				"capability", capability,
				"source", entry.Source,
				"fetched_at", entry.FetchedAt,
			)
			return &Result{
				Data:      entry.Payload,
				Source:    entry.Source,
				FetchedAt: entry.FetchedAt,
				Stale:     true,
				Attempts:  attempts,
			}, nil
		}
	}

	c.stats.IncrementUnavailable()
	c.observe(capability, OutcomeUnavailable)
	err := &AllProvidersUnavailableError{Capability: capability, Attempts: attempts}
	c.logger.Error("all providers unavailable", "capability", capability, "error", err)
	return nil, err
}

func (c *Cascade) served(ctx context.Context, capability, fingerprint string, resp *providers.Response, position int, attempts []Attempt) *Result {
	c.stats.IncrementProvider(resp.Provider)
	if position > 0 {
		c.stats.IncrementFallback()
		c.logger.Info("served by fallback provider",
			"capability", capability,
			"provider", resp.Provider,
			"position", position,
		)
	}
	c.observe(capability, OutcomeFresh)

	if c.cache != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), staleLookupTimeout)
		_, err := c.cache.Set(writeCtx, fingerprint, capability, resp.Provider, resp.Data, resp.FetchedAt)
		cancel()
		if err != nil {
			c.logger.Warn("cache write failed", "capability", capability, "provider", resp.Provider, "error", err)
		}
	}

	return &Result{
		Data:      resp.Data,
		Source:    resp.Provider,
		FetchedAt: resp.FetchedAt,
		Attempts:  attempts,
	}
}

func (c *Cascade) observe(capability, outcome string) {
	if c.observer != nil {
		c.observer.ObserveFallback(capability, outcome)
	}
}

// classify turns a Call error into an attempt record.
func classify(provider string, err error) Attempt {
	a := Attempt{Provider: provider, Err: err, Error: err.Error()}

	var perr *providers.ProviderError
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		a.Reason = ReasonCircuitOpen
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		a.Reason = ReasonRateLimited
	case errors.As(err, &perr):
		a.Category = perr.Category
		if perr.Retryable() {
			a.Reason = ReasonTransient
		} else {
			a.Reason = ReasonPermanent
		}
	case errors.Is(err, context.DeadlineExceeded):
		a.Reason = ReasonDeadline
	case errors.Is(err, context.Canceled):
		a.Reason = ReasonCancelled
	default:
		a.Reason = ReasonPermanent
	}
	return a
}

func contextAttempt(provider string, err error) Attempt {
	reason := ReasonDeadline
	if errors.Is(err, context.Canceled) {
		reason = ReasonCancelled
	}
	return Attempt{Provider: provider, Reason: reason, Err: err, Error: err.Error()}
}
