package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/conduit/pkg/cache"
	"mercator-hq/conduit/pkg/fallback"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// DefaultTimeout bounds a query when neither the caller nor the
// configuration sets a deadline.
const DefaultTimeout = 10 * time.Second

// Options are per-query settings.
type Options struct {
	// Timeout is the deadline for the whole query, cascade included.
	// Zero uses the gateway default.
	Timeout time.Duration

	// ForceFresh skips the initial cache read. The cache is still used as
	// the stale fallback when every provider fails.
	ForceFresh bool
}

// Result is a query answer.
type Result struct {
	// Data is the upstream JSON payload.
	Data json.RawMessage `json:"data"`

	// Source is the provider that produced Data.
	Source string `json:"source"`

	// FetchedAt is when Source returned Data.
	FetchedAt time.Time `json:"fetchedAt"`

	// Stale is set when Data is past its TTL and was served because no
	// provider could answer.
	Stale bool `json:"stale"`

	// Cached is set when Data came from the cache without an upstream call.
	Cached bool `json:"cached"`

	// RequestID identifies the query in logs and traces.
	RequestID string `json:"requestId"`
}

// Observer receives query outcomes. metrics.Collector implements it.
type Observer interface {
	ObserveQuery(capability, outcome string, duration time.Duration)
}

// Config configures a Gateway.
type Config struct {
	// DefaultTimeout applies to queries without their own timeout.
	DefaultTimeout time.Duration

	// Capabilities holds the parameter rules per capability. Capabilities
	// without an entry accept any parameters.
	Capabilities map[string]providers.CapabilitySpec
}

// Option configures optional Gateway behaviour.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTracer sets the tracer used for query spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithObserver sets the query observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		g.observer = o
	}
}

// Gateway is the entry point for data queries. It checks the cache,
// collapses concurrent identical queries into one upstream load and runs
// the fallback cascade under one deadline.
type Gateway struct {
	cascade  *fallback.Cascade
	cache    *cache.Cache
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// New creates a gateway.
func New(cascade *fallback.Cascade, c *cache.Cache, cfg Config, opts ...Option) *Gateway {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if c == nil {
		c = cache.New(nil, cache.Options{})
	}
	g := &Gateway{
		cascade: cascade,
		cache:   c,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cascade returns the fallback cascade.
func (g *Gateway) Cascade() *fallback.Cascade {
	return g.cascade
}

// Cache returns the response cache.
func (g *Gateway) Cache() *cache.Cache {
	return g.cache
}

// Capabilities returns the capabilities the gateway can serve.
func (g *Gateway) Capabilities() []string {
	return g.cascade.Capabilities()
}

// Query answers capability for params.
//
// Errors are *providers.ValidationError for bad input,
// *ratelimit.ExceededError when every provider was refused by its local
// rate limiter, *fallback.AllProvidersUnavailableError when the chain is
// exhausted and no usable cache entry exists, or the context error when ctx
// ends before a result is available.
func (g *Gateway) Query(ctx context.Context, capability string, params providers.Params, opts Options) (*Result, error) {
	start := time.Now()

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	ctx = logging.WithCapability(ctx, capability)
	logger := g.logger.With("request_id", requestID, "capability", capability)

	ctx, span := g.tracer.Start(ctx, "gateway.query",
		trace.WithAttributes(tracing.QueryAttributes(requestID, capability, opts.ForceFresh)...),
	)
	defer span.End()

	res, outcome, err := g.query(ctx, logger, capability, params, opts)
	if res != nil {
		res.RequestID = requestID
		tracing.SetResultAttributes(span, res.Source, res.Stale, res.Cached)
	}
	span.SetAttributes(tracing.AttrOutcome.String(outcome))
	tracing.SetStatus(span, err)
	if g.observer != nil {
		g.observer.ObserveQuery(capability, outcome, time.Since(start))
	}
	return res, err
}

// Query outcomes.
const (
	outcomeCached      = "cached"
	outcomeFresh       = "fresh"
	outcomeStale       = "stale"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeUnavailable = "unavailable"
	outcomeTimeout     = "timeout"
	outcomeCancelled   = "cancelled"
)

func (g *Gateway) query(ctx context.Context, logger *slog.Logger, capability string, params providers.Params, opts Options) (*Result, string, error) {
	if err := distinctKeys(params); err != nil {
		return nil, outcomeInvalid, err
	}
	params = params.Normalize()
	if err := g.validate(capability, params); err != nil {
		return nil, outcomeInvalid, err
	}
	fingerprint := cache.Fingerprint(capability, params)

	if !opts.ForceFresh {
		if e, ok := g.cache.GetFresh(ctx, capability, fingerprint); ok {
			logger.Debug("served from cache", "source", e.Source, "age", e.Age(time.Now()))
			return &Result{
				Data:      e.Payload,
				Source:    e.Source,
				FetchedAt: e.FetchedAt,
				Cached:    true,
			}, outcomeCached, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.cfg.DefaultTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	loaded, err := g.cache.FetchOrLoad(queryCtx, fingerprint, func(ctx context.Context) (cache.Result, error) {
		r, err := g.cascade.Resolve(ctx, capability, params)
		if err != nil {
			return cache.Result{}, err
		}
		return cache.Result{
			Entry: &cache.Entry{
				Fingerprint: fingerprint,
				Capability:  capability,
				Payload:     r.Data,
				Source:      r.Source,
				FetchedAt:   r.FetchedAt,
			},
			Stale: r.Stale,
		}, nil
	})
	if err != nil {
		return g.failed(ctx, logger, capability, fingerprint, err)
	}

	if loaded.Shared {
		logger.Debug("shared in-flight load", "source", loaded.Entry.Source)
	}
	outcome := outcomeFresh
	if loaded.Stale {
		outcome = outcomeStale
	}
	return &Result{
		Data:      loaded.Entry.Payload,
		Source:    loaded.Entry.Source,
		FetchedAt: loaded.Entry.FetchedAt,
		Stale:     loaded.Stale,
	}, outcome, nil
}

// failed maps a load error to the caller-facing error. When the deadline
// ran out while waiting on another caller's load, a stale entry is still
// served if one exists.
func (g *Gateway) failed(ctx context.Context, logger *slog.Logger, capability, fingerprint string, err error) (*Result, string, error) {
	var unavailable *fallback.AllProvidersUnavailableError
	switch {
	case errors.As(err, &unavailable):
		if unavailable.RateLimitedOnly() {
			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				return nil, outcomeRateLimited, exceeded
			}
		}
		return nil, outcomeUnavailable, err

	case errors.Is(err, providers.ErrValidation):
		return nil, outcomeInvalid, err

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if e, ok := g.cache.GetStale(lookupCtx, capability, fingerprint); ok {
			logger.Warn("query deadline exceeded, serving stale data", "source", e.Source)
			return &Result{
				Data:      e.Payload,
				Source:    e.Source,
				FetchedAt: e.FetchedAt,
				Stale:     true,
			}, outcomeStale, nil
		}
		return nil, outcomeTimeout, fmt.Errorf("query %s: %w", capability, err)

	case errors.Is(err, context.Canceled):
		return nil, outcomeCancelled, err

	case errors.Is(err, context.DeadlineExceeded):
		return nil, outcomeTimeout, err
	}
	return nil, outcomeUnavailable, err
}

func (g *Gateway) validate(capability string, params providers.Params) error {
	if capability == "" {
		return &providers.ValidationError{Field: "capability", Message: "is required"}
	}
	if len(g.cascade.Chain(capability)) == 0 {
		return &fallback.UnknownCapabilityError{Capability: capability, Known: g.cascade.Capabilities()}
	}
	if spec, ok := g.cfg.Capabilities[capability]; ok {
		return spec.Validate(params)
	}
	return nil
}

// distinctKeys rejects parameter names that only differ by case or
// surrounding space, which Normalize would merge into one key.
func distinctKeys(params providers.Params) error {
	seen := make(map[string]string, len(params))
	for _, k := range params.Keys() {
		folded := strings.ToLower(strings.TrimSpace(k))
		if folded == "" || strings.TrimSpace(params[k]) == "" {
			continue
		}
		if prev, ok := seen[folded]; ok {
			return &providers.ValidationError{
				Field:   folded,
				Message: fmt.Sprintf("given more than once (%q and %q)", prev, k),
			}
		}
		seen[folded] = k
	}
	return nil
}
