package providers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// Recorder receives per-attempt outcomes. metrics.Collector implements it.
type Recorder interface {
	RecordProviderRequest(provider, capability, status string, duration time.Duration)
	RecordProviderError(provider string, category string)
	RecordProviderRetry(provider string)
}

// ClientConfig contains the resilience settings of one provider.
type ClientConfig struct {
	// Timeout bounds each upstream attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries of transient failures.
	MaxRetries int

	// Retry is the backoff policy between attempts.
	Retry RetryPolicy

	// MaxWait bounds how long an attempt may queue for a rate limit token.
	MaxWait time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithSleep overrides how the client waits between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Status is the last observed outcome of a provider.
type Status struct {
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
	LastErrorAt   time.Time `json:"last_error_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	Attempts      int64     `json:"attempts"`
	Retries       int64     `json:"retries"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
}

// Client wraps an Adapter with its provider's circuit breaker, rate limit
// bucket, per-attempt timeout and retry policy.
//
// Call sequence: breaker.Allow, then for every attempt bucket.Acquire and
// Adapter.Fetch, retrying transient failures with backoff. The final
// outcome is recorded once in the breaker. A token, once acquired, is never
// returned, even if the attempt is cancelled.
type Client struct {
	adapter  Adapter
	breaker  *breaker.Breaker
	bucket   *ratelimit.Bucket
	cfg      ClientConfig
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	sleep    func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status Status

	attempts  atomic.Int64
	retries   atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// NewClient creates a Client. br and bucket must belong to the adapter's
// provider and are shared with nothing else.
func NewClient(adapter Adapter, br *breaker.Breaker, bucket *ratelimit.Bucket, cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		adapter: adapter,
		breaker: br,
		bucket:  bucket,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer(""),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("provider", adapter.Name())
	return c
}

// Name returns the provider id.
func (c *Client) Name() string {
	return c.adapter.Name()
}

// Supports reports whether the adapter serves capability.
func (c *Client) Supports(capability string) bool {
	return Supports(c.adapter, capability)
}

// Breaker returns the provider's circuit breaker.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// Bucket returns the provider's rate limit bucket.
func (c *Client) Bucket() *ratelimit.Bucket {
	return c.bucket
}

// Tokens returns the tokens remaining in the provider's bucket.
func (c *Client) Tokens() float64 {
	return c.bucket.Tokens()
}

// CircuitState returns the provider's breaker state.
func (c *Client) CircuitState() breaker.State {
	return c.breaker.State()
}

// Status returns the last observed outcome and attempt counters.
func (c *Client) Status() Status {
	c.mu.RLock()
	s := c.status
	c.mu.RUnlock()

	s.Attempts = c.attempts.Load()
	s.Retries = c.retries.Load()
	s.Successes = c.successes.Load()
	s.Failures = c.failures.Load()
	return s
}

// Close closes the adapter.
func (c *Client) Close() error {
	return c.adapter.Close()
}

// Call fetches capability from the provider.
//
// It returns *breaker.OpenError without any network call while the breaker
// rejects traffic, *ratelimit.ExceededError when no token is available in
// time for the first attempt, *ValidationError for parameters the adapter
// refuses, the context error if ctx ends, and otherwise the last
// *ProviderError once retries are exhausted or a permanent failure occurs.
func (c *Client) Call(ctx context.Context, capability string, params Params) (*Response, error) {
	if !c.Supports(capability) {
		return nil, Unsupported(c.Name(), capability)
	}
	if err := c.adapter.Validate(capability, params); err != nil {
		return nil, err
	}

	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.Retry.Backoff(attempt, lastErr)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				c.logger.Debug("retry backoff exceeds deadline, giving up",
					"capability", capability,
					"attempt", attempt,
					"backoff", delay,
				)
				break
			}

			c.logger.Debug("retrying request",
				"capability", capability,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"backoff", delay,
				"error", lastErr,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, c.abandon(err, lastErr)
			}
			c.retries.Add(1)
			if c.recorder != nil {
				c.recorder.RecordProviderRetry(c.Name())
			}
		}

		if err := c.bucket.Acquire(ctx, 1, c.cfg.MaxWait); err != nil {
			if lastErr == nil || ctx.Err() != nil {
				return nil, c.abandon(err, lastErr)
			}
			// Out of quota for a retry: the upstream failure stands.
			c.logger.Debug("no quota for retry", "capability", capability, "error", err)
			break
		}

		data, err := c.attempt(ctx, capability, params, attempt)
		if err == nil {
			c.breaker.RecordSuccess()
			c.recordSuccess()
			return &Response{
				Provider:   c.Name(),
				Capability: capability,
				Data:       data,
				FetchedAt:  time.Now(),
				Attempts:   attempt + 1,
			}, nil
		}

		if ctx.Err() != nil {
			return nil, c.abandon(ctx.Err(), lastErr)
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			c.breaker.Release()
			return nil, err
		}

		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}

	c.breaker.RecordFailure()
	c.recordFailure(lastErr)
	c.logger.Warn("provider call failed",
		"capability", capability,
		"category", string(CategoryOf(lastErr)),
		"error", lastErr,
	)
	return nil, lastErr
}

// attempt performs one upstream request bounded by the provider timeout.
func (c *Client) attempt(ctx context.Context, capability string, params Params, n int) ([]byte, error) {
	c.attempts.Add(1)

	attemptCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	attemptCtx, span := c.tracer.Start(attemptCtx, "provider.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.AttemptAttributes(c.Name(), capability, n+1)...),
	)
	defer span.End()

	start := time.Now()
	data, err := c.adapter.Fetch(attemptCtx, capability, params)
	duration := time.Since(start)

	tracing.SetStatus(span, err)
	status := "success"
	if err != nil {
		status = "error"
		if cat := CategoryOf(err); cat != "" {
			tracing.SetErrorCategory(span, string(cat))
			if c.recorder != nil {
				c.recorder.RecordProviderError(c.Name(), string(cat))
			}
		}
	}
	if c.recorder != nil {
		c.recorder.RecordProviderRequest(c.Name(), capability, status, duration)
	}

	return data, err
}

// abandon handles a call given up before an outcome could be attributed
// to the upstream. If an upstream failure was already observed it is
// recorded; otherwise the breaker slot is released.
func (c *Client) abandon(err, lastErr error) error {
	if lastErr != nil && IsRetryable(lastErr) && !errors.Is(err, context.Canceled) {
		c.breaker.RecordFailure()
		c.recordFailure(lastErr)
		return lastErr
	}
	c.breaker.Release()
	return err
}

func (c *Client) recordSuccess() {
	c.successes.Add(1)
	c.mu.Lock()
	c.status.LastSuccessAt = time.Now()
	c.mu.Unlock()
}

func (c *Client) recordFailure(err error) {
	c.failures.Add(1)
	c.mu.Lock()
	c.status.LastErrorAt = time.Now()
	if err != nil {
		c.status.LastError = err.Error()
	}
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
