package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a single provider bucket.
type Config struct {
	// Capacity is the maximum number of tokens the bucket holds (burst size).
	Capacity int

	// RefillRatePerSec is the number of tokens added per second.
	RefillRatePerSec float64
}

// Observer receives limiter events. metrics.Collector implements it.
type Observer interface {
	ObserveRateLimitWait(provider string, wait time.Duration)
	ObserveRateLimitRejection(provider string)
}

// Bucket is a token bucket for one provider.
//
// The bucket delegates token accounting to golang.org/x/time/rate, whose
// reservations are computed from the supplied timestamp and queue in the
// order they are made. All methods are safe for concurrent use.
type Bucket struct {
	provider string
	capacity int
	rate     float64
	lim      *rate.Limiter
	clock    Clock
	observer Observer

	// lastRefill is the unix-nano timestamp of the most recent lazy refill.
	lastRefill atomic.Int64
}

// BucketState is a point-in-time view of a bucket.
type BucketState struct {
	Provider         string    `json:"provider"`
	Capacity         int       `json:"capacity"`
	TokensRemaining  float64   `json:"tokens_remaining"`
	RefillRatePerSec float64   `json:"refill_rate_per_sec"`
	LastRefillAt     time.Time `json:"last_refill_at"`
}

// NewBucket creates a full bucket for provider.
func NewBucket(provider string, cfg Config, opts ...Option) *Bucket {
	o := options{clock: SystemClock()}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bucket{
		provider: provider,
		capacity: cfg.Capacity,
		rate:     cfg.RefillRatePerSec,
		lim:      rate.NewLimiter(rate.Limit(cfg.RefillRatePerSec), cfg.Capacity),
		clock:    o.clock,
		observer: o.observer,
	}
	b.lastRefill.Store(o.clock.Now().UnixNano())
	return b
}

// Provider returns the provider id the bucket belongs to.
func (b *Bucket) Provider() string {
	return b.provider
}

// Capacity returns the maximum number of tokens.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// Acquire takes n tokens, waiting at most maxWait for them to refill.
//
// The wait budget is further capped by the context deadline. If the tokens
// cannot be available in time Acquire returns an *ExceededError without
// waiting. If ctx is cancelled while queued the reservation is released and
// ctx.Err() is returned.
func (b *Bucket) Acquire(ctx context.Context, n int, maxWait time.Duration) error {
	if n < 1 {
		n = 1
	}
	if n > b.capacity {
		b.reject()
		return &ExceededError{Provider: b.provider, Requested: n, MaxWait: maxWait}
	}

	now := b.clock.Now()
	b.lastRefill.Store(now.UnixNano())

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := deadline.Sub(now); remaining < maxWait {
			maxWait = remaining
		}
	}

	r := b.lim.ReserveN(now, n)
	if !r.OK() {
		b.reject()
		return &ExceededError{Provider: b.provider, Requested: n, MaxWait: maxWait}
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if delay > maxWait {
		r.CancelAt(now)
		b.reject()
		return &ExceededError{Provider: b.provider, Requested: n, Wait: delay, MaxWait: maxWait}
	}

	if b.observer != nil {
		b.observer.ObserveRateLimitWait(b.provider, delay)
	}

	select {
	case <-b.clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(b.clock.Now())
		return ctx.Err()
	}
}

// TryAcquire takes n tokens only if they are available right now.
func (b *Bucket) TryAcquire(n int) bool {
	now := b.clock.Now()
	b.lastRefill.Store(now.UnixNano())
	return b.lim.AllowN(now, n)
}

// Tokens returns the tokens available now, clamped to [0, capacity].
// Outstanding reservations of queued waiters are already subtracted.
func (b *Bucket) Tokens() float64 {
	t := b.lim.TokensAt(b.clock.Now())
	return math.Max(0, math.Min(float64(b.capacity), t))
}

// State returns a snapshot of the bucket.
func (b *Bucket) State() BucketState {
	return BucketState{
		Provider:         b.provider,
		Capacity:         b.capacity,
		TokensRemaining:  b.Tokens(),
		RefillRatePerSec: b.rate,
		LastRefillAt:     time.Unix(0, b.lastRefill.Load()),
	}
}

func (b *Bucket) reject() {
	if b.observer != nil {
		b.observer.ObserveRateLimitRejection(b.provider)
	}
}
