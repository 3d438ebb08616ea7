package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Option configures buckets created by New, Register or NewBucket.
type Option func(*options)

type options struct {
	clock    Clock
	observer Observer
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver reports waits and rejections to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Limiter holds one Bucket per provider.
//
// Buckets are independent: contention on one provider's bucket never blocks
// callers of another. The map itself is only written by Register.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	opts    []Option
}

// New creates a Limiter with a bucket for every entry in configs.
func New(configs map[string]Config, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*Bucket, len(configs)),
		opts:    opts,
	}
	for provider, cfg := range configs {
		l.buckets[provider] = NewBucket(provider, cfg, opts...)
	}
	return l
}

// Register adds a bucket for provider, or returns the existing one.
func (l *Limiter) Register(provider string, cfg Config) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[provider]; ok {
		return b
	}
	b := NewBucket(provider, cfg, l.opts...)
	l.buckets[provider] = b
	return b
}

// Bucket returns the bucket for provider.
func (l *Limiter) Bucket(provider string) (*Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.buckets[provider]
	return b, ok
}

// Acquire takes n tokens from provider's bucket. See Bucket.Acquire.
func (l *Limiter) Acquire(ctx context.Context, provider string, n int, maxWait time.Duration) error {
	b, ok := l.Bucket(provider)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return b.Acquire(ctx, n, maxWait)
}

// States returns the state of every bucket, sorted by provider.
func (l *Limiter) States() []BucketState {
	l.mu.RLock()
	states := make([]BucketState, 0, len(l.buckets))
	for _, b := range l.buckets {
		states = append(states, b.State())
	}
	l.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].Provider < states[j].Provider })
	return states
}
