package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default TTL and stale window when none is configured.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxStaleAge = 24 * time.Hour
)

// Observer receives cache events. metrics.Collector implements it.
type Observer interface {
	ObserveCacheHit(capability string, fresh bool)
	ObserveCacheMiss(capability string)
	ObserveCacheEviction(n int)
}

// Options configures a Cache.
type Options struct {
	// DefaultTTL applies to capabilities without an entry in TTLs.
	DefaultTTL time.Duration

	// TTLs sets the freshness window per capability.
	TTLs map[string]time.Duration

	// MaxStaleAge is how long past fetch an entry may still be served as
	// stale data.
	MaxStaleAge time.Duration

	// Now is overridable for tests.
	Now func() time.Time

	Observer Observer
	Logger   *slog.Logger
}

// Lookup is the result of a cache read.
type Lookup struct {
	Entry *Entry
	Age   time.Duration
	Fresh bool
}

// Result is what a LoadFunc produces and FetchOrLoad hands to every caller
// sharing the load.
type Result struct {
	Entry *Entry

	// Stale is set when the payload is an old cache entry served because
	// no provider could answer.
	Stale bool

	// Shared is set for callers that received another caller's load.
	Shared bool
}

// LoadFunc loads a value for FetchOrLoad.
type LoadFunc func(ctx context.Context) (Result, error)

// Cache is the response cache. It is safe for concurrent use; the only
// shared state besides the store is the single-flight group, which locks
// per key.
type Cache struct {
	store    Store
	group    singleflight.Group
	now      func() time.Time
	observer Observer
	logger   *slog.Logger

	mu          sync.RWMutex
	defaultTTL  time.Duration
	ttls        map[string]time.Duration
	maxStaleAge time.Duration
}

// New creates a cache on store.
func New(store Store, opts Options) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		store:    store,
		now:      opts.Now,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.SetPolicy(opts.DefaultTTL, opts.TTLs, opts.MaxStaleAge)
	return c
}

// SetPolicy replaces the TTLs and stale window. Entries already stored keep
// the TTL they were written with.
func (c *Cache) SetPolicy(defaultTTL time.Duration, ttls map[string]time.Duration, maxStaleAge time.Duration) {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if maxStaleAge < 0 {
		maxStaleAge = 0
	}
	cp := make(map[string]time.Duration, len(ttls))
	for k, v := range ttls {
		if v > 0 {
			cp[k] = v
		}
	}

	c.mu.Lock()
	c.defaultTTL = defaultTTL
	c.ttls = cp
	c.maxStaleAge = maxStaleAge
	c.mu.Unlock()
}

// TTL returns the freshness window for capability.
func (c *Cache) TTL(capability string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ttl, ok := c.ttls[capability]; ok {
		return ttl
	}
	return c.defaultTTL
}

// MaxStaleAge returns how old an entry may be and still be served stale.
func (c *Cache) MaxStaleAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxStaleAge
}

// Store returns the backend.
func (c *Cache) Store() Store {
	return c.store
}

// Get reads the entry for fingerprint. An entry past retention is deleted
// and reported as a miss. Backend errors are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (Lookup, bool) {
	e, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("cache read failed", "fingerprint", fingerprint, "error", err)
		return Lookup{}, false
	}
	if e == nil {
		return Lookup{}, false
	}

	now := c.now()
	if e.Expired(now) {
		if err := c.store.Delete(ctx, fingerprint); err != nil {
			c.logger.Warn("cache purge failed", "fingerprint", fingerprint, "error", err)
		} else if c.observer != nil {
			c.observer.ObserveCacheEviction(1)
		}
		return Lookup{}, false
	}

	return Lookup{Entry: e, Age: e.Age(now), Fresh: e.Fresh(now)}, true
}

// GetFresh returns the entry only if it is within its TTL, recording a hit
// or miss for capability.
func (c *Cache) GetFresh(ctx context.Context, capability, fingerprint string) (*Entry, bool) {
	l, ok := c.Get(ctx, fingerprint)
	if ok && l.Fresh {
		c.hit(capability, true)
		return l.Entry, true
	}
	c.miss(capability)
	return nil, false
}

// GetStale returns the entry if its age is within the maximum stale age.
func (c *Cache) GetStale(ctx context.Context, capability, fingerprint string) (*Entry, bool) {
	l, ok := c.Get(ctx, fingerprint)
	if !ok || l.Age > c.MaxStaleAge() {
		return nil, false
	}
	c.hit(capability, false)
	return l.Entry, true
}

// Set stores a payload for fingerprint with the capability's TTL. The
// previous entry, if any, is replaced.
func (c *Cache) Set(ctx context.Context, fingerprint, capability, source string, payload json.RawMessage, fetchedAt time.Time) (*Entry, error) {
	if fetchedAt.IsZero() {
		fetchedAt = c.now()
	}
	ttl := c.TTL(capability)
	retain := max(ttl, c.MaxStaleAge())

	e := &Entry{
		Fingerprint: fingerprint,
		Capability:  capability,
		Payload:     payload,
		FetchedAt:   fetchedAt,
		TTL:         ttl,
		Source:      source,
		RetainUntil: fetchedAt.Add(retain),
	}
	if err := c.store.Set(ctx, e); err != nil {
		return e, err
	}
	return e, nil
}

// Delete removes the entry for fingerprint.
func (c *Cache) Delete(ctx context.Context, fingerprint string) error {
	return c.store.Delete(ctx, fingerprint)
}

// Sweep deletes up to limit entries past retention.
func (c *Cache) Sweep(ctx context.Context, limit int) (int, error) {
	n, err := c.store.Sweep(ctx, c.now(), limit)
	if n > 0 && c.observer != nil {
		c.observer.ObserveCacheEviction(n)
	}
	return n, err
}

// Len returns the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

// leaderAbortedError marks a load that ended because the context of the
// caller running it was done.
type leaderAbortedError struct {
	err error
}

func (e *leaderAbortedError) Error() string { return e.err.Error() }
func (e *leaderAbortedError) Unwrap() error { return e.err }

// FetchOrLoad runs load for key unless a load for the same key is already
// in flight, in which case it waits for that load and returns its result.
//
// The load runs with the context of the caller that started it, and that
// caller always waits for its own load to finish. If that caller's context
// ends, callers that joined the load and are still live start a new one
// instead of inheriting the cancellation. A joined caller whose own context
// ends returns the context error immediately.
func (c *Cache) FetchOrLoad(ctx context.Context, key string, load LoadFunc) (Result, error) {
	for {
		var leading atomic.Bool
		ch := c.group.DoChan(key, func() (any, error) {
			leading.Store(true)
			res, err := load(ctx)
			if err != nil && ctx.Err() != nil {
				return res, &leaderAbortedError{err: err}
			}
			return res, err
		})

		var r singleflight.Result
		select {
		case r = <-ch:
		case <-ctx.Done():
			if !leading.Load() {
				return Result{}, ctx.Err()
			}
			r = <-ch
		}

		if r.Err != nil {
			var aborted *leaderAbortedError
			if errors.As(r.Err, &aborted) {
				if ctx.Err() == nil {
					c.logger.Debug("in-flight load was cancelled, retrying", "key", key)
					continue
				}
				return Result{}, aborted.err
			}
			return Result{}, r.Err
		}
		res, _ := r.Val.(Result)
		res.Shared = r.Shared
		return res, nil
	}
}

func (c *Cache) hit(capability string, fresh bool) {
	if c.observer != nil {
		c.observer.ObserveCacheHit(capability, fresh)
	}
}

func (c *Cache) miss(capability string) {
	if c.observer != nil {
		c.observer.ObserveCacheMiss(capability)
	}
}
