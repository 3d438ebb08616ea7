// Package ratelimit enforces per-provider request quotas with token buckets.
//
// # Overview
//
// Every upstream provider owns one Bucket, created once when the gateway is
// built and kept for the life of the process. A Bucket holds up to Capacity
// tokens and refills at RefillRatePerSec. Refill is computed lazily from the
// elapsed time on each access; no background goroutine ticks the bucket.
//
//	limiter := ratelimit.New(map[string]ratelimit.Config{
//	    "alphavantage": {Capacity: 5, RefillRatePerSec: 5.0 / 60},
//	    "finnhub":      {Capacity: 30, RefillRatePerSec: 30},
//	})
//
//	if err := limiter.Acquire(ctx, "finnhub", 1, 2*time.Second); err != nil {
//	    // errors.Is(err, ratelimit.ErrRateLimitExceeded)
//	}
//
// # Waiting
//
// When the bucket cannot cover a request immediately, Acquire computes how
// long the caller would have to wait. Waits up to maxWait (and never past the
// context deadline) suspend the caller; longer waits fail fast with an
// *ExceededError. Waiters are granted tokens in the order they asked for
// them, so a steady stream of small requests cannot starve an earlier caller.
//
// Tokens are spent when a request is admitted, not when it succeeds. A token
// is handed back only when the caller gives up while still queued, before any
// upstream attempt was made.
package ratelimit
