package providers

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls the backoff between attempts of one call.
//
// The delay before retry n (n >= 1) is BaseDelay * Multiplier^(n-1), raised
// to the upstream Retry-After hint for 429 responses, capped at MaxDelay and
// finally spread by ±Jitter.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultRetryPolicy returns 1s base, 60s cap, doubling, ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}
	return p
}

// Backoff returns the delay before retry attempt (1-based) after err.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Category == CategoryRateLimit && pe.RetryAfter > 0 {
		delay = math.Max(delay, float64(pe.RetryAfter))
	}

	delay = math.Min(delay, float64(p.MaxDelay))

	if p.Jitter > 0 {
		delay *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
