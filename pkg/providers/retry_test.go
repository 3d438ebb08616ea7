package providers

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}

	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{name: "first retry", attempt: 1, want: time.Second},
		{name: "second retry", attempt: 2, want: 2 * time.Second},
		{name: "third retry", attempt: 3, want: 4 * time.Second},
		{name: "capped", attempt: 8, want: 10 * time.Second},
		{name: "zero attempt treated as first", attempt: 0, want: time.Second},
		{
			name:    "retry-after raises delay",
			attempt: 1,
			err:     &ProviderError{Category: CategoryRateLimit, RetryAfter: 5 * time.Second},
			want:    5 * time.Second,
		},
		{
			name:    "retry-after still capped",
			attempt: 1,
			err:     &ProviderError{Category: CategoryRateLimit, RetryAfter: time.Minute},
			want:    10 * time.Second,
		},
		{
			name:    "retry-after ignored for other categories",
			attempt: 1,
			err:     &ProviderError{Category: CategoryServerError, RetryAfter: 5 * time.Second},
			want:    time.Second,
		},
		{
			name:    "non provider error",
			attempt: 2,
			err:     errors.New("boom"),
			want:    2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Backoff(tt.attempt, tt.err); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 0.25}
	for i := 0; i < 200; i++ {
		got := policy.Backoff(2, nil)
		if got < 1500*time.Millisecond || got > 2500*time.Millisecond {
			t.Fatalf("Backoff(2) = %v, want within [1.5s, 2.5s]", got)
		}
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	d := DefaultRetryPolicy()
	if d.BaseDelay != time.Second || d.MaxDelay != time.Minute || d.Multiplier != 2 || d.Jitter != 0.25 {
		t.Errorf("DefaultRetryPolicy() = %+v", d)
	}

	var zero RetryPolicy
	got := zero.Backoff(1, nil)
	if got < 750*time.Millisecond || got > 1250*time.Millisecond {
		t.Errorf("zero policy Backoff(1) = %v, want about 1s", got)
	}
}
