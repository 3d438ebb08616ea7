package fallback

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts cascade outcomes. All counters are updated atomically.
type Stats struct {
	total       atomic.Int64
	fallbacks   atomic.Int64
	stale       atomic.Int64
	unavailable atomic.Int64

	// servedBy counts results per provider.
	servedBy sync.Map // map[string]*atomic.Int64

	// skipped counts providers passed over because their breaker was open.
	skipped sync.Map // map[string]*atomic.Int64

	mu        sync.RWMutex
	resetTime time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Total       int64            `json:"total"`
	Fallbacks   int64            `json:"fallbacks"`
	Stale       int64            `json:"stale"`
	Unavailable int64            `json:"unavailable"`
	ServedBy    map[string]int64 `json:"servedBy"`
	Skipped     map[string]int64 `json:"skipped"`
	Since       time.Time        `json:"since"`
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{resetTime: time.Now()}
}

// IncrementTotal counts a resolve.
func (s *Stats) IncrementTotal() { s.total.Add(1) }

// IncrementFallback counts a result served by a provider other than the first.
func (s *Stats) IncrementFallback() { s.fallbacks.Add(1) }

// IncrementStale counts a stale result.
func (s *Stats) IncrementStale() { s.stale.Add(1) }

// IncrementUnavailable counts a resolve that failed entirely.
func (s *Stats) IncrementUnavailable() { s.unavailable.Add(1) }

// IncrementProvider counts a result served by provider.
func (s *Stats) IncrementProvider(provider string) {
	increment(&s.servedBy, provider)
}

// IncrementSkipped counts provider being skipped with an open breaker.
func (s *Stats) IncrementSkipped(provider string) {
	increment(&s.skipped, provider)
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	since := s.resetTime
	s.mu.RUnlock()

	return StatsSnapshot{
		Total:       s.total.Load(),
		Fallbacks:   s.fallbacks.Load(),
		Stale:       s.stale.Load(),
		Unavailable: s.unavailable.Load(),
		ServedBy:    collect(&s.servedBy),
		Skipped:     collect(&s.skipped),
		Since:       since,
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.fallbacks.Store(0)
	s.stale.Store(0)
	s.unavailable.Store(0)
	s.servedBy.Clear()
	s.skipped.Clear()

	s.mu.Lock()
	s.resetTime = time.Now()
	s.mu.Unlock()
}

func increment(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func collect(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}
