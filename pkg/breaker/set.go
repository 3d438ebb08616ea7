package breaker

import (
	"sort"
	"sync"
)

// Set holds one independent Breaker per provider.
type Set struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewSet creates an empty set. opts are applied to every breaker it creates.
func NewSet(opts ...Option) *Set {
	return &Set{
		breakers: make(map[string]*Breaker),
		opts:     opts,
	}
}

// Register creates the breaker for provider, or returns the existing one.
func (s *Set) Register(provider string, cfg Config) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[provider]; ok {
		return b
	}
	b := New(provider, cfg, s.opts...)
	s.breakers[provider] = b
	return b
}

// Get returns the breaker for provider.
func (s *Set) Get(provider string) (*Breaker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.breakers[provider]
	return b, ok
}

// Snapshots returns the snapshot of every breaker, sorted by provider.
func (s *Set) Snapshots() []Snapshot {
	s.mu.RLock()
	list := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		list = append(list, b)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
