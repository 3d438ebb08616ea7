package health

import (
	"sort"
	"sync"
	"time"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/providers"
)

// Source is a provider whose state the registry reports.
// *providers.Client implements it.
type Source interface {
	Name() string
	Tokens() float64
	CircuitState() breaker.State
	Status() providers.Status
}

// ProviderHealth is the reported state of one provider.
type ProviderHealth struct {
	// TokensRemaining is the rate limit bucket level.
	TokensRemaining float64 `json:"tokensRemaining"`

	// CircuitState is "closed", "half_open" or "open".
	CircuitState breaker.State `json:"circuitState"`

	// LastSuccessAt is nil until the provider has answered once.
	LastSuccessAt *time.Time `json:"lastSuccessAt"`

	// LastError is nil until the provider has failed once.
	LastError *string `json:"lastError"`

	Attempts  int64 `json:"attempts"`
	Retries   int64 `json:"retries"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Snapshot maps provider ids to their health.
type Snapshot map[string]ProviderHealth

// Registry aggregates the state of the configured providers. Reads are
// pure: taking a snapshot never changes breaker or limiter state beyond
// the lazy refill and cooldown checks those types always do on read.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry over sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources[s.Name()] = s
	}
	return r
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	r.sources[s.Name()] = s
	r.mu.Unlock()
}

// Unregister removes a source.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.sources, name)
	r.mu.Unlock()
}

// Replace swaps the full source set, used after a configuration reload.
func (r *Registry) Replace(sources []Source) {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	r.mu.Lock()
	r.sources = m
	r.mu.Unlock()
}

// Names returns the registered provider ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current state of every provider.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	sources := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		sources = append(sources, s)
	}
	r.mu.RUnlock()

	snap := make(Snapshot, len(sources))
	for _, s := range sources {
		snap[s.Name()] = describe(s)
	}
	return snap
}

// Provider returns the state of one provider.
func (r *Registry) Provider(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	s, ok := r.sources[name]
	r.mu.RUnlock()
	if !ok {
		return ProviderHealth{}, false
	}
	return describe(s), true
}

// States returns the circuit state of every provider.
func (r *Registry) States() map[string]breaker.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]breaker.State, len(r.sources))
	for name, s := range r.sources {
		out[name] = s.CircuitState()
	}
	return out
}

func describe(s Source) ProviderHealth {
	st := s.Status()
	h := ProviderHealth{
		TokensRemaining: s.Tokens(),
		CircuitState:    s.CircuitState(),
		Attempts:        st.Attempts,
		Retries:         st.Retries,
		Successes:       st.Successes,
		Failures:        st.Failures,
	}
	if !st.LastSuccessAt.IsZero() {
		at := st.LastSuccessAt
		h.LastSuccessAt = &at
	}
	if st.LastError != "" {
		msg := st.LastError
		h.LastError = &msg
	}
	return h
}
