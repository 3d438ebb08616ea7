package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/conduit/pkg/breaker"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
)

// Descriptor is everything needed to build one resilient provider client.
type Descriptor struct {
	// Provider is the adapter configuration. Timeout, MaxRetries and Retry
	// also drive the client.
	Provider providers.ProviderConfig

	// RateLimit sizes the provider's token bucket.
	RateLimit ratelimit.Config

	// Breaker configures the provider's circuit breaker.
	Breaker breaker.Config

	// MaxWait bounds how long one attempt may queue for a token.
	MaxWait time.Duration
}

// Manager owns the provider clients of a gateway together with the
// limiter and breaker set their buckets and breakers live in.
//
// Buckets and breakers are created on first registration and kept for the
// lifetime of the manager. Re-adding a provider replaces its adapter and
// client settings but keeps its quota and circuit state.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	limiter  *ratelimit.Limiter
	breakers *breaker.Set
	opts     []providers.ClientOption

	mu      sync.RWMutex
	clients map[string]*providers.Client
}

// NewManager creates a manager. opts are applied to every client.
func NewManager(limiter *ratelimit.Limiter, breakers *breaker.Set, opts ...providers.ClientOption) *Manager {
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	if breakers == nil {
		breakers = breaker.NewSet()
	}
	return &Manager{
		limiter:  limiter,
		breakers: breakers,
		opts:     opts,
		clients:  make(map[string]*providers.Client),
	}
}

// Add creates the adapter and client for d. An existing client with the
// same name is closed and replaced.
func (m *Manager) Add(d Descriptor) (*providers.Client, error) {
	name := d.Provider.Name
	if name == "" {
		return nil, &providers.ConfigError{Field: "name", Message: "provider name is required"}
	}

	adapter, err := New(d.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to add provider %q: %w", name, err)
	}

	bucket := m.limiter.Register(name, d.RateLimit)
	br := m.breakers.Register(name, d.Breaker)

	client := providers.NewClient(adapter, br, bucket, providers.ClientConfig{
		Timeout:    d.Provider.Timeout,
		MaxRetries: d.Provider.MaxRetries,
		Retry:      d.Provider.Retry,
		MaxWait:    d.MaxWait,
	}, m.opts...)

	m.mu.Lock()
	existing, replaced := m.clients[name]
	m.clients[name] = client
	total := len(m.clients)
	m.mu.Unlock()

	if replaced {
		slog.Info("replacing existing provider", "name", name)
		if err := existing.Close(); err != nil {
			slog.Error("error closing provider", "name", name, "error", err)
		}
	}

	slog.Info("provider added to manager",
		"name", name,
		"capabilities", adapter.Capabilities(),
		"total_providers", total,
	)
	return client, nil
}

// LoadFromConfig adds every descriptor. All errors are collected.
func (m *Manager) LoadFromConfig(descriptors []Descriptor) error {
	var errs []error
	for _, d := range descriptors {
		if _, err := m.Add(d); err != nil {
			slog.Error("failed to load provider", "name", d.Provider.Name, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to load %d provider(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Client returns the client for name.
func (m *Manager) Client(name string) (*providers.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[name]
	return c, ok
}

// Clients returns every client sorted by name.
func (m *Manager) Clients() []*providers.Client {
	m.mu.RLock()
	list := make([]*providers.Client, 0, len(m.clients))
	for _, c := range m.clients {
		list = append(list, c)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Names returns the registered provider names, sorted.
func (m *Manager) Names() []string {
	clients := m.Clients()
	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.Name()
	}
	return names
}

// Len returns the number of providers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Limiter returns the rate limiter shared by all clients.
func (m *Manager) Limiter() *ratelimit.Limiter {
	return m.limiter
}

// Breakers returns the breaker set shared by all clients.
func (m *Manager) Breakers() *breaker.Set {
	return m.breakers
}

// Close closes every client.
func (m *Manager) Close() error {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*providers.Client)
	m.mu.Unlock()

	var errs []error
	for name, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("provider manager closed")
	return nil
}
