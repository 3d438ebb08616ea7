package breaker

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateHalfOpen admits a limited number of trial calls.
	StateHalfOpen
	// StateOpen rejects all calls.
	StateOpen
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "closed":
		*s = StateClosed
	case "half_open", "half-open":
		*s = StateHalfOpen
	case "open":
		*s = StateOpen
	default:
		return fmt.Errorf("unknown circuit state %q", name)
	}
	return nil
}

// Config controls when a breaker trips and recovers. Zero fields take the
// defaults from DefaultConfig.
type Config struct {
	// FailureThreshold is the number of failures within Window that opens
	// the breaker.
	FailureThreshold int

	// Window is the rolling window for FailureThreshold.
	Window time.Duration

	// RatioWindow is the number of most recent calls the failure ratio is
	// computed over. The ratio is only evaluated once that many calls have
	// been recorded.
	RatioWindow int

	// FailureRatio opens the breaker when the share of failures among the
	// last RatioWindow calls is strictly greater than it.
	FailureRatio float64

	// OpenDuration is how long the breaker stays open before a trial.
	OpenDuration time.Duration

	// HalfOpenSuccessThreshold is the number of consecutive trial
	// successes that close the breaker.
	HalfOpenSuccessThreshold int

	// HalfOpenMaxCalls caps concurrent trial calls while half-open.
	HalfOpenMaxCalls int
}

// DefaultConfig returns the default thresholds: 5 failures in 60s or more
// than half of the last 20 calls, 30s cooldown, 2 trial successes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		Window:                   60 * time.Second,
		RatioWindow:              20,
		FailureRatio:             0.5,
		OpenDuration:             30 * time.Second,
		HalfOpenSuccessThreshold: 2,
		HalfOpenMaxCalls:         1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.RatioWindow <= 0 {
		c.RatioWindow = d.RatioWindow
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = d.FailureRatio
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = d.OpenDuration
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = d.HalfOpenSuccessThreshold
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// StateChangeFunc is called after every state transition, outside the
// breaker lock.
type StateChangeFunc func(provider string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Provider             string    `json:"provider"`
	State                State     `json:"state"`
	FailureCount         int       `json:"failure_count"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	WindowStart          time.Time `json:"window_start,omitzero"`
	OpenedAt             time.Time `json:"opened_at,omitzero"`
}

// Breaker is a circuit breaker for one provider. It is safe for concurrent
// use; each breaker has its own lock.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc

	mu    sync.Mutex
	state State

	// failures holds timestamps of failures inside the rolling window.
	failures []time.Time

	// outcomes is a ring of the last RatioWindow results, true for failure.
	outcomes     []bool
	outcomeNext  int
	outcomeCount int
	outcomeFails int

	consecutiveSuccesses int
	halfOpenInFlight     int
	openedAt             time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config, opts ...Option) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		name:     name,
		cfg:      cfg,
		now:      time.Now,
		outcomes: make([]bool, cfg.RatioWindow),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the provider the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Config returns the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// Allow reports whether a call may proceed. It returns *OpenError while the
// breaker is open, or while half-open with every trial slot taken.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from, to, changed := b.refreshLocked()

	var err error
	switch b.state {
	case StateOpen:
		err = b.openErrorLocked()
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			err = b.openErrorLocked()
		} else {
			b.halfOpenInFlight++
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return err
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	changed := false

	switch b.state {
	case StateClosed:
		b.pushOutcomeLocked(false)
	case StateHalfOpen:
		b.releaseTrialLocked()
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.HalfOpenSuccessThreshold {
			b.closeLocked()
			changed = true
		}
	}
	to := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	changed := false
	now := b.now()

	switch b.state {
	case StateClosed:
		b.pruneLocked(now)
		b.failures = append(b.failures, now)
		b.pushOutcomeLocked(true)
		if b.shouldTripLocked() {
			b.openLocked(now)
			changed = true
		}
	case StateHalfOpen:
		b.releaseTrialLocked()
		b.openLocked(now)
		changed = true
	}
	to := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// Release returns a half-open trial slot for a call that was admitted but
// never made. It records no outcome.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.releaseTrialLocked()
	}
	b.mu.Unlock()
}

// State returns the current state, applying the lazy OPEN to HALF_OPEN
// transition if the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to, changed := b.refreshLocked()
	state := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return state
}

// Snapshot returns the breaker state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	from, to, changed := b.refreshLocked()
	b.pruneLocked(b.now())

	s := Snapshot{
		Provider:             b.name,
		State:                b.state,
		FailureCount:         len(b.failures),
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		OpenedAt:             b.openedAt,
	}
	if len(b.failures) > 0 {
		s.WindowStart = b.failures[0]
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return s
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.closeLocked()
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// refreshLocked moves OPEN to HALF_OPEN once the cooldown has elapsed.
func (b *Breaker) refreshLocked() (from, to State, changed bool) {
	if b.state != StateOpen {
		return b.state, b.state, false
	}
	if b.now().Sub(b.openedAt) < b.cfg.OpenDuration {
		return b.state, b.state, false
	}
	b.state = StateHalfOpen
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
	return StateOpen, StateHalfOpen, true
}

func (b *Breaker) shouldTripLocked() bool {
	if len(b.failures) >= b.cfg.FailureThreshold {
		return true
	}
	if b.outcomeCount < b.cfg.RatioWindow {
		return false
	}
	return float64(b.outcomeFails)/float64(b.outcomeCount) > b.cfg.FailureRatio
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}

func (b *Breaker) pushOutcomeLocked(failed bool) {
	if b.outcomeCount == len(b.outcomes) {
		if b.outcomes[b.outcomeNext] {
			b.outcomeFails--
		}
	} else {
		b.outcomeCount++
	}
	b.outcomes[b.outcomeNext] = failed
	if failed {
		b.outcomeFails++
	}
	b.outcomeNext = (b.outcomeNext + 1) % len(b.outcomes)
}

func (b *Breaker) openLocked(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
}

func (b *Breaker) closeLocked() {
	b.state = StateClosed
	b.failures = b.failures[:0]
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.outcomeNext = 0
	b.outcomeCount = 0
	b.outcomeFails = 0
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
	b.openedAt = time.Time{}
}

func (b *Breaker) releaseTrialLocked() {
	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

func (b *Breaker) openErrorLocked() *OpenError {
	return &OpenError{
		Provider: b.name,
		State:    b.state,
		OpenedAt: b.openedAt,
		RetryAt:  b.openedAt.Add(b.cfg.OpenDuration),
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
