package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Default sweep settings.
const (
	DefaultSweepSchedule = "@every 1m"
	DefaultSweepBatch    = 1000
)

// Sweeper periodically deletes a bounded batch of expired entries, so a
// sweep never holds the store for long regardless of its size.
type Sweeper struct {
	cache    *Cache
	cron     *cron.Cron
	schedule string
	batch    int
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Schedule is a cron spec or descriptor such as "@every 30s".
	// Default: "@every 1m"
	Schedule string

	// Batch bounds the number of entries deleted per run.
	// Default: 1000
	Batch int

	// Timeout bounds one run.
	// Default: 30 seconds
	Timeout time.Duration

	Logger *slog.Logger
}

// NewSweeper creates a sweeper for c. It does nothing until Start.
func NewSweeper(c *Cache, cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweepBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Sweeper{
		cache:    c,
		cron:     cron.New(),
		schedule: cfg.Schedule,
		batch:    cfg.Batch,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running sweeps on the schedule.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("cache sweeper started", "schedule", s.schedule, "batch", s.batch)
}

// Stop stops the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cache sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single bounded sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.cache.Sweep(ctx, s.batch)
	if err != nil {
		return n, fmt.Errorf("cache sweep failed: %w", err)
	}
	return n, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("cache sweep failed", "error", err, "deleted", n)
		return
	}
	if n > 0 {
		s.logger.Debug("cache sweep completed", "deleted", n, "duration", time.Since(start))
	}
}
