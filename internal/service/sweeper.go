package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuflow/automation-api/internal/observability/statsd"
	"github.com/docuflow/automation-api/internal/registry"
)

// SweeperOptions groups dependencies for Sweeper.
type SweeperOptions struct {
	Registry *registry.Registry // Required: job store
	Interval time.Duration      // Required: sweep cadence
	TTL      time.Duration      // Required: how long terminal jobs are kept
	Logger   *slog.Logger       // Optional: structured logger
	Metrics  statsd.Sink        // Optional: metrics sink
}

// Sweeper periodically removes terminal jobs whose retention window has
// passed. Running jobs are never touched; finished jobs stay visible for TTL
// so users can still fetch results and logs.
type Sweeper struct {
	registry *registry.Registry
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewSweeper constructs a new Sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("Interval must be positive")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("TTL must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper")
	}

	return &Sweeper{
		registry: opts.Registry,
		interval: opts.Interval,
		ttl:      opts.TTL,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// MustNewSweeper constructs a new Sweeper and panics on error.
func MustNewSweeper(opts SweeperOptions) *Sweeper {
	s, err := NewSweeper(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create Sweeper: %v", err))
	}
	return s
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper",
			"interval", s.interval,
			"ttl", s.ttl,
		)
	}

	// Jitter the first sweep so multiple instances don't align.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs one retention pass and returns how many jobs were removed.
func (s *Sweeper) Sweep(now time.Time) int {
	return s.registry.DeleteTerminalBefore(now.Add(-s.ttl))
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed := s.Sweep(time.Now())
	if removed == 0 {
		return
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "swept terminal jobs", "removed", removed)
	}
	if s.metrics != nil {
		s.metrics.Count("jobs.swept", int64(removed), nil)
	}
}

// waitWithJitter delays up to 10% of the interval.
func (s *Sweeper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.LittleEndian.Uint64(buf[:])%uint64(maxJitter))) //nolint:gosec // bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
