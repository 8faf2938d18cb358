// Package scheduler runs the periodic expiry sweep, rescheduling itself
// adaptively on the next known key expiry instead of polling at a fixed
// rate.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// Engine is the slice of the lifecycle engine the scheduler drives.
type Engine interface {
	RunExpirySweep(ctx context.Context, actor authz.Actor, asOf time.Time) ([]*storage.AccessKey, error)
	NextExpiry(ctx context.Context, after time.Time) (*time.Time, error)
}

// Scheduler owns the sweep loop: one sweep per wake-up, then sleep until
// the earliest future expiry, or the fallback interval when none exists.
// Exactly one sweep runs at a time; the loop is single-threaded.
type Scheduler struct {
	engine   Engine
	actor    authz.Actor
	fallback time.Duration
	clock    lifecycle.Clock
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Tests use this to control "now".
func WithClock(c lifecycle.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// New creates a scheduler sweeping as the given actor. fallback is the
// sleep interval used when no active key has a future expiry; new keys may
// be issued in the meantime, so the loop must still wake up eventually.
func New(engine Engine, actor authz.Actor, fallback time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback <= 0 {
		fallback = time.Hour
	}

	s := &Scheduler{
		engine:   engine,
		actor:    actor,
		fallback: fallback,
		clock:    lifecycle.SystemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes sweep cycles until ctx is cancelled. Cancellation takes
// effect at the next wake-up boundary: an in-flight sweep is allowed to
// finish rather than being killed mid-transaction.
//
// A failed sweep is logged and the loop reschedules on the fallback
// interval; the scheduler never crashes on sweep errors.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reconciliation scheduler started", "fallback_interval", s.fallback)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation scheduler stopped")
			return
		case <-timer.C:
		}

		wake := s.cycle(ctx)
		timer.Reset(time.Until(wake))
	}
}

// cycle performs one sweep and returns the next wake-up time.
func (s *Scheduler) cycle(ctx context.Context) time.Time {
	now := s.clock.Now()

	expired, err := s.engine.RunExpirySweep(ctx, s.actor, now)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return now.Add(s.fallback)
	}
	if len(expired) > 0 {
		s.logger.Info("expiry sweep completed", "expired", len(expired))
	}

	wake, err := s.NextWake(ctx, now)
	if err != nil {
		s.logger.Error("failed to determine next expiry", "error", err)
		return now.Add(s.fallback)
	}
	return wake
}

// NextWake computes when the loop should run again after a sweep at now:
// the minimum future expiry among active keys, so each key transitions
// essentially immediately upon expiry, or now plus the fallback interval
// when no active key has a future expiry.
func (s *Scheduler) NextWake(ctx context.Context, now time.Time) (time.Time, error) {
	next, err := s.engine.NextExpiry(ctx, now)
	if err != nil {
		return time.Time{}, err
	}
	if next == nil {
		return now.Add(s.fallback), nil
	}
	return *next, nil
}
