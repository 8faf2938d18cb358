package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// stubEngine records sweep calls and serves canned expiries.
type stubEngine struct {
	mu         sync.Mutex
	sweeps     []time.Time
	sweepErr   error
	nextExpiry *time.Time
	expired    []*storage.AccessKey
}

func (e *stubEngine) RunExpirySweep(_ context.Context, _ authz.Actor, asOf time.Time) ([]*storage.AccessKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweeps = append(e.sweeps, asOf)
	if e.sweepErr != nil {
		return nil, e.sweepErr
	}
	return e.expired, nil
}

func (e *stubEngine) NextExpiry(context.Context, time.Time) (*time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextExpiry, nil
}

func (e *stubEngine) sweepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sweeps)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func systemActor() authz.Actor {
	return authz.Actor{ID: "system", Role: authz.RoleSystem}
}

func TestNextWakeUsesEarliestExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// Keys expiring at now+1h and now+3h: the store's NextExpiry returns
	// the minimum, and the scheduler must wake exactly then.
	soonest := now.Add(time.Hour)
	engine := &stubEngine{nextExpiry: &soonest}

	s := New(engine, systemActor(), time.Hour, testLogger(), WithClock(fixedClock{now: now}))
	wake, err := s.NextWake(context.Background(), now)
	if err != nil {
		t.Fatalf("NextWake failed: %v", err)
	}
	if !wake.Equal(soonest) {
		t.Errorf("Expected wake at %v, got %v", soonest, wake)
	}
}

func TestNextWakeFallsBackWithoutFutureExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := &stubEngine{}

	s := New(engine, systemActor(), 30*time.Minute, testLogger(), WithClock(fixedClock{now: now}))
	wake, err := s.NextWake(context.Background(), now)
	if err != nil {
		t.Fatalf("NextWake failed: %v", err)
	}
	if !wake.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("Expected fallback wake at %v, got %v", now.Add(30*time.Minute), wake)
	}
}

func TestCycleSweepsAtNow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := &stubEngine{}

	s := New(engine, systemActor(), time.Hour, testLogger(), WithClock(fixedClock{now: now}))
	wake := s.cycle(context.Background())

	if engine.sweepCount() != 1 {
		t.Fatalf("Expected 1 sweep, got %d", engine.sweepCount())
	}
	if !engine.sweeps[0].Equal(now) {
		t.Errorf("Expected sweep as of %v, got %v", now, engine.sweeps[0])
	}
	if !wake.Equal(now.Add(time.Hour)) {
		t.Errorf("Expected fallback wake, got %v", wake)
	}
}

func TestCycleReschedulesOnSweepError(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	soonest := now.Add(time.Minute)
	engine := &stubEngine{
		sweepErr:   errors.New("store unavailable"),
		nextExpiry: &soonest,
	}

	s := New(engine, systemActor(), time.Hour, testLogger(), WithClock(fixedClock{now: now}))
	wake := s.cycle(context.Background())

	// On sweep failure the loop falls back to the fixed interval rather
	// than trusting a next-expiry it could not reconcile against.
	if !wake.Equal(now.Add(time.Hour)) {
		t.Errorf("Expected fallback wake after sweep error, got %v", wake)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	s := New(engine, systemActor(), time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Let the initial cycle fire, then cancel.
	deadline := time.After(2 * time.Second)
	for engine.sweepCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Scheduler never swept")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler did not stop after cancellation")
	}
}
