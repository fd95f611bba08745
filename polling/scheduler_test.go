package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestScheduler(t *testing.T, cfg SchedulerConfig) *Scheduler {
	t.Helper()
	if cfg.Strategy == nil {
		cfg.Strategy = NewFixedInterval(5 * time.Millisecond)
	}
	cfg.Enabled = true
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestSchedulerLifecycle(t *testing.T) {
	var polls atomic.Int64
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			polls.Add(1)
			return Result{ItemsProcessed: 2}, nil
		},
	})

	if s.State() != StateStopped {
		t.Fatalf("initial state = %v", s.State())
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("scheduler should be running")
	}

	if err := s.Start(context.Background()); !engerrors.Is(err, engerrors.ErrCodeSchedulerStart) {
		t.Errorf("second Start error = %v, want scheduler-start failure", err)
	}

	waitFor(t, time.Second, func() bool { return polls.Load() >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state after stop = %v", s.State())
	}

	// Idempotent stop.
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	m := s.Metrics()
	if m.SuccessfulPolls < 2 || m.FailedPolls != 0 {
		t.Errorf("polls = %d ok / %d failed", m.SuccessfulPolls, m.FailedPolls)
	}
	if m.ItemsProcessed < 4 {
		t.Errorf("ItemsProcessed = %d, want at least 4", m.ItemsProcessed)
	}
	if m.SuccessRate != 100 {
		t.Errorf("SuccessRate = %v", m.SuccessRate)
	}
}

func TestSchedulerDisabled(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) { return Result{}, nil },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Start(context.Background()); !engerrors.Is(err, engerrors.ErrCodeSchedulerStart) {
		t.Errorf("Start on disabled scheduler = %v, want scheduler-start failure", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %v, disabled start must not change it", s.State())
	}
}

func TestSchedulerRequiresCallback(t *testing.T) {
	if _, err := NewScheduler(SchedulerConfig{}); !engerrors.Is(err, engerrors.ErrCodeValidation) {
		t.Errorf("NewScheduler error = %v, want validation", err)
	}
}

func TestSchedulerOpensBreakerOnRepeatedFailure(t *testing.T) {
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			return Result{}, engerrors.Backend("processing exploded")
		},
		Strategy: NewFixedInterval(time.Millisecond),
		Breaker:  BreakerConfig{RecoveryTimeout: time.Hour},
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.Metrics().BreakerState == BreakerOpen
	})

	// The breaker stays open for an hour, so the failure count is
	// frozen at the threshold while later cycles are skipped.
	waitFor(t, time.Second, func() bool { return s.Metrics().SkippedPolls > 0 })

	m := s.Metrics()
	if m.FailedPolls != 5 {
		t.Errorf("FailedPolls = %d, want exactly 5", m.FailedPolls)
	}
	if m.SuccessfulPolls != 0 {
		t.Errorf("SuccessfulPolls = %d, want 0", m.SuccessfulPolls)
	}
	if m.BreakerTrips != 1 {
		t.Errorf("BreakerTrips = %d, want 1", m.BreakerTrips)
	}
	if !m.Degraded() {
		t.Error("open breaker must report degraded")
	}
}

func TestSchedulerRecoversThroughHalfOpen(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			if fail.Load() {
				return Result{}, engerrors.Backend("still down")
			}
			return Result{}, nil
		},
		Strategy: NewFixedInterval(time.Millisecond),
		Breaker:  BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 20 * time.Millisecond, SuccessThreshold: 2},
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return s.Metrics().BreakerState == BreakerOpen
	})

	fail.Store(false)
	waitFor(t, 2*time.Second, func() bool {
		return s.Metrics().BreakerState == BreakerClosed
	})

	m := s.Metrics()
	if m.SuccessfulPolls < 2 {
		t.Errorf("SuccessfulPolls = %d, want at least the probe successes", m.SuccessfulPolls)
	}
}

func TestSchedulerCancelledPollDoesNotFeedBreaker(t *testing.T) {
	release := make(chan struct{})
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			close(release)
			<-ctx.Done()
			return Result{}, engerrors.Wrap(ctx.Err(), "fetch aborted")
		},
		Strategy: NewFixedInterval(time.Millisecond),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-release

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	m := s.Metrics()
	if m.FailedPolls != 0 {
		t.Errorf("FailedPolls = %d, shutdown must not count as failure", m.FailedPolls)
	}
	if m.CancelledPolls != 1 {
		t.Errorf("CancelledPolls = %d, want 1", m.CancelledPolls)
	}
	if m.BreakerState != BreakerClosed {
		t.Errorf("BreakerState = %v, want closed", m.BreakerState)
	}
}

func TestSchedulerStopInterruptsWait(t *testing.T) {
	s := newTestScheduler(t, SchedulerConfig{
		Process:  func(ctx context.Context) (Result, error) { return Result{}, nil },
		Strategy: NewFixedInterval(time.Hour),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Metrics().TotalPolls >= 1 })

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, wait was not interrupted", elapsed)
	}
}

func TestSchedulerHonorsWindowSkips(t *testing.T) {
	closed := NewScheduledWindows(ScheduledWindowsConfig{
		Windows:  []Window{{StartHour: 0, EndHour: 1, Days: []time.Weekday{}}},
		Interval: time.Millisecond,
	})
	// No days configured: every decision is a skip with a long wait, so
	// only the first cycle polls.
	var polls atomic.Int64
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			polls.Add(1)
			return Result{}, nil
		},
		Strategy: closed,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Metrics().TotalPolls >= 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := polls.Load(); got != 1 {
		t.Errorf("polls = %d, want 1 (later cycles outside window)", got)
	}
}

func TestForcePoll(t *testing.T) {
	var polls atomic.Int64
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			polls.Add(1)
			return Result{ItemsProcessed: 1}, nil
		},
		Strategy: NewFixedInterval(time.Hour),
	})

	if _, err := s.ForcePoll(context.Background()); err == nil {
		t.Error("ForcePoll on stopped scheduler should fail")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return polls.Load() >= 1 })

	result, err := s.ForcePoll(context.Background())
	if err != nil {
		t.Fatalf("ForcePoll: %v", err)
	}
	if result.ItemsProcessed != 1 {
		t.Errorf("ItemsProcessed = %d", result.ItemsProcessed)
	}
}

func TestAdaptiveSeesQueueDepth(t *testing.T) {
	depths := make(chan int, 16)
	strategy := &captureStrategy{inner: NewFixedInterval(time.Millisecond), depths: depths}
	s := newTestScheduler(t, SchedulerConfig{
		Process: func(ctx context.Context) (Result, error) {
			return Result{ItemsProcessed: 1, QueueDepth: 7}, nil
		},
		Strategy: strategy,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		select {
		case d := <-depths:
			return d == 7
		default:
			return false
		}
	})
}

// captureStrategy forwards to an inner strategy while recording the
// queue depth each snapshot carried.
type captureStrategy struct {
	inner  Strategy
	depths chan int
}

func (c *captureStrategy) Type() StrategyType { return c.inner.Type() }

func (c *captureStrategy) Decide(snap Snapshot) Decision {
	select {
	case c.depths <- snap.QueueDepth:
	default:
	}
	return c.inner.Decide(snap)
}

func (c *captureStrategy) Configure(settings map[string]interface{}) error {
	return c.inner.Configure(settings)
}

func (c *captureStrategy) Configuration() map[string]interface{} {
	return c.inner.Configuration()
}
