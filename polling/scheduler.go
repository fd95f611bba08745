package polling

import (
	"context"
	"sync"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
	"github.com/taskloop/taskloop/logging"
)

// State is the scheduler lifecycle position.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

// Result is what one processing cycle reports back to the scheduler.
type Result struct {
	ItemsProcessed int
	QueueDepth     int // depth after processing, feeds the adaptive strategy
}

// ProcessFunc is the injected per-cycle callback. A context error from
// shutdown must surface as a canceled error, which the scheduler counts
// separately from genuine failures and keeps away from the breaker.
type ProcessFunc func(ctx context.Context) (Result, error)

// SchedulerConfig holds scheduler settings. Process is required.
type SchedulerConfig struct {
	Process  ProcessFunc
	Strategy Strategy // default fixed interval, 1 minute
	Breaker  BreakerConfig
	Logger   *logging.Logger

	// Enabled gates Start. A disabled scheduler refuses to start, for
	// deployments that only poll on demand.
	Enabled bool

	// LoadProbe supplies the 0..1 system load figure for adaptive
	// strategies. Nil reports zero load.
	LoadProbe func() float64

	// StartTimeout bounds how long Start waits for the loop goroutine
	// to come up. Default 1s.
	StartTimeout time.Duration
}

// Metrics is a point-in-time snapshot of scheduler health.
type Metrics struct {
	State        State
	BreakerState BreakerState
	Strategy     StrategyType
	Enabled      bool

	TotalPolls      int64
	SuccessfulPolls int64
	FailedPolls     int64
	SkippedPolls    int64
	CancelledPolls  int64
	ItemsProcessed  int64
	SuccessRate     float64 // percent of completed polls that succeeded
	AverageDuration time.Duration
	BreakerTrips    int64

	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastPollTime         time.Time
	LastSuccessTime      time.Time
	LastFailureTime      time.Time
}

// Degraded reports whether the engine is running at reduced rate
// because of repeated failures.
func (m Metrics) Degraded() bool {
	return m.BreakerState != BreakerClosed
}

// Scheduler runs the polling loop. It owns exactly one background
// goroutine between Start and Stop.
type Scheduler struct {
	process   ProcessFunc
	strategy  Strategy
	breaker   *Breaker
	log       *logging.Logger
	enabled   bool
	loadProbe func() float64
	startWait time.Duration

	mu     sync.Mutex // guards lifecycle state
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	metricsMu sync.Mutex // guards counters, written by the loop
	counters  counters
}

type counters struct {
	totalPolls      int64
	successfulPolls int64
	failedPolls     int64
	skippedPolls    int64
	cancelledPolls  int64
	itemsProcessed  int64
	totalDuration   time.Duration

	consecutiveFailures  int
	consecutiveSuccesses int
	lastQueueDepth       int
	lastPollDuration     time.Duration
	lastPollTime         time.Time
	lastSuccessTime      time.Time
	lastFailureTime      time.Time
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Process == nil {
		return nil, engerrors.Validation("processing callback is required")
	}
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = NewFixedInterval(time.Minute)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	startWait := cfg.StartTimeout
	if startWait <= 0 {
		startWait = time.Second
	}

	return &Scheduler{
		process:   cfg.Process,
		strategy:  strategy,
		breaker:   NewBreaker(cfg.Breaker),
		log:       log.WithComponent("scheduler"),
		enabled:   cfg.Enabled,
		loadProbe: cfg.LoadProbe,
		startWait: startWait,
		state:     StateStopped,
	}, nil
}

// Start launches the polling loop. It fails unless the scheduler is
// currently stopped and enabled. The loop runs until Stop is called or
// ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return engerrors.SchedulerStart("scheduler is " + string(s.state) + ", not stopped")
	}
	if !s.enabled {
		return engerrors.SchedulerStart("continuous polling is disabled")
	}

	s.setState(StateStarting)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ready := make(chan struct{})

	go s.run(loopCtx, ready)

	select {
	case <-ready:
		s.setState(StateRunning)
		s.log.Info("scheduler started", map[string]interface{}{
			"strategy": string(s.strategy.Type()),
		})
		return nil
	case <-time.After(s.startWait):
		cancel()
		s.setState(StateFailed)
		return engerrors.SchedulerStart("polling loop failed to launch")
	}
}

// Stop shuts the loop down and waits for it to finish, bounded by ctx.
// Stopping an already stopped or stopping scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateFailed {
		s.setState(StateStopped)
		s.mu.Unlock()
		return nil
	}
	s.setState(StateStopping)
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return engerrors.Wrap(ctx.Err(), "timed out waiting for polling loop to stop")
	}

	s.mu.Lock()
	s.setState(StateStopped)
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return nil
}

// setState must be called with mu held.
func (s *Scheduler) setState(next State) {
	s.log.SchedulerStateChange(string(s.state), string(next))
	s.state = next
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the loop is live.
func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// run is the polling loop. All breaker and counter mutations happen
// here.
func (s *Scheduler) run(ctx context.Context, ready chan<- struct{}) {
	defer close(s.done)
	close(ready)
	s.log.Info("polling loop started")

	// The first cycle always polls; the strategy is consulted after
	// each cycle and gates the next one. A scheduler started outside a
	// scheduled window therefore checks the queue once at startup.
	shouldProcess := true
	skipReason := ""
	for {
		if ctx.Err() != nil {
			s.log.Info("polling loop finished")
			return
		}

		if !shouldProcess {
			s.log.PollSkipped(skipReason)
			s.recordSkip()
		} else if allowed, state := s.breaker.Allow(time.Now()); !allowed {
			s.log.PollSkipped("circuit breaker open")
			s.recordSkip()
		} else {
			if state == BreakerHalfOpen {
				s.log.Info("circuit breaker probing recovery")
			}
			s.poll(ctx)
		}

		decision := s.strategy.Decide(s.healthSnapshot())
		shouldProcess = decision.ShouldPoll
		skipReason = decision.Reason

		timer := time.NewTimer(decision.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("polling loop finished")
			return
		case <-timer.C:
		}
	}
}

// poll runs one processing cycle and feeds the outcome to the breaker
// and counters.
func (s *Scheduler) poll(ctx context.Context) {
	s.log.PollStart()
	start := time.Now()
	result, err := s.process(ctx)
	duration := time.Since(start)

	if err != nil {
		// A shutdown mid-cycle is not a service fault.
		if engerrors.IsCanceled(err) {
			s.recordCancelled(duration)
			s.log.PollSkipped("processing cancelled by shutdown")
			return
		}
		before := s.breaker.State()
		after := s.breaker.RecordFailure(time.Now())
		s.recordFailure(duration)
		s.log.PollFailed(duration, err)
		if before != after {
			s.logBreakerChange(before, after)
		}
		return
	}

	before := s.breaker.State()
	after := s.breaker.RecordSuccess()
	s.recordSuccess(duration, result)
	s.log.PollComplete(duration, result.ItemsProcessed)
	if before != after {
		s.logBreakerChange(before, after)
	}
}

func (s *Scheduler) logBreakerChange(from, to BreakerState) {
	s.metricsMu.Lock()
	failures := s.counters.consecutiveFailures
	s.metricsMu.Unlock()
	s.log.BreakerStateChange(string(from), string(to), failures)
}

func (s *Scheduler) recordSuccess(duration time.Duration, result Result) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	now := time.Now()
	c := &s.counters
	c.totalPolls++
	c.successfulPolls++
	c.itemsProcessed += int64(result.ItemsProcessed)
	c.totalDuration += duration
	c.consecutiveFailures = 0
	c.consecutiveSuccesses++
	c.lastQueueDepth = result.QueueDepth
	c.lastPollDuration = duration
	c.lastPollTime = now
	c.lastSuccessTime = now
}

func (s *Scheduler) recordFailure(duration time.Duration) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	now := time.Now()
	c := &s.counters
	c.totalPolls++
	c.failedPolls++
	c.totalDuration += duration
	c.consecutiveSuccesses = 0
	c.consecutiveFailures++
	c.lastPollDuration = duration
	c.lastPollTime = now
	c.lastFailureTime = now
}

func (s *Scheduler) recordCancelled(duration time.Duration) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	c := &s.counters
	c.cancelledPolls++
	c.lastPollDuration = duration
	c.lastPollTime = time.Now()
}

func (s *Scheduler) recordSkip() {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	s.counters.skippedPolls++
}

// healthSnapshot builds the strategy input from running counters.
func (s *Scheduler) healthSnapshot() Snapshot {
	var load float64
	if s.loadProbe != nil {
		load = s.loadProbe()
	}

	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	c := s.counters

	var errorRate float64
	var avg time.Duration
	if c.totalPolls > 0 {
		errorRate = float64(c.failedPolls) / float64(c.totalPolls)
		avg = c.totalDuration / time.Duration(c.totalPolls)
	}

	return Snapshot{
		ConsecutiveFailures:  c.consecutiveFailures,
		ConsecutiveSuccesses: c.consecutiveSuccesses,
		TotalPolls:           c.totalPolls,
		QueueDepth:           c.lastQueueDepth,
		LastPollDuration:     c.lastPollDuration,
		LastPollTime:         c.lastPollTime,
		AverageProcessing:    avg,
		SystemLoad:           load,
		ErrorRate:            errorRate,
	}
}

// Metrics returns a snapshot without mutating anything.
func (s *Scheduler) Metrics() Metrics {
	state := s.State()

	s.metricsMu.Lock()
	c := s.counters
	s.metricsMu.Unlock()

	m := Metrics{
		State:                state,
		BreakerState:         s.breaker.State(),
		Strategy:             s.strategy.Type(),
		Enabled:              s.enabled,
		TotalPolls:           c.totalPolls,
		SuccessfulPolls:      c.successfulPolls,
		FailedPolls:          c.failedPolls,
		SkippedPolls:         c.skippedPolls,
		CancelledPolls:       c.cancelledPolls,
		ItemsProcessed:       c.itemsProcessed,
		BreakerTrips:         s.breaker.Trips(),
		ConsecutiveFailures:  c.consecutiveFailures,
		ConsecutiveSuccesses: c.consecutiveSuccesses,
		LastPollTime:         c.lastPollTime,
		LastSuccessTime:      c.lastSuccessTime,
		LastFailureTime:      c.lastFailureTime,
	}
	if c.totalPolls > 0 {
		m.SuccessRate = float64(c.successfulPolls) / float64(c.totalPolls) * 100
		m.AverageDuration = c.totalDuration / time.Duration(c.totalPolls)
	}
	return m
}

// ForcePoll runs one cycle immediately, outside the loop's cadence.
// The scheduler must be running. The breaker still applies.
func (s *Scheduler) ForcePoll(ctx context.Context) (Result, error) {
	if !s.IsRunning() {
		return Result{}, engerrors.Validation("scheduler must be running to force a poll")
	}
	if allowed, _ := s.breaker.Allow(time.Now()); !allowed {
		return Result{}, engerrors.Backend("circuit breaker open",
			engerrors.WithRetryable(true))
	}
	return s.process(ctx)
}
