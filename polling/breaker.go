package polling

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's gate position.
type BreakerState string

const (
	// BreakerClosed is normal operation.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen blocks polls after repeated failures.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen probes whether the service recovered.
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig holds circuit breaker thresholds. Zero values get
// defaults.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening, default 5
	RecoveryTimeout  time.Duration // wait before probing recovery, default 60s
	SuccessThreshold int           // successes needed to close from half-open, default 2
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	return c
}

// Breaker is a three-state circuit breaker. The scheduler loop is its
// only mutator; the mutex exists so metrics snapshots can read it from
// other goroutines.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	state           BreakerState
	failures        int // consecutive failures while closed
	halfOpenSuccess int
	trips           int64
	lastFailureTime time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: BreakerClosed}
}

// Allow reports whether a poll may proceed, moving OPEN to HALF_OPEN
// once the recovery timeout has elapsed since the last failure.
func (b *Breaker) Allow(now time.Time) (bool, BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, b.state
	case BreakerOpen:
		if !b.lastFailureTime.IsZero() && now.Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenSuccess = 0
			return true, b.state
		}
		return false, b.state
	default: // half-open
		return true, b.state
	}
}

// RecordSuccess registers a successful poll. In HALF_OPEN it counts
// toward the success threshold and closes the breaker when met.
func (b *Breaker) RecordSuccess() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
			b.state = BreakerClosed
			b.halfOpenSuccess = 0
			b.failures = 0
		}
		return b.state
	}
	b.failures = 0
	return b.state
}

// RecordFailure registers a failed poll. Opens the breaker after the
// failure threshold from CLOSED, or immediately from HALF_OPEN.
func (b *Breaker) RecordFailure(now time.Time) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = now

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.halfOpenSuccess = 0
		b.failures = 0
		b.trips++
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
			b.failures = 0
			b.trips++
		}
	}
	return b.state
}

// State returns the current gate position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}
