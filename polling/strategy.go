// Package polling decides when the engine checks for new work and runs
// the loop that does the checking.
//
// Strategies compute the next wait from a snapshot of recent scheduler
// health. The Scheduler owns a single background goroutine that gates
// each cycle through a circuit breaker, invokes an injected processing
// callback, and sleeps interruptibly until the strategy's next decided
// poll time.
package polling

import (
	"fmt"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
)

// StrategyType identifies a polling strategy implementation.
type StrategyType string

const (
	StrategyFixedInterval      StrategyType = "fixed_interval"
	StrategyExponentialBackoff StrategyType = "exponential_backoff"
	StrategyAdaptive           StrategyType = "adaptive"
	StrategyScheduledWindows   StrategyType = "scheduled_windows"
)

// Snapshot carries recent scheduler health into a strategy decision.
// It is rebuilt from running metrics each cycle.
type Snapshot struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalPolls           int64
	QueueDepth           int
	LastPollDuration     time.Duration
	LastPollTime         time.Time
	AverageProcessing    time.Duration
	SystemLoad           float64 // 0..1
	ErrorRate            float64 // 0..1

	// Now is the decision time. Zero means time.Now; tests pin it.
	Now time.Time
}

func (s Snapshot) now() time.Time {
	if s.Now.IsZero() {
		return time.Now()
	}
	return s.Now
}

// Decision is a strategy's answer for one cycle. Consumed immediately.
type Decision struct {
	ShouldPoll bool
	Wait       time.Duration
	Reason     string
	Metadata   map[string]interface{}
}

// Strategy computes poll timing from scheduler health.
type Strategy interface {
	Type() StrategyType

	// Decide returns the next poll decision for the given health
	// snapshot.
	Decide(snap Snapshot) Decision

	// Configure applies strategy-specific settings. Unknown keys are
	// ignored; invalid values return a validation error.
	Configure(settings map[string]interface{}) error

	// Configuration returns the current settings.
	Configuration() map[string]interface{}
}

// NewStrategy creates a strategy of the given type and applies settings.
func NewStrategy(t StrategyType, settings map[string]interface{}) (Strategy, error) {
	var s Strategy
	switch t {
	case StrategyFixedInterval:
		s = NewFixedInterval(0)
	case StrategyExponentialBackoff:
		s = NewExponentialBackoff(ExponentialBackoffConfig{})
	case StrategyAdaptive:
		s = NewAdaptive(AdaptiveConfig{})
	case StrategyScheduledWindows:
		s = NewScheduledWindows(ScheduledWindowsConfig{})
	default:
		return nil, engerrors.Validation(fmt.Sprintf("unsupported polling strategy %q", t))
	}
	if len(settings) > 0 {
		if err := s.Configure(settings); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Setting coercion helpers. TOML and JSON decoders hand back int64 or
// float64 for numbers depending on the source.

func intSetting(settings map[string]interface{}, key string, out *int) error {
	v, ok := settings[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case int:
		*out = n
	case int64:
		*out = int(n)
	case float64:
		*out = int(n)
	default:
		return engerrors.Validation(fmt.Sprintf("setting %q must be a number", key))
	}
	return nil
}

func floatSetting(settings map[string]interface{}, key string, out *float64) error {
	v, ok := settings[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case int:
		*out = float64(n)
	case int64:
		*out = float64(n)
	case float64:
		*out = n
	default:
		return engerrors.Validation(fmt.Sprintf("setting %q must be a number", key))
	}
	return nil
}

func boolSetting(settings map[string]interface{}, key string, out *bool) error {
	v, ok := settings[key]
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return engerrors.Validation(fmt.Sprintf("setting %q must be a boolean", key))
	}
	*out = b
	return nil
}
