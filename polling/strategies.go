package polling

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
)

// FixedInterval polls at a constant interval.
type FixedInterval struct {
	mu       sync.Mutex
	interval time.Duration
}

var _ Strategy = (*FixedInterval)(nil)

// NewFixedInterval creates a fixed-interval strategy. Non-positive
// intervals fall back to one minute.
func NewFixedInterval(interval time.Duration) *FixedInterval {
	return &FixedInterval{interval: clampMinute(interval)}
}

func (f *FixedInterval) Type() StrategyType { return StrategyFixedInterval }

func (f *FixedInterval) Decide(Snapshot) Decision {
	f.mu.Lock()
	interval := f.interval
	f.mu.Unlock()

	return Decision{
		ShouldPoll: true,
		Wait:       interval,
		Reason:     fmt.Sprintf("fixed interval of %s", interval),
		Metadata: map[string]interface{}{
			"interval_minutes": interval.Minutes(),
		},
	}
}

func (f *FixedInterval) Configure(settings map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	minutes := int(f.interval.Minutes())
	if err := intSetting(settings, "interval_minutes", &minutes); err != nil {
		return err
	}
	f.interval = clampMinute(time.Duration(minutes) * time.Minute)
	return nil
}

func (f *FixedInterval) Configuration() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]interface{}{
		"interval_minutes": f.interval.Minutes(),
	}
}

// ExponentialBackoffConfig holds settings for the backoff strategy.
// Zero values get defaults.
type ExponentialBackoffConfig struct {
	BaseInterval time.Duration // default 1m
	MaxInterval  time.Duration // default 60m
	Multiplier   float64       // default 2.0, floor 1.1

	// HoldAfterSuccess keeps the elevated interval after the failure
	// streak clears instead of snapping back to BaseInterval. Off by
	// default: recovery returns the cadence to base.
	HoldAfterSuccess bool
}

// ExponentialBackoff lengthens the wait as consecutive failures
// accumulate and snaps back to the base interval once a poll succeeds.
type ExponentialBackoff struct {
	mu      sync.Mutex
	cfg     ExponentialBackoffConfig
	current time.Duration
}

var _ Strategy = (*ExponentialBackoff)(nil)

// NewExponentialBackoff creates a backoff strategy.
func NewExponentialBackoff(cfg ExponentialBackoffConfig) *ExponentialBackoff {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = time.Minute
	}
	cfg.BaseInterval = clampMinute(cfg.BaseInterval)
	if cfg.MaxInterval < cfg.BaseInterval {
		cfg.MaxInterval = 60 * time.Minute
		if cfg.MaxInterval < cfg.BaseInterval {
			cfg.MaxInterval = cfg.BaseInterval
		}
	}
	if cfg.Multiplier < 1.1 {
		if cfg.Multiplier == 0 {
			cfg.Multiplier = 2.0
		} else {
			cfg.Multiplier = 1.1
		}
	}
	return &ExponentialBackoff{cfg: cfg, current: cfg.BaseInterval}
}

func (e *ExponentialBackoff) Type() StrategyType { return StrategyExponentialBackoff }

func (e *ExponentialBackoff) Decide(snap Snapshot) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snap.ConsecutiveFailures > 0 {
		scaled := float64(e.cfg.BaseInterval) * math.Pow(e.cfg.Multiplier, float64(snap.ConsecutiveFailures))
		e.current = time.Duration(math.Min(scaled, float64(e.cfg.MaxInterval)))
	} else if snap.ConsecutiveSuccesses > 0 && !e.cfg.HoldAfterSuccess {
		e.current = e.cfg.BaseInterval
	}

	return Decision{
		ShouldPoll: true,
		Wait:       e.current,
		Reason: fmt.Sprintf("exponential backoff: %s (failures: %d)",
			e.current, snap.ConsecutiveFailures),
		Metadata: map[string]interface{}{
			"current_interval_minutes": e.current.Minutes(),
			"consecutive_failures":     snap.ConsecutiveFailures,
		},
	}
}

func (e *ExponentialBackoff) Configure(settings map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := int(e.cfg.BaseInterval.Minutes())
	max := int(e.cfg.MaxInterval.Minutes())
	mult := e.cfg.Multiplier
	reset := !e.cfg.HoldAfterSuccess
	if err := intSetting(settings, "base_interval_minutes", &base); err != nil {
		return err
	}
	if err := intSetting(settings, "max_interval_minutes", &max); err != nil {
		return err
	}
	if err := floatSetting(settings, "backoff_multiplier", &mult); err != nil {
		return err
	}
	if err := boolSetting(settings, "reset_after_success", &reset); err != nil {
		return err
	}

	if base < 1 {
		base = 1
	}
	if max < base {
		max = base
	}
	if mult < 1.1 {
		mult = 1.1
	}
	e.cfg = ExponentialBackoffConfig{
		BaseInterval:     time.Duration(base) * time.Minute,
		MaxInterval:      time.Duration(max) * time.Minute,
		Multiplier:       mult,
		HoldAfterSuccess: !reset,
	}
	e.current = e.cfg.BaseInterval
	return nil
}

func (e *ExponentialBackoff) Configuration() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]interface{}{
		"base_interval_minutes":    e.cfg.BaseInterval.Minutes(),
		"max_interval_minutes":     e.cfg.MaxInterval.Minutes(),
		"backoff_multiplier":       e.cfg.Multiplier,
		"reset_after_success":      !e.cfg.HoldAfterSuccess,
		"current_interval_minutes": e.current.Minutes(),
	}
}

// AdaptiveConfig holds settings for the adaptive strategy. Zero values
// get defaults.
type AdaptiveConfig struct {
	BaseInterval   time.Duration // default 5m
	MinInterval    time.Duration // default 1m
	MaxInterval    time.Duration // default 60m
	QueueThreshold int           // default 5
	LoadThreshold  float64       // default 0.8, clamped to [0.1, 1.0]
}

// Adaptive shortens the wait when the queue is deep and stretches it
// when the queue is empty, the system is loaded, or the error rate is
// high. The result is always clamped to [MinInterval, MaxInterval].
type Adaptive struct {
	mu  sync.Mutex
	cfg AdaptiveConfig
}

var _ Strategy = (*Adaptive)(nil)

// NewAdaptive creates an adaptive strategy.
func NewAdaptive(cfg AdaptiveConfig) *Adaptive {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 5 * time.Minute
	}
	cfg.BaseInterval = clampMinute(cfg.BaseInterval)
	cfg.MinInterval = clampMinute(cfg.MinInterval)
	if cfg.MaxInterval < cfg.BaseInterval {
		cfg.MaxInterval = 60 * time.Minute
		if cfg.MaxInterval < cfg.BaseInterval {
			cfg.MaxInterval = cfg.BaseInterval
		}
	}
	if cfg.QueueThreshold < 1 {
		cfg.QueueThreshold = 5
	}
	if cfg.LoadThreshold == 0 {
		cfg.LoadThreshold = 0.8
	}
	cfg.LoadThreshold = math.Max(0.1, math.Min(1.0, cfg.LoadThreshold))
	return &Adaptive{cfg: cfg}
}

func (a *Adaptive) Type() StrategyType { return StrategyAdaptive }

func (a *Adaptive) Decide(snap Snapshot) Decision {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	interval := float64(cfg.BaseInterval)
	var adjustments []string

	if snap.QueueDepth > cfg.QueueThreshold {
		factor := math.Min(2.0, float64(snap.QueueDepth)/float64(cfg.QueueThreshold))
		interval /= factor
		adjustments = append(adjustments, fmt.Sprintf("high queue depth (%d)", snap.QueueDepth))
	} else if snap.QueueDepth == 0 {
		interval *= 1.5
		adjustments = append(adjustments, "empty queue")
	}

	if snap.SystemLoad > cfg.LoadThreshold {
		interval *= 1.0 + (snap.SystemLoad - cfg.LoadThreshold)
		adjustments = append(adjustments, fmt.Sprintf("high system load (%.2f)", snap.SystemLoad))
	}

	if snap.ErrorRate > 0.1 {
		interval *= 1.0 + snap.ErrorRate
		adjustments = append(adjustments, fmt.Sprintf("high error rate (%.2f)", snap.ErrorRate))
	}

	interval = math.Max(float64(cfg.MinInterval), math.Min(float64(cfg.MaxInterval), interval))
	wait := time.Duration(interval)

	reason := fmt.Sprintf("adaptive polling: %s", wait)
	if len(adjustments) > 0 {
		reason += " (adjusted for: " + strings.Join(adjustments, ", ") + ")"
	}

	return Decision{
		ShouldPoll: true,
		Wait:       wait,
		Reason:     reason,
		Metadata: map[string]interface{}{
			"calculated_interval_minutes": wait.Minutes(),
			"queue_depth":                 snap.QueueDepth,
			"system_load":                 snap.SystemLoad,
			"error_rate":                  snap.ErrorRate,
			"adjustments":                 adjustments,
		},
	}
}

func (a *Adaptive) Configure(settings map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	base := int(a.cfg.BaseInterval.Minutes())
	min := int(a.cfg.MinInterval.Minutes())
	max := int(a.cfg.MaxInterval.Minutes())
	queueThreshold := a.cfg.QueueThreshold
	loadThreshold := a.cfg.LoadThreshold
	if err := intSetting(settings, "base_interval_minutes", &base); err != nil {
		return err
	}
	if err := intSetting(settings, "min_interval_minutes", &min); err != nil {
		return err
	}
	if err := intSetting(settings, "max_interval_minutes", &max); err != nil {
		return err
	}
	if err := intSetting(settings, "queue_threshold", &queueThreshold); err != nil {
		return err
	}
	if err := floatSetting(settings, "load_threshold", &loadThreshold); err != nil {
		return err
	}

	if base < 1 {
		base = 1
	}
	if min < 1 {
		min = 1
	}
	if max < base {
		max = base
	}
	if queueThreshold < 1 {
		queueThreshold = 1
	}
	a.cfg = AdaptiveConfig{
		BaseInterval:   time.Duration(base) * time.Minute,
		MinInterval:    time.Duration(min) * time.Minute,
		MaxInterval:    time.Duration(max) * time.Minute,
		QueueThreshold: queueThreshold,
		LoadThreshold:  math.Max(0.1, math.Min(1.0, loadThreshold)),
	}
	return nil
}

func (a *Adaptive) Configuration() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]interface{}{
		"base_interval_minutes": a.cfg.BaseInterval.Minutes(),
		"min_interval_minutes":  a.cfg.MinInterval.Minutes(),
		"max_interval_minutes":  a.cfg.MaxInterval.Minutes(),
		"queue_threshold":       a.cfg.QueueThreshold,
		"load_threshold":        a.cfg.LoadThreshold,
	}
}

// Window is one recurring daily polling window.
type Window struct {
	StartHour int // inclusive, 0..23
	EndHour   int // exclusive, 1..24
	Days      []time.Weekday
}

func (w Window) contains(t time.Time) bool {
	if w.StartHour > t.Hour() || t.Hour() >= w.EndHour {
		return false
	}
	for _, d := range w.Days {
		if d == t.Weekday() {
			return true
		}
	}
	return false
}

// ScheduledWindowsConfig holds settings for window-restricted polling.
type ScheduledWindowsConfig struct {
	Windows  []Window      // default: weekday business hours plus reduced weekend hours
	Interval time.Duration // in-window poll interval, default 5m
}

// ScheduledWindows polls only inside configured daily windows. Outside
// a window it reports ShouldPoll false with a wait that lands at the
// next window's opening.
type ScheduledWindows struct {
	mu  sync.Mutex
	cfg ScheduledWindowsConfig
}

var _ Strategy = (*ScheduledWindows)(nil)

// DefaultWindows is the window set used when none are configured.
func DefaultWindows() []Window {
	return []Window{
		{StartHour: 9, EndHour: 17, Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
		{StartHour: 10, EndHour: 14, Days: []time.Weekday{
			time.Saturday, time.Sunday}},
	}
}

// NewScheduledWindows creates a window-restricted strategy.
func NewScheduledWindows(cfg ScheduledWindowsConfig) *ScheduledWindows {
	if len(cfg.Windows) == 0 {
		cfg.Windows = DefaultWindows()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	cfg.Interval = clampMinute(cfg.Interval)
	return &ScheduledWindows{cfg: cfg}
}

func (s *ScheduledWindows) Type() StrategyType { return StrategyScheduledWindows }

func (s *ScheduledWindows) Decide(snap Snapshot) Decision {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := snap.now()
	for _, w := range cfg.Windows {
		if w.contains(now) {
			return Decision{
				ShouldPoll: true,
				Wait:       cfg.Interval,
				Reason:     fmt.Sprintf("active window %02d:00-%02d:00", w.StartHour, w.EndHour),
				Metadata: map[string]interface{}{
					"in_window":        true,
					"interval_minutes": cfg.Interval.Minutes(),
				},
			}
		}
	}

	next := nextWindowOpen(now, cfg.Windows)
	wait := next.Sub(now)
	if wait < time.Minute {
		wait = time.Minute
	}
	return Decision{
		ShouldPoll: false,
		Wait:       wait,
		Reason:     fmt.Sprintf("outside polling window, next at %s", next.Format("Mon 15:04")),
		Metadata: map[string]interface{}{
			"in_window":   false,
			"next_window": next,
		},
	}
}

// nextWindowOpen finds the earliest window opening at or after now.
func nextWindowOpen(now time.Time, windows []Window) time.Time {
	// Same day, later windows first.
	var candidates []time.Time
	for _, w := range windows {
		if w.StartHour > now.Hour() {
			for _, d := range w.Days {
				if d == now.Weekday() {
					candidates = append(candidates, atHour(now, 0, w.StartHour))
				}
			}
		}
	}
	// Then the following seven days.
	for offset := 1; offset <= 7 && len(candidates) == 0; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, w := range windows {
			for _, d := range w.Days {
				if d == day.Weekday() {
					candidates = append(candidates, atHour(now, offset, w.StartHour))
				}
			}
		}
	}
	if len(candidates) == 0 {
		// No days configured at all: try again tomorrow at the earliest
		// configured hour.
		first := windows[0]
		for _, w := range windows[1:] {
			if w.StartHour < first.StartHour {
				first = w
			}
		}
		return atHour(now, 1, first.StartHour)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	return candidates[0]
}

func atHour(base time.Time, dayOffset, hour int) time.Time {
	d := base.AddDate(0, 0, dayOffset)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, d.Location())
}

func (s *ScheduledWindows) Configure(settings map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	minutes := int(s.cfg.Interval.Minutes())
	if err := intSetting(settings, "interval_minutes", &minutes); err != nil {
		return err
	}
	if minutes < 1 {
		minutes = 1
	}
	s.cfg.Interval = time.Duration(minutes) * time.Minute

	if raw, ok := settings["windows"]; ok {
		windows, ok := raw.([]Window)
		if !ok {
			return engerrors.Validation(`setting "windows" must be a []Window`)
		}
		if len(windows) == 0 {
			return engerrors.Validation("at least one polling window is required")
		}
		for _, w := range windows {
			if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 1 || w.EndHour > 24 || w.StartHour >= w.EndHour {
				return engerrors.Validation(fmt.Sprintf("invalid window %02d:00-%02d:00", w.StartHour, w.EndHour))
			}
		}
		s.cfg.Windows = windows
	}
	return nil
}

func (s *ScheduledWindows) Configuration() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"windows":          s.cfg.Windows,
		"interval_minutes": s.cfg.Interval.Minutes(),
	}
}

// clampMinute substitutes a one-minute default for non-positive
// intervals. Positive sub-minute values pass through; minimum bounds
// are the config layer's job.
func clampMinute(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}
