// Package transition enforces the task status state machine.
//
// Transitions are read-verify-write: the manager re-reads the item's
// actual status before writing, re-validates against what it actually
// found, writes, then reads again to confirm the write landed. Batches
// roll back already-applied transitions when a later one fails, saga
// style. Expected business failures come back as a failed Transition
// record, not as an error return.
package transition

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	engerrors "github.com/taskloop/taskloop/errors"
	"github.com/taskloop/taskloop/logging"
	"github.com/taskloop/taskloop/source"
)

// Result classifies the outcome of a transition or rollback attempt.
type Result string

const (
	ResultSuccess         Result = "success"
	ResultFailed          Result = "failed"
	ResultRollbackSuccess Result = "rollback_success"
	ResultRollbackFailed  Result = "rollback_failed"
)

// Transition records one state change attempt.
type Transition struct {
	ID        string
	TaskID    string
	From      source.Status // updated to the actual status when a stale read is detected
	To        source.Status
	Timestamp time.Time
	Result    Result
	Err       error

	RollbackAttempted bool
	RollbackResult    Result
}

// validTransitions is the allow-list of state machine edges. Done is
// terminal.
var validTransitions = map[source.Status][]source.Status{
	source.StatusQueued:     {source.StatusInProgress},
	source.StatusInProgress: {source.StatusDone, source.StatusFailed},
	source.StatusFailed:     {source.StatusQueued, source.StatusInProgress},
	source.StatusDone:       {},
}

// IsValidTransition reports whether the edge from → to is allowed.
func IsValidTransition(from, to source.Status) bool {
	for _, target := range validTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidTargets returns the allowed destination statuses for a status.
func ValidTargets(from source.Status) []source.Status {
	targets := validTransitions[from]
	out := make([]source.Status, len(targets))
	copy(out, targets)
	return out
}

// DefaultMaxHistory bounds the in-memory transition history.
const DefaultMaxHistory = 1000

// ManagerConfig holds manager settings. Source is required.
type ManagerConfig struct {
	Source     source.TaskSource
	Logger     *logging.Logger
	MaxHistory int // default DefaultMaxHistory
}

// Manager serializes all status writes behind one mutex. Rollback runs
// inside the same critical section as the failed forward transition
// that triggered it, so the mutating work lives in unexported methods
// that expect the lock to be held.
type Manager struct {
	src source.TaskSource
	log *logging.Logger

	mu         sync.Mutex
	history    []*Transition
	maxHistory int
}

// NewManager creates a transition manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, engerrors.Validation("task source is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		src:        cfg.Source,
		log:        log.WithComponent("transition"),
		maxHistory: maxHistory,
	}, nil
}

// Transition moves one task from → to. Validation and verification
// failures are reported in the returned record's Result and Err, with
// a nil error return; the error return is reserved for misuse of the
// API itself.
func (m *Manager) Transition(ctx context.Context, taskID string, from, to source.Status, validate bool) *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(ctx, taskID, from, to, validate)
}

// transitionLocked does the read-verify-write dance. Caller holds mu.
func (m *Manager) transitionLocked(ctx context.Context, taskID string, from, to source.Status, validate bool) *Transition {
	t := &Transition{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		From:      from,
		To:        to,
		Timestamp: time.Now(),
	}

	if validate && !IsValidTransition(from, to) {
		t.Result = ResultFailed
		t.Err = engerrors.InvalidTransition(string(from), string(to),
			engerrors.WithTaskID(taskID))
		m.finishLocked(t)
		return t
	}

	// Pre-read: the caller's view of the current status may be stale.
	actual, err := m.src.ReadStatus(ctx, taskID)
	if err != nil {
		// Proceed on the caller's assumption; the post-write
		// verification still protects us.
		m.log.Warn("could not verify current status", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
	} else if actual != from {
		m.log.Warn("status mismatch", map[string]interface{}{
			"task_id":  taskID,
			"expected": string(from),
			"actual":   string(actual),
		})
		t.From = actual
		if validate && !IsValidTransition(actual, to) {
			t.Result = ResultFailed
			t.Err = engerrors.InvalidTransition(string(actual), string(to),
				engerrors.WithTaskID(taskID),
				engerrors.WithMetadata("stale_read", string(from)))
			m.finishLocked(t)
			return t
		}
	}

	if _, err := m.src.WriteStatus(ctx, taskID, to); err != nil {
		t.Result = ResultFailed
		t.Err = engerrors.Wrap(err, "status write failed",
			engerrors.WithTaskID(taskID))
		m.finishLocked(t)
		return t
	}

	// Post-write verification: never trust the write call's return
	// value alone.
	landed, err := m.src.ReadStatus(ctx, taskID)
	switch {
	case err != nil:
		t.Result = ResultFailed
		t.Err = engerrors.Wrap(err, "could not verify status write",
			engerrors.WithTaskID(taskID))
	case landed != to:
		t.Result = ResultFailed
		t.Err = engerrors.VerificationMismatch(string(to), string(landed),
			engerrors.WithTaskID(taskID))
	default:
		t.Result = ResultSuccess
	}

	m.finishLocked(t)
	return t
}

// finishLocked records the transition in history and logs the outcome.
func (m *Manager) finishLocked(t *Transition) {
	m.history = append(m.history, t)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
	m.log.TransitionOutcome(t.TaskID, string(t.From), string(t.To), string(t.Result), t.Err)
}

// Rollback writes the transition's original status back and verifies
// it landed. A second call on the same record is a no-op.
func (m *Manager) Rollback(ctx context.Context, t *Transition) *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbackLocked(ctx, t)
}

func (m *Manager) rollbackLocked(ctx context.Context, t *Transition) *Transition {
	if t.RollbackAttempted {
		m.log.Warn("rollback already attempted", map[string]interface{}{
			"task_id": t.TaskID,
		})
		return t
	}
	t.RollbackAttempted = true

	if _, err := m.src.WriteStatus(ctx, t.TaskID, t.From); err != nil {
		t.RollbackResult = ResultRollbackFailed
		m.log.TransitionOutcome(t.TaskID, string(t.To), string(t.From),
			string(ResultRollbackFailed), err)
		return t
	}

	landed, err := m.src.ReadStatus(ctx, t.TaskID)
	if err != nil || landed != t.From {
		t.RollbackResult = ResultRollbackFailed
		if err == nil {
			err = engerrors.VerificationMismatch(string(t.From), string(landed),
				engerrors.WithTaskID(t.TaskID))
		}
		m.log.TransitionOutcome(t.TaskID, string(t.To), string(t.From),
			string(ResultRollbackFailed), err)
		return t
	}

	t.RollbackResult = ResultRollbackSuccess
	m.log.TransitionOutcome(t.TaskID, string(t.To), string(t.From),
		string(ResultRollbackSuccess), nil)
	return t
}

// Request is one entry in a batch transition.
type Request struct {
	TaskID string
	From   source.Status
	To     source.Status
}

// BatchTransition applies requests in order. On the first failure it
// rolls back every transition that had already succeeded in this batch
// and stops; remaining requests are not attempted. The returned slice
// covers only the attempted requests, up to and including the failure.
func (m *Manager) BatchTransition(ctx context.Context, requests []Request) []*Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]*Transition, 0, len(requests))
	var succeeded []*Transition

	for _, req := range requests {
		t := m.transitionLocked(ctx, req.TaskID, req.From, req.To, true)
		results = append(results, t)

		if t.Result == ResultSuccess {
			succeeded = append(succeeded, t)
			continue
		}

		// Unwind in the order the transitions succeeded. A rollback
		// failure is recorded on its transition but does not stop the
		// rest of the unwinding.
		for _, prior := range succeeded {
			m.rollbackLocked(ctx, prior)
		}
		break
	}
	return results
}

// History returns copies of recent transitions, optionally filtered by
// task ID. Zero limit means up to 100.
func (m *Manager) History(taskID string, limit int) []Transition {
	if limit <= 0 {
		limit = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []*Transition
	if taskID == "" {
		filtered = m.history
	} else {
		for _, t := range m.history {
			if t.TaskID == taskID {
				filtered = append(filtered, t)
			}
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	out := make([]Transition, len(filtered))
	for i, t := range filtered {
		out[i] = *t
	}
	return out
}

// Stats summarizes transition history.
type Stats struct {
	TotalTransitions    int
	Successful          int
	Failed              int
	RollbacksAttempted  int
	RollbacksSuccessful int
	SuccessRate         float64 // percent
	RollbackSuccessRate float64 // percent
}

// Statistics computes stats over the retained history.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	s.TotalTransitions = len(m.history)
	for _, t := range m.history {
		switch t.Result {
		case ResultSuccess:
			s.Successful++
		case ResultFailed:
			s.Failed++
		}
		if t.RollbackAttempted {
			s.RollbacksAttempted++
			if t.RollbackResult == ResultRollbackSuccess {
				s.RollbacksSuccessful++
			}
		}
	}
	if s.TotalTransitions > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalTransitions) * 100
	}
	if s.RollbacksAttempted > 0 {
		s.RollbackSuccessRate = float64(s.RollbacksSuccessful) / float64(s.RollbacksAttempted) * 100
	}
	return s
}
