package source

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemorySource implements TaskSource using in-memory storage.
// Useful for testing and single-process scenarios.
type MemorySource struct {
	mu     sync.RWMutex
	tasks  map[string]*TaskRef
	order  []string
	closed atomic.Bool

	// WriteHook, if set, runs before every WriteStatus under the lock.
	// Tests use it to inject write failures.
	WriteHook func(id string, status Status) error

	// DropWrites makes WriteStatus report success without mutating,
	// simulating a store that silently loses writes.
	DropWrites bool
}

var _ TaskSource = (*MemorySource)(nil)

// NewMemorySource creates an empty in-memory task source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tasks: make(map[string]*TaskRef),
	}
}

// Add inserts a task and returns its generated ID.
func (s *MemorySource) Add(title, model, content string, status Status) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = &TaskRef{
		ID:      id,
		Title:   title,
		Status:  status,
		Model:   model,
		Content: content,
	}
	s.order = append(s.order, id)
	return id
}

// FetchQueued returns every item currently queued, in insertion order.
func (s *MemorySource) FetchQueued(ctx context.Context) ([]TaskRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued []TaskRef
	for _, id := range s.order {
		if t := s.tasks[id]; t.Status == StatusQueued {
			queued = append(queued, *t)
		}
	}
	return queued, nil
}

// ReadStatus returns the current status of an item.
func (s *MemorySource) ReadStatus(ctx context.Context, id string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.closed.Load() {
		return "", ErrSourceClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return "", ErrTaskNotFound
	}
	return t.Status, nil
}

// WriteStatus sets an item's status and returns the updated reference.
func (s *MemorySource) WriteStatus(ctx context.Context, id string, status Status) (TaskRef, error) {
	if err := ctx.Err(); err != nil {
		return TaskRef{}, err
	}
	if s.closed.Load() {
		return TaskRef{}, ErrSourceClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return TaskRef{}, ErrTaskNotFound
	}

	if s.WriteHook != nil {
		if err := s.WriteHook(id, status); err != nil {
			return TaskRef{}, err
		}
	}
	if !s.DropWrites {
		t.Status = status
	}
	return *t, nil
}

// Close marks the source closed; further calls fail with ErrSourceClosed.
func (s *MemorySource) Close() {
	s.closed.Store(true)
}
