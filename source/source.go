// Package source defines the task-source capability set the engine consumes:
// a remote record store holding work items with a status field. The engine
// never talks to a concrete store directly; everything goes through the
// TaskSource interface.
package source

import (
	"context"
	"errors"
)

// Common errors.
var (
	// ErrTaskNotFound indicates the requested task does not exist in the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSourceClosed indicates the underlying source has been closed.
	ErrSourceClosed = errors.New("task source closed")
)

// Status represents the lifecycle state of a work item.
type Status string

const (
	// StatusQueued indicates the task is waiting to be picked up.
	StatusQueued Status = "Queued to run"

	// StatusInProgress indicates the task is being processed.
	StatusInProgress Status = "In progress"

	// StatusDone indicates the task completed successfully. Terminal.
	StatusDone Status = "Done"

	// StatusFailed indicates the task failed and may be retried.
	StatusFailed Status = "Failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no outgoing transitions exist for the status.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// Known reports whether s is one of the closed status set.
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}

// TaskRef is a lightweight reference to a work item in the source.
type TaskRef struct {
	// ID is the store's identifier for the item.
	ID string

	// Title is a human-readable name, if the store provides one.
	Title string

	// Status is the item's status at the time of the read.
	Status Status

	// Model is the requested "provider/model" string, empty for the default.
	Model string

	// Content is the prompt/body to process, if fetched.
	Content string
}

// TaskSource is the capability set the engine needs from a record store.
// Reads must be idempotent; WriteStatus is assumed strongly consistent with
// an immediately following ReadStatus.
type TaskSource interface {
	// FetchQueued returns every item currently in the queued status.
	FetchQueued(ctx context.Context) ([]TaskRef, error)

	// ReadStatus returns the current status of an item.
	// Returns ErrTaskNotFound if the item does not exist.
	ReadStatus(ctx context.Context, id string) (Status, error)

	// WriteStatus sets an item's status and returns the updated reference.
	// Returns ErrTaskNotFound if the item does not exist.
	WriteStatus(ctx context.Context, id string, status Status) (TaskRef, error)
}
