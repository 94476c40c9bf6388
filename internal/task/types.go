package task

import (
	"context"
	"time"
)

// Status is the lifecycle state of a job's latest snapshot.
type Status string

const (
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusSucceeded Status = "succeeded"
	StatusRetry     Status = "retry"
	StatusDead      Status = "dead"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusRunning, StatusWaiting, StatusSucceeded, StatusRetry, StatusDead, StatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends a job chain.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDead, StatusCanceled:
		return true
	default:
		return false
	}
}

// Transition computes a job's next snapshot. Each job kind is a struct with
// typed fields implementing this interface; the engine invokes it only on
// snapshots whose status is ready or running. Implementations must not block
// on external I/O: long operations return a waiting successor and are resumed
// by a responder once the external result arrives.
type Transition interface {
	Kind() string
	Next(ctx context.Context, prev Snapshot) (Snapshot, error)
}

// Snapshot is one immutable version of a job's state. All snapshots sharing
// a TaskID form a chain with strictly increasing versions and a shared
// CreatedAt; progress is always expressed by constructing a successor, never
// by editing a snapshot in place.
type Snapshot struct {
	TaskID      string     `json:"task_id"`
	Version     int        `json:"version"`
	Status      Status     `json:"status"`
	Description string     `json:"description"`
	Work        string     `json:"work,omitempty"`
	RetryCount  int        `json:"retry_count,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DoneAt      *time.Time `json:"done_at,omitempty"`

	// WaitKey overrides the correlation key a waiting snapshot is registered
	// under. Empty means the task id itself.
	WaitKey string `json:"wait_key,omitempty"`

	Transition Transition `json:"-"`
}

func (s Snapshot) Terminal() bool {
	return s.Status.Terminal()
}

// Key returns the correlation key a waiting snapshot registers under.
func (s Snapshot) Key() string {
	if s.WaitKey != "" {
		return s.WaitKey
	}
	return s.TaskID
}
