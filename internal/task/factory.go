package task

import (
	"fmt"
	"strings"
	"time"
)

// NewReady builds the first snapshot of a fresh job chain in status ready.
func NewReady(description string) Snapshot {
	return newSnapshot(description, StatusReady)
}

// NewWaiting builds the first snapshot of a fresh job chain already parked in
// status waiting, for jobs whose first step is an external event.
func NewWaiting(description string) Snapshot {
	return newSnapshot(description, StatusWaiting)
}

func newSnapshot(description string, status Status) Snapshot {
	return Snapshot{
		TaskID:      NewID(),
		Version:     1,
		Status:      status,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
}

// Next builds the common successor skeleton: same task id, version bumped by
// one, same creation time, work and retry count carried forward. The status
// defaults to ready; callers overwrite it along with whatever else changed.
// The wait key is not carried forward, a successor that parks again registers
// under its own key.
func Next(prev Snapshot) Snapshot {
	if prev.Terminal() {
		panic(fmt.Sprintf("task: successor of terminal snapshot %s v%d (%s)", prev.TaskID, prev.Version, prev.Status))
	}
	return Snapshot{
		TaskID:      prev.TaskID,
		Version:     prev.Version + 1,
		Status:      StatusReady,
		Description: prev.Description,
		Work:        prev.Work,
		RetryCount:  prev.RetryCount,
		CreatedAt:   prev.CreatedAt,
		Transition:  prev.Transition,
	}
}

// Succeeded closes the chain with a succeeded successor.
func Succeeded(prev Snapshot) Snapshot {
	return terminal(prev, StatusSucceeded)
}

// Dead closes the chain with a dead successor.
func Dead(prev Snapshot) Snapshot {
	return terminal(prev, StatusDead)
}

// Canceled closes the chain with a canceled successor.
func Canceled(prev Snapshot) Snapshot {
	return terminal(prev, StatusCanceled)
}

func terminal(prev Snapshot, status Status) Snapshot {
	next := Next(prev)
	next.Status = status
	now := time.Now().UTC()
	next.DoneAt = &now
	next.Transition = nil
	return next
}
