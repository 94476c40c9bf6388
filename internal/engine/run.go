package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roby2358/oblique/internal/task"
)

// Run drives the worker loop until ctx is canceled. It drains the ready queue
// whenever a submit or resume wakes it, with a periodic tick as a backstop.
// Only one Run loop should be started per engine.
func (e *Engine) Run(ctx context.Context) {
	e.mu.RLock()
	tick := e.tick
	e.mu.RUnlock()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	e.log.Info("worker loop started", "tick", tick)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("worker loop stopped")
			return
		case <-e.wake:
		case <-ticker.C:
		}
		e.RunToIdle(ctx)
	}
}

// RunToIdle processes ready jobs until the queue stays empty. It reports how
// many transitions ran.
func (e *Engine) RunToIdle(ctx context.Context) int {
	n := 0
	for e.RunOnce(ctx) {
		n++
	}
	return n
}

// RunOnce pops one task id off the ready queue and advances its chain by one
// transition. It reports false when the queue is empty or the popped id no
// longer maps to a ready snapshot.
func (e *Engine) RunOnce(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runOnceLocked(ctx)
}

func (e *Engine) runOnceLocked(ctx context.Context) bool {
	taskID, ok := e.queue.Dequeue()
	if !ok {
		return false
	}
	snap, ok := e.table.Get(taskID)
	if !ok {
		e.log.Warn("dequeued id without snapshot", "task_id", taskID)
		return false
	}
	if snap.Status != task.StatusReady {
		e.log.Warn("dequeued snapshot not ready", "task_id", taskID, "status", snap.Status)
		return false
	}

	running := snap
	running.Status = task.StatusRunning
	e.table.Put(running)
	e.publishLocked(Event{
		Type:    EventStarted,
		TaskID:  running.TaskID,
		Version: running.Version,
		Status:  running.Status,
		Kind:    kindOf(running),
		At:      time.Now().UTC(),
	})

	started := time.Now()
	next, err := invoke(ctx, running)
	if e.metrics != nil {
		e.metrics.ObserveTransitionLatency(time.Since(started))
	}
	if err != nil {
		e.log.Error("transition fault",
			"task_id", running.TaskID,
			"version", running.Version,
			"kind", kindOf(running),
			"error", err)
		if e.metrics != nil {
			e.metrics.TransitionFaults.WithLabelValues(kindOf(running)).Inc()
		}
		next = faultSuccessor(running, err)
	}
	next = e.capChainLocked(next)
	if e.metrics != nil {
		e.metrics.Transitions.WithLabelValues(kindOf(running), string(next.Status)).Inc()
	}
	e.transitionToLocked(taskID, next)
	return true
}

// invoke runs the snapshot's transition with a recover scoped to exactly this
// call, so a panicking job kind becomes an error instead of taking down the
// loop. Panics raised later by the engine's own asserts still propagate.
func invoke(ctx context.Context, prev task.Snapshot) (next task.Snapshot, err error) {
	if prev.Transition == nil {
		return task.Snapshot{}, errors.New("snapshot has no transition")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transition panic: %v", r)
		}
	}()
	return prev.Transition.Next(ctx, prev)
}

func faultSuccessor(prev task.Snapshot, cause error) task.Snapshot {
	next := task.Dead(prev)
	next.Work = appendLine(next.Work, "error: "+cause.Error())
	return next
}

// capChainLocked counts worker transitions per chain and converts an
// over-limit non-terminal successor into a dead one. Without this an
// ill-behaved transition returning ready forever would monopolize the loop.
func (e *Engine) capChainLocked(next task.Snapshot) task.Snapshot {
	if e.maxChainSteps <= 0 {
		return next
	}
	e.steps[next.TaskID]++
	if next.Terminal() || e.steps[next.TaskID] < e.maxChainSteps {
		return next
	}
	e.log.Warn("chain exceeded max transitions",
		"task_id", next.TaskID,
		"version", next.Version,
		"max", e.maxChainSteps)
	now := time.Now().UTC()
	capped := next
	capped.Status = task.StatusDead
	capped.DoneAt = &now
	capped.Transition = nil
	capped.WaitKey = ""
	capped.Work = appendLine(capped.Work, fmt.Sprintf("chain stopped after %d transitions", e.maxChainSteps))
	return capped
}
