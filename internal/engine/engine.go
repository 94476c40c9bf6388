package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roby2358/oblique/internal/observability"
	"github.com/roby2358/oblique/internal/task"
)

var ErrTaskNotFound = errors.New("task not found")

const (
	// DefaultMaxChainSteps caps worker-driven transitions per job chain so a
	// transition that keeps returning ready cannot spin the loop forever.
	// Zero disables the cap.
	DefaultMaxChainSteps = 1000

	defaultTick = 250 * time.Millisecond
)

// Archiver receives terminal snapshots for out-of-band record keeping. The
// engine never reads anything back, live state is in memory only.
type Archiver interface {
	SaveSnapshot(ctx context.Context, snap task.Snapshot) error
}

// Engine owns the snapshot table, the ready queue and the waiting registry,
// and runs the single worker that advances job chains. All public methods are
// safe for concurrent use; internally one mutex serializes every mutation, so
// at most one transition executes at a time.
//
// Transition implementations must not call back into the engine synchronously.
// Work that completes elsewhere returns a waiting snapshot and is finished by
// a responder calling Resume or Fail from its own goroutine.
type Engine struct {
	mu sync.RWMutex

	log     *slog.Logger
	table   *task.Table
	queue   *task.Queue
	waiting *task.WaitRegistry

	metrics *observability.Metrics
	archive Archiver

	maxChainSteps int
	tick          time.Duration
	steps         map[string]int

	wake chan struct{}

	subscribers map[int]chan Event
	nextSubID   int
}

func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:           log,
		table:         task.NewTable(),
		queue:         task.NewQueue(),
		waiting:       task.NewWaitRegistry(),
		maxChainSteps: DefaultMaxChainSteps,
		tick:          defaultTick,
		steps:         make(map[string]int),
		wake:          make(chan struct{}, 1),
		subscribers:   make(map[int]chan Event),
	}
}

func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

func (e *Engine) SetArchive(a Archiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archive = a
}

// SetMaxChainSteps adjusts the per-chain transition cap. Zero or negative
// disables it.
func (e *Engine) SetMaxChainSteps(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxChainSteps = n
}

func (e *Engine) SetTick(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.tick = d
	}
}

// Submit stores snap and routes it by status: ready ids join the queue,
// waiting snapshots register under their correlation key. Anything else is
// stored unrouted, that is the caller's business.
func (e *Engine) Submit(snap task.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitLocked(snap)
}

// TransitionTo replaces oldTaskID's routing with whatever next's status
// dictates. Every state change in the system funnels through here, which is
// what keeps queue, registry and table consistent with each other. A successor
// for a chain already in a terminal state is dropped with a warning. A
// successor that changes the task id or does not advance the version by
// exactly one panics: that is broken helper usage, not a runtime condition.
func (e *Engine) TransitionTo(oldTaskID string, next task.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitionToLocked(oldTaskID, next)
}

// Resume completes a waiting job. The correlation key is looked up in the
// waiting registry; unknown keys are logged and ignored because the external
// response may race a cancellation or arrive twice. Returns whether the
// successor was applied.
func (e *Engine) Resume(key string, next task.Snapshot) bool {
	return e.finishWait("resume", key, next)
}

// Fail is Resume for unsuccessful external outcomes. The caller supplies the
// dead, retry or ready successor; routing is identical.
func (e *Engine) Fail(key string, next task.Snapshot) bool {
	return e.finishWait("fail", key, next)
}

func (e *Engine) finishWait(op, key string, next task.Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	taskID, ok := e.waiting.Get(key)
	if !ok {
		e.log.Warn("stale callback ignored", "op", op, "key", key)
		if e.metrics != nil {
			e.metrics.StaleCallbacks.WithLabelValues(op).Inc()
		}
		return false
	}
	e.waiting.Remove(key)
	e.transitionToLocked(taskID, next)
	return true
}

// Cancel closes a chain with a canceled terminal snapshot and removes it from
// whichever structure held it. Canceling an already terminal chain is a no-op
// and returns the stored snapshot.
func (e *Engine) Cancel(taskID, reason string) (task.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.table.Get(taskID)
	if !ok {
		return task.Snapshot{}, ErrTaskNotFound
	}
	if cur.Terminal() {
		return cur, nil
	}
	next := task.Canceled(cur)
	if reason = strings.TrimSpace(reason); reason != "" {
		next.Work = appendLine(next.Work, "canceled: "+reason)
	}
	e.transitionToLocked(taskID, next)
	return next, nil
}

func (e *Engine) Get(taskID string) (task.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.table.Get(taskID)
	if !ok {
		return task.Snapshot{}, ErrTaskNotFound
	}
	return snap, nil
}

// Snapshots returns the latest snapshot of every chain, newest first.
func (e *Engine) Snapshots() []task.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.All()
}

func (e *Engine) ByStatus(status task.Status) []task.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.ByStatus(status)
}

// Status reports queue depth, waiting count and per-status totals.
type Status struct {
	Ready   int                 `json:"ready"`
	Waiting int                 `json:"waiting"`
	Jobs    int                 `json:"jobs"`
	Counts  map[task.Status]int `json:"counts"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Ready:   e.queue.Len(),
		Waiting: e.waiting.Len(),
		Jobs:    e.table.Len(),
		Counts:  e.table.CountByStatus(),
	}
}

// StartJanitor prunes terminal chains whose doneAt is older than retention.
// Live chains are never touched.
func (e *Engine) StartJanitor(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.pruneFinished(retention)
			}
		}
	}()
}

func (e *Engine) pruneFinished(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, snap := range e.table.All() {
		if snap.Terminal() && snap.DoneAt != nil && snap.DoneAt.Before(cutoff) {
			e.table.Remove(snap.TaskID)
			removed++
		}
	}
	if removed > 0 {
		e.log.Info("pruned finished chains", "count", removed)
		e.updateGaugesLocked()
	}
	return removed
}

func (e *Engine) submitLocked(snap task.Snapshot) {
	if !snap.Status.Valid() {
		panic(fmt.Sprintf("engine: submit with unknown status %q", snap.Status))
	}
	e.table.Put(snap)

	switch snap.Status {
	case task.StatusReady:
		e.queue.Enqueue(snap.TaskID)
		e.notifyLocked()
	case task.StatusWaiting:
		e.waiting.Add(snap.Key(), snap.TaskID)
	}

	if snap.Terminal() {
		delete(e.steps, snap.TaskID)
		if e.metrics != nil && snap.DoneAt != nil {
			e.metrics.ObserveStage("chain_total", snap.DoneAt.Sub(snap.CreatedAt))
		}
		e.archiveAsync(snap)
	}

	e.publishLocked(eventFor(snap))
	e.updateGaugesLocked()
	e.log.Debug("snapshot stored",
		"task_id", snap.TaskID,
		"version", snap.Version,
		"status", snap.Status,
		"kind", kindOf(snap))
}

func (e *Engine) transitionToLocked(oldTaskID string, next task.Snapshot) {
	if next.TaskID != oldTaskID {
		panic(fmt.Sprintf("engine: successor changes task id %s -> %s", oldTaskID, next.TaskID))
	}
	if cur, ok := e.table.Get(oldTaskID); ok {
		if cur.Terminal() {
			e.log.Warn("successor for finished chain dropped",
				"task_id", oldTaskID,
				"have", cur.Status,
				"dropped", next.Status)
			return
		}
		if next.Version != cur.Version+1 {
			panic(fmt.Sprintf("engine: successor v%d does not follow v%d for %s", next.Version, cur.Version, oldTaskID))
		}
	}
	e.queue.Remove(oldTaskID)
	e.waiting.RemoveByTaskID(oldTaskID)
	e.submitLocked(next)
}

// notifyLocked nudges the worker loop without blocking. The channel holds one
// pending wake; more are redundant.
func (e *Engine) notifyLocked() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) archiveAsync(snap task.Snapshot) {
	archive := e.archive
	if archive == nil {
		return
	}
	go func(s task.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := archive.SaveSnapshot(ctx, s); err != nil {
			e.log.Warn("archive write failed", "task_id", s.TaskID, "error", err)
		}
	}(snap)
}

func (e *Engine) updateGaugesLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.ReadyQueueDepth.Set(float64(e.queue.Len()))
	e.metrics.WaitingJobs.Set(float64(e.waiting.Len()))
	e.metrics.LiveJobs.Set(float64(e.table.Len()))
}

func kindOf(snap task.Snapshot) string {
	if snap.Transition == nil {
		return ""
	}
	return snap.Transition.Kind()
}

func appendLine(s, line string) string {
	if strings.TrimSpace(s) == "" {
		return line
	}
	return s + "\n" + line
}
