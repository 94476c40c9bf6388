package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roby2358/oblique/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptTransition struct {
	kind string
	fn   func(ctx context.Context, prev task.Snapshot) (task.Snapshot, error)
}

func (s scriptTransition) Kind() string { return s.kind }

func (s scriptTransition) Next(ctx context.Context, prev task.Snapshot) (task.Snapshot, error) {
	return s.fn(ctx, prev)
}

func succeedOnce(kind string) scriptTransition {
	return scriptTransition{kind: kind, fn: func(_ context.Context, prev task.Snapshot) (task.Snapshot, error) {
		return task.Succeeded(prev), nil
	}}
}

func TestEngineSubmitRoutesReady(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("job")
	snap.Transition = succeedOnce("noop")
	eng.Submit(snap)

	st := eng.Status()
	if st.Ready != 1 || st.Waiting != 0 || st.Jobs != 1 {
		t.Fatalf("Status() = %+v, want ready=1 waiting=0 jobs=1", st)
	}
	if !eng.queue.Contains(snap.TaskID) {
		t.Fatalf("ready queue missing %q", snap.TaskID)
	}
}

func TestEngineSubmitRoutesWaiting(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("parked")
	eng.Submit(snap)

	st := eng.Status()
	if st.Ready != 0 || st.Waiting != 1 {
		t.Fatalf("Status() = %+v, want ready=0 waiting=1", st)
	}
	id, ok := eng.waiting.Get(snap.TaskID)
	if !ok || id != snap.TaskID {
		t.Fatalf("waiting registry maps %q to %q, %v, want own task id", snap.TaskID, id, ok)
	}
}

func TestEngineSubmitLeavesOtherStatusesUnrouted(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("bookkeeping")
	snap.Status = task.StatusRetry
	eng.Submit(snap)

	st := eng.Status()
	if st.Ready != 0 || st.Waiting != 0 || st.Jobs != 1 {
		t.Fatalf("Status() = %+v, want stored but unrouted", st)
	}
}

func TestEngineSubmitPanicsOnUnknownStatus(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("job")
	snap.Status = task.Status("bogus")
	defer func() {
		if recover() == nil {
			t.Fatalf("Submit with unknown status did not panic")
		}
	}()
	eng.Submit(snap)
}

func TestEngineResumeMovesWaitingJob(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("parked")
	eng.Submit(snap)

	next := task.Succeeded(snap)
	next.Work = "done"
	if !eng.Resume(snap.TaskID, next) {
		t.Fatalf("Resume() = false, want true")
	}

	got, err := eng.Get(snap.TaskID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 2 || got.Status != task.StatusSucceeded || got.Work != "done" {
		t.Fatalf("got v%d %q work=%q, want v2 succeeded done", got.Version, got.Status, got.Work)
	}
	if got.DoneAt == nil {
		t.Fatalf("DoneAt nil on terminal snapshot")
	}
	if st := eng.Status(); st.Waiting != 0 {
		t.Fatalf("Waiting = %d after resume, want 0", st.Waiting)
	}
}

func TestEngineResumeToReadyRequeues(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("parked")
	eng.Submit(snap)

	next := task.Next(snap)
	next.RetryCount = snap.RetryCount + 1
	if !eng.Fail(snap.TaskID, next) {
		t.Fatalf("Fail() = false, want true")
	}

	got, _ := eng.Get(snap.TaskID)
	if got.Status != task.StatusReady || got.RetryCount != 1 {
		t.Fatalf("got %q retries=%d, want ready retries=1", got.Status, got.RetryCount)
	}
	if !eng.queue.Contains(snap.TaskID) {
		t.Fatalf("requeued job missing from ready queue")
	}
	if eng.waiting.Len() != 0 {
		t.Fatalf("waiting registry size = %d, want 0", eng.waiting.Len())
	}
}

func TestEngineStaleResumeIsNoOp(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("parked")
	eng.Submit(snap)
	before := eng.Status()

	phantom := task.Succeeded(snap)
	if eng.Resume("never-registered", phantom) {
		t.Fatalf("Resume(unknown key) = true, want false")
	}
	if eng.Fail("never-registered", phantom) {
		t.Fatalf("Fail(unknown key) = true, want false")
	}

	after := eng.Status()
	if after.Ready != before.Ready || after.Waiting != before.Waiting || after.Jobs != before.Jobs {
		t.Fatalf("Status changed by stale resume: before %+v after %+v", before, after)
	}
	got, _ := eng.Get(snap.TaskID)
	if got.Version != 1 || got.Status != task.StatusWaiting {
		t.Fatalf("snapshot changed by stale resume: v%d %q", got.Version, got.Status)
	}
}

func TestEngineCustomWaitKey(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("brain call")
	snap.WaitKey = "req-42"
	eng.Submit(snap)

	if _, ok := eng.waiting.Get("req-42"); !ok {
		t.Fatalf("custom key not registered")
	}
	if eng.Resume(snap.TaskID, task.Succeeded(snap)) {
		t.Fatalf("Resume(task id) = true, want false when parked under custom key")
	}
	if !eng.Resume("req-42", task.Succeeded(snap)) {
		t.Fatalf("Resume(custom key) = false, want true")
	}
	got, _ := eng.Get(snap.TaskID)
	if got.Status != task.StatusSucceeded {
		t.Fatalf("Status = %q, want succeeded", got.Status)
	}
}

func TestEngineTransitionToDropsSuccessorForFinishedChain(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("job")
	snap.Transition = succeedOnce("noop")
	eng.Submit(snap)
	eng.RunOnce(context.Background())

	done, _ := eng.Get(snap.TaskID)
	if done.Status != task.StatusSucceeded {
		t.Fatalf("Status = %q, want succeeded", done.Status)
	}

	late := task.Snapshot{
		TaskID:    snap.TaskID,
		Version:   done.Version + 1,
		Status:    task.StatusReady,
		CreatedAt: done.CreatedAt,
	}
	eng.TransitionTo(snap.TaskID, late)

	got, _ := eng.Get(snap.TaskID)
	if got.Version != done.Version || got.Status != task.StatusSucceeded {
		t.Fatalf("terminal entry changed: v%d %q", got.Version, got.Status)
	}
	if st := eng.Status(); st.Ready != 0 {
		t.Fatalf("Ready = %d after dropped successor, want 0", st.Ready)
	}
}

func TestEngineTransitionToPanicsOnTaskIDChange(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("job")
	eng.Submit(snap)

	other := task.NewReady("impostor")
	defer func() {
		if recover() == nil {
			t.Fatalf("TransitionTo with foreign task id did not panic")
		}
	}()
	eng.TransitionTo(snap.TaskID, other)
}

func TestEngineTransitionToPanicsOnVersionGap(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("job")
	eng.Submit(snap)

	skipped := task.Next(snap)
	skipped.Version = snap.Version + 2
	defer func() {
		if recover() == nil {
			t.Fatalf("TransitionTo with version gap did not panic")
		}
	}()
	eng.TransitionTo(snap.TaskID, skipped)
}

func TestEngineCancel(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewReady("doomed")
	snap.Transition = succeedOnce("noop")
	eng.Submit(snap)

	got, err := eng.Cancel(snap.TaskID, "operator request")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got.Status != task.StatusCanceled || got.Version != 2 {
		t.Fatalf("got v%d %q, want v2 canceled", got.Version, got.Status)
	}
	if got.DoneAt == nil {
		t.Fatalf("DoneAt nil after cancel")
	}
	if st := eng.Status(); st.Ready != 0 {
		t.Fatalf("Ready = %d after cancel, want 0", st.Ready)
	}

	again, err := eng.Cancel(snap.TaskID, "twice")
	if err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if again.Version != got.Version || again.Status != task.StatusCanceled {
		t.Fatalf("second cancel changed snapshot: v%d %q", again.Version, again.Status)
	}

	if _, err := eng.Cancel("missing", ""); err != ErrTaskNotFound {
		t.Fatalf("Cancel(missing) error = %v, want ErrTaskNotFound", err)
	}
}

func TestEngineCancelWaitingJobClearsRegistry(t *testing.T) {
	eng := New(testLogger())
	snap := task.NewWaiting("parked")
	snap.WaitKey = "req-7"
	eng.Submit(snap)

	if _, err := eng.Cancel(snap.TaskID, ""); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if eng.waiting.Len() != 0 {
		t.Fatalf("waiting registry size = %d after cancel, want 0", eng.waiting.Len())
	}
	if eng.Resume("req-7", task.Snapshot{TaskID: snap.TaskID, Version: 3}) {
		t.Fatalf("Resume after cancel = true, want stale no-op")
	}
}

func TestEngineSubscribeReceivesLifecycle(t *testing.T) {
	eng := New(testLogger())
	ch, cancel := eng.Subscribe()
	defer cancel()

	snap := task.NewReady("observed")
	snap.Transition = succeedOnce("noop")
	eng.Submit(snap)
	eng.RunOnce(context.Background())

	want := []EventType{EventSubmitted, EventStarted, EventFinished}
	for i, wantType := range want {
		select {
		case evt := <-ch:
			if evt.Type != wantType {
				t.Fatalf("event[%d].Type = %q, want %q", i, evt.Type, wantType)
			}
			if evt.TaskID != snap.TaskID {
				t.Fatalf("event[%d].TaskID = %q, want %q", i, evt.TaskID, snap.TaskID)
			}
		default:
			t.Fatalf("event[%d] missing, want %q", i, wantType)
		}
	}
}

func TestEngineSubscribeCancelClosesChannel(t *testing.T) {
	eng := New(testLogger())
	ch, cancel := eng.Subscribe()
	cancel()
	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
	cancel()
}

func TestEnginePruneFinished(t *testing.T) {
	eng := New(testLogger())

	stale := task.Succeeded(task.NewReady("old"))
	past := time.Now().UTC().Add(-2 * time.Hour)
	stale.DoneAt = &past
	eng.Submit(stale)

	fresh := task.NewReady("live")
	fresh.Transition = succeedOnce("noop")
	eng.Submit(fresh)

	if got := eng.pruneFinished(time.Hour); got != 1 {
		t.Fatalf("pruneFinished() = %d, want 1", got)
	}
	if _, err := eng.Get(stale.TaskID); err != ErrTaskNotFound {
		t.Fatalf("stale chain still present, err = %v", err)
	}
	if _, err := eng.Get(fresh.TaskID); err != nil {
		t.Fatalf("live chain pruned, err = %v", err)
	}
}

func TestEngineJanitorPrunes(t *testing.T) {
	eng := New(testLogger())
	stale := task.Succeeded(task.NewReady("old"))
	past := time.Now().UTC().Add(-time.Hour)
	stale.DoneAt = &past
	eng.Submit(stale)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.StartJanitor(ctx, 10*time.Millisecond, time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := eng.Get(stale.TaskID); err == ErrTaskNotFound {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stale chain not pruned before deadline")
}
