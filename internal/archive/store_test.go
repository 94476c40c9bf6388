package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/roby2358/oblique/internal/task"
)

func TestNewStoreWithoutURL(t *testing.T) {
	store, err := NewStore(context.Background(), "   ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want in-memory store when no database is configured", store)
	}
}

func terminalSnap(id string, doneAgo time.Duration) task.Snapshot {
	done := time.Now().UTC().Add(-doneAgo)
	return task.Snapshot{
		TaskID:      id,
		Version:     3,
		Status:      task.StatusSucceeded,
		Description: "reply to @ada",
		CreatedAt:   done.Add(-time.Minute),
		DoneAt:      &done,
	}
}

func TestMemoryStoreGetAndRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	for i := 0; i < 3; i++ {
		snap := terminalSnap(fmt.Sprintf("t%d", i), time.Duration(3-i)*time.Hour)
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot(%d) error = %v", i, err)
		}
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TaskID != "t1" || got.Status != task.StatusSucceeded {
		t.Fatalf("Get() = %+v, want t1 succeeded", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(recent))
	}
	if recent[0].TaskID != "t2" || recent[1].TaskID != "t1" {
		t.Fatalf("Recent() order = [%s %s], want newest first", recent[0].TaskID, recent[1].TaskID)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	for i := 0; i < 3; i++ {
		if err := store.SaveSnapshot(ctx, terminalSnap(fmt.Sprintf("t%d", i), time.Hour)); err != nil {
			t.Fatalf("SaveSnapshot(%d) error = %v", i, err)
		}
	}

	if _, err := store.Get(ctx, "t0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(t0) error = %v, want ErrNotFound after eviction", err)
	}
	if _, err := store.Get(ctx, "t2"); err != nil {
		t.Fatalf("Get(t2) error = %v", err)
	}
}

func TestMemoryStoreResaveKeepsSingleEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	snap := terminalSnap("t0", time.Hour)
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	snap.Status = task.StatusDead
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot() resave error = %v", err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("len(Recent()) = %d, want 1", len(recent))
	}
	if recent[0].Status != task.StatusDead {
		t.Fatalf("status = %s, want %s after resave", recent[0].Status, task.StatusDead)
	}
}
