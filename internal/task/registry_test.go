package task

import "testing"

func TestWaitRegistryAddGetRemove(t *testing.T) {
	r := NewWaitRegistry()
	r.Add("key-1", "task-a")

	id, ok := r.Get("key-1")
	if !ok || id != "task-a" {
		t.Fatalf("Get(key-1) = %q, %v, want task-a, true", id, ok)
	}
	if _, ok := r.Get("key-2"); ok {
		t.Fatalf("Get(key-2) ok = true")
	}

	if !r.Remove("key-1") {
		t.Fatalf("Remove(key-1) = false, want true")
	}
	if r.Remove("key-1") {
		t.Fatalf("second Remove(key-1) = true, want false")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestWaitRegistryRemoveByTaskID(t *testing.T) {
	r := NewWaitRegistry()
	r.Add("key-1", "task-a")
	r.Add("key-2", "task-a")
	r.Add("key-3", "task-b")

	if got := r.RemoveByTaskID("task-a"); got != 2 {
		t.Fatalf("RemoveByTaskID(task-a) = %d, want 2", got)
	}
	if got := r.RemoveByTaskID("task-a"); got != 0 {
		t.Fatalf("second RemoveByTaskID(task-a) = %d, want 0", got)
	}
	if _, ok := r.Get("key-3"); !ok {
		t.Fatalf("key-3 lost, want kept")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestWaitRegistryOverwrite(t *testing.T) {
	r := NewWaitRegistry()
	r.Add("key-1", "task-a")
	r.Add("key-1", "task-b")

	id, _ := r.Get("key-1")
	if id != "task-b" {
		t.Fatalf("Get(key-1) = %q, want task-b after overwrite", id)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}
