package task

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() ok = false, want %q", want)
		}
		if got != want {
			t.Fatalf("Dequeue() = %q, want %q", got, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("Dequeue() on empty queue ok = true")
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	if !q.Remove("b") {
		t.Fatalf("Remove(b) = false, want true")
	}
	if q.Remove("b") {
		t.Fatalf("second Remove(b) = true, want false")
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first != "a" || second != "c" {
		t.Fatalf("order after Remove = %q, %q, want a, c", first, second)
	}
}

func TestQueueContains(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	if !q.Contains("a") {
		t.Fatalf("Contains(a) = false")
	}
	if q.Contains("z") {
		t.Fatalf("Contains(z) = true")
	}
}

func TestQueueInterleavedEnqueueDequeue(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	if got, _ := q.Dequeue(); got != "a" {
		t.Fatalf("Dequeue() = %q, want a", got)
	}
	q.Enqueue("c")
	if got, _ := q.Dequeue(); got != "b" {
		t.Fatalf("Dequeue() = %q, want b", got)
	}
	if got, _ := q.Dequeue(); got != "c" {
		t.Fatalf("Dequeue() = %q, want c", got)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
}
