package task

// Queue is the strict FIFO line of task ids waiting for the worker. It holds
// ids only, the table stays the single source of truth for state. No locking;
// the engine serializes access.
type Queue struct {
	ids []string
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(taskID string) {
	q.ids = append(q.ids, taskID)
}

// Dequeue pops the oldest id. The second return is false when the queue is
// empty.
func (q *Queue) Dequeue() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	head := q.ids[0]
	q.ids = q.ids[1:]
	if len(q.ids) == 0 {
		q.ids = nil
	}
	return head, true
}

// Remove deletes every occurrence of taskID and reports whether any was
// present.
func (q *Queue) Remove(taskID string) bool {
	found := false
	out := q.ids[:0]
	for _, id := range q.ids {
		if id == taskID {
			found = true
			continue
		}
		out = append(out, id)
	}
	q.ids = out
	return found
}

func (q *Queue) Contains(taskID string) bool {
	for _, id := range q.ids {
		if id == taskID {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int {
	return len(q.ids)
}
