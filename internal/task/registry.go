package task

// WaitRegistry maps correlation keys to the task ids parked on them. Usually
// the key is the task id itself; jobs waiting on an external request register
// the request's own id instead. One key resolves to exactly one task. No
// locking; the engine serializes access.
type WaitRegistry struct {
	byKey map[string]string
}

func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{byKey: make(map[string]string)}
}

func (r *WaitRegistry) Add(key, taskID string) {
	r.byKey[key] = taskID
}

func (r *WaitRegistry) Get(key string) (string, bool) {
	taskID, ok := r.byKey[key]
	return taskID, ok
}

// Remove deletes the entry for key and reports whether it existed.
func (r *WaitRegistry) Remove(key string) bool {
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	return true
}

// RemoveByTaskID drops every key resolving to taskID and returns how many
// entries went away. Needed when a waiting job is canceled and its key is not
// known to the caller.
func (r *WaitRegistry) RemoveByTaskID(taskID string) int {
	removed := 0
	for key, id := range r.byKey {
		if id == taskID {
			delete(r.byKey, key)
			removed++
		}
	}
	return removed
}

func (r *WaitRegistry) Len() int {
	return len(r.byKey)
}
