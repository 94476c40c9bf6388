package archive

import (
	"context"
	"sync"

	"github.com/roby2358/oblique/internal/task"
)

// MemoryStore is a simple in-process archive for local/dev use. It holds the
// newest terminal snapshots up to a fixed capacity; older chains fall off.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	snaps    map[string]task.Snapshot
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{
		capacity: capacity,
		snaps:    make(map[string]task.Snapshot),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap task.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[snap.TaskID]; !ok {
		s.order = append(s.order, snap.TaskID)
	}
	s.snaps[snap.TaskID] = snap
	for len(s.order) > s.capacity {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.snaps, evicted)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (task.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[taskID]
	if !ok {
		return task.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Recent returns up to limit snapshots, newest save first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]task.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Snapshot, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.snaps[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
