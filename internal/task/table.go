package task

import (
	"fmt"
	"sort"
)

// Table holds the latest snapshot of every live job chain, keyed by task id.
// It is a plain map with no locking; the engine serializes access.
type Table struct {
	byID map[string]Snapshot
}

func NewTable() *Table {
	return &Table{byID: make(map[string]Snapshot)}
}

// Put stores snap as the latest snapshot for its task id, replacing whatever
// was there. Storing a version lower than the current one means successor
// threading went wrong somewhere and panics. Equal versions are allowed so a
// snapshot can be re-marked in place, the running flip does exactly that.
func (t *Table) Put(snap Snapshot) {
	if cur, ok := t.byID[snap.TaskID]; ok && snap.Version < cur.Version {
		panic(fmt.Sprintf("task: version regression for %s: have v%d, put v%d", snap.TaskID, cur.Version, snap.Version))
	}
	t.byID[snap.TaskID] = snap
}

func (t *Table) Get(taskID string) (Snapshot, bool) {
	snap, ok := t.byID[taskID]
	return snap, ok
}

func (t *Table) Remove(taskID string) {
	delete(t.byID, taskID)
}

func (t *Table) Len() int {
	return len(t.byID)
}

// All returns every stored snapshot, newest chains first.
func (t *Table) All() []Snapshot {
	out := make([]Snapshot, 0, len(t.byID))
	for _, snap := range t.byID {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

func (t *Table) ByStatus(status Status) []Snapshot {
	out := make([]Snapshot, 0)
	for _, snap := range t.All() {
		if snap.Status == status {
			out = append(out, snap)
		}
	}
	return out
}

// CountByStatus tallies the stored snapshots per status.
func (t *Table) CountByStatus() map[Status]int {
	out := make(map[Status]int, len(t.byID))
	for _, snap := range t.byID {
		out[snap.Status]++
	}
	return out
}
