package engine

import (
	"time"

	"github.com/roby2358/oblique/internal/task"
)

type EventType string

const (
	EventSubmitted    EventType = "task_submitted"
	EventStarted      EventType = "task_started"
	EventTransitioned EventType = "task_transitioned"
	EventFinished     EventType = "task_finished"
)

// Event is the engine's push feed for status consoles. Deliveries are best
// effort: slow subscribers drop events rather than stall the worker.
type Event struct {
	Type    EventType   `json:"type"`
	TaskID  string      `json:"task_id"`
	Version int         `json:"version"`
	Status  task.Status `json:"status"`
	Kind    string      `json:"kind,omitempty"`
	At      time.Time   `json:"at"`
}

// Subscribe registers a feed of engine events. The returned cancel func must
// be called to release the subscription.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subscribers[id] = ch
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(c)
		}
	}
}

func (e *Engine) publishLocked(evt Event) {
	if len(e.subscribers) == 0 {
		return
	}
	for _, ch := range e.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func eventFor(snap task.Snapshot) Event {
	typ := EventTransitioned
	switch {
	case snap.Terminal():
		typ = EventFinished
	case snap.Version == 1:
		typ = EventSubmitted
	}
	return Event{
		Type:    typ,
		TaskID:  snap.TaskID,
		Version: snap.Version,
		Status:  snap.Status,
		Kind:    kindOf(snap),
		At:      time.Now().UTC(),
	}
}
