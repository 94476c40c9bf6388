package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/roby2358/oblique/internal/engine"
)

type wsStatusSnapshot struct {
	Type   string        `json:"type"`
	Engine engine.Status `json:"engine"`
}

// handleEventsWS streams engine events to a status console. The feed is
// one-directional: inbound frames only keep the connection alive.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancelSub := s.eng.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(wsStatusSnapshot{Type: "status_snapshot", Engine: s.eng.Status()}); err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues("outbound", "status_snapshot").Inc()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(evt); err != nil {
					cancel()
					return
				}
				if s.metrics != nil {
					s.metrics.WSMessages.WithLabelValues("outbound", string(evt.Type)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", "client").Inc()
		}
	}

	cancel()
	<-writerDone
}
