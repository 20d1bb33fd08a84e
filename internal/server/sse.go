package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zhs007/genstory/internal/event"
)

// handleEvents streams a session's events as server-sent events. The first
// event is always a connection notice; comment heartbeats keep idle
// connections open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.pipeline.GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if s.broker == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event streaming is not available"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}

	events, cancel := s.broker.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	hello := event.Event{
		Type:      event.TypeConnection,
		Message:   "connected",
		Data:      map[string]any{"sessionId": id},
		Timestamp: time.Now().UTC(),
	}
	if err := writeEvent(w, hello); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				// Session closed.
				return
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event stream write failed", "session_id", id, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
