package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one SSE frame and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController sees through middleware wrappers.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams every bus event to the UI as {"type","data"} frames.
// With ?session=<key> only that conversation's events (and the global
// ones) are sent.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	filterKey := 0
	if v := r.URL.Query().Get("session"); v != "" {
		key, err := strconv.Atoi(v)
		if err != nil || key <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session must be a positive integer")
			return
		}
		filterKey = key
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events := make(chan event.Event, 64)
	unsub := s.bus.SubscribeAll(func(e event.Event) {
		if filterKey != 0 && !eventBelongsToSession(e, filterKey) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	// Subscribed before announcing, so nothing published after the client
	// sees server.connected is missed.
	if err := sse.writeEvent("message", event.Event{Type: "server.connected", Data: map[string]any{}}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", e); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToSession reports whether e concerns the conversation key.
// Events that are not tied to a conversation always match.
func eventBelongsToSession(e event.Event, key int) bool {
	switch data := e.Data.(type) {
	case event.SessionCreatedData:
		return data.SessionKey == key
	case event.SessionRemovedData:
		return data.SessionKey == key
	case event.SessionCompactedData:
		return data.SessionKey == key
	case event.ToolEvent:
		return data.SessionKey == key
	case event.WidgetEvent:
		return data.SessionKey == key
	case event.StreamDeltaEvent:
		return data.SessionKey == key
	case event.ScreenshotEvent:
		return data.SessionKey == key
	case event.ModelUsageEvent:
		return data.SessionKey == key
	}
	return true
}
