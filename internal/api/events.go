package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	sw "github.com/devilx291/social-loan-ledger-82/modules/selfie-workflow"
)

const (
	eventBuffer       = 8
	keepAliveInterval = 15 * time.Second
)

// streamEvents serves workflow snapshots as server-sent events. The current
// snapshot is sent first, then one event per state change.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming_unsupported", "detail": "Event streaming is not available."})
		return
	}

	id := uuid.NewString()
	ch := make(chan sw.Snapshot, eventBuffer)
	if err := s.cfg.Events.Subscribe(id, ch); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "events_closed", "detail": "The workflow is shutting down."})
		return
	}
	defer func() { _ = s.cfg.Events.Unsubscribe(id) }()

	logger := s.logger.With().
		Str("subscriber_id", id).
		Str("request_id", middleware.GetReqID(r.Context())).
		Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, s.wf.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-ch:
			if err := writeEvent(w, snap); err != nil {
				logger.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, snap sw.Snapshot) error {
	data, err := json.Marshal(toResponse(snap))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}
