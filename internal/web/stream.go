package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lucasnoah/mcpforge/internal/db"
)

// handleRunStream serves a Server-Sent Events stream of the step events of
// a run. New events are polled from the database; a "done" event is sent
// once the run is no longer running.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var sent int64
	tick := time.NewTicker(s.pollInterval)
	defer tick.Stop()

	for {
		// Status is read before the events so the final poll drains
		// everything logged before the run finished.
		current, err := s.db.GetRun(id)
		if err != nil {
			s.log.Warn().Err(err).Str("run", id).Msg("stream poll failed")
			return
		}
		events, err := s.db.StepEvents(id)
		if err != nil {
			s.log.Warn().Err(err).Str("run", id).Msg("stream poll failed")
			return
		}
		for _, e := range events {
			if e.ID <= sent {
				continue
			}
			sent = e.ID
			data, _ := json.Marshal(eventView(e))
			fmt.Fprintf(w, "event: step\ndata: %s\n\n", data)
		}
		flusher.Flush()

		if current == nil || current.Status != db.StatusRunning {
			status := "gone"
			if current != nil {
				status = current.Status
			}
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", status)
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
		}
	}
}
