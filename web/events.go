// ABOUTME: SSE endpoint streaming pipeline lifecycle events to connected observers.
// ABOUTME: Sends an init event with the current snapshot first, then relays the broadcaster feed.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389-research/outreach/pipeline"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleEvents streams server-sent events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snap, counts, err := s.controller.Status()
	initData := map[string]any{"pipeline_state": snap}
	if err == nil {
		initData["status_counts"] = counts
	}
	writeSSE(w, pipeline.NewEvent(pipeline.EventInit, initData))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSE formats one event in the text/event-stream framing.
func writeSSE(w http.ResponseWriter, evt pipeline.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
}
