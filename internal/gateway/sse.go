package gateway

import (
	"log/slog"
	"net/http"

	"gitlab.com/gitlab-org/ai-gateway/internal/agent"
	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
)

// eventStream writes newline-delimited {type, data} JSON events. Headers are
// committed on the first event; after that, failures can only end the stream.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventStream(w http.ResponseWriter, reqID string) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return nil, false
	}
	return &eventStream{w: w, flusher: flusher}, true
}

func (es *eventStream) start() {
	if es.started {
		return
	}
	es.started = true
	es.w.Header().Set("Content-Type", "text/event-stream")
	es.w.Header().Set("Cache-Control", "no-cache")
	es.w.Header().Set("Connection", "keep-alive")
	es.w.WriteHeader(http.StatusOK)
	es.flusher.Flush()
}

// send serializes one agent event. Returns false when the client is gone.
func (es *eventStream) send(ev agent.Event) bool {
	es.start()
	payload, err := agent.MarshalEvent(ev)
	if err != nil {
		slog.Error("marshal agent event", "type", ev.EventType(), "error", err)
		return true
	}
	if _, err := es.w.Write(append(payload, '\n')); err != nil {
		return false
	}
	es.flusher.Flush()
	return true
}
