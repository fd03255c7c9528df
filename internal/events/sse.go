package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSETransport writes events as server-sent events.
type SSETransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSETransport prepares w for an event stream and sends the headers.
func NewSSETransport(w http.ResponseWriter) (*SSETransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSETransport{w: w, flusher: flusher}, nil
}

func (t *SSETransport) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}
