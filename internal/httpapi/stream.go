package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"llmgate/pkg/types"
)

// eventWriter serializes stream events onto the response and flushes each one.
type eventWriter interface {
	WriteEvent(ev types.StreamEvent) error
}

// newEventWriter picks SSE when the client asks for text/event-stream and
// NDJSON otherwise, and commits the response headers.
func newEventWriter(w http.ResponseWriter, r *http.Request, debug bool, log zerolog.Logger) eventWriter {
	out := io.Writer(w)
	// Optional logging of stream lines
	if debug {
		out = io.MultiWriter(w, &loggingLineWriter{log: log})
	}
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	h := w.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.Set("Content-Type", "text/event-stream")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flush()
		return &sseWriter{w: out, flush: flush}
	}
	h.Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flush()
	return &ndjsonWriter{enc: json.NewEncoder(out), flush: flush}
}

type ndjsonWriter struct {
	enc   *json.Encoder
	flush func()
}

func (n *ndjsonWriter) WriteEvent(ev types.StreamEvent) error {
	if err := n.enc.Encode(ev); err != nil {
		return err
	}
	n.flush()
	return nil
}

type sseWriter struct {
	w     io.Writer
	flush func()
}

func (s *sseWriter) WriteEvent(ev types.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return err
	}
	s.flush()
	return nil
}
