package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Reserved event names.
const (
	EventConnected  = "connected"
	EventDepartures = "departures"
	EventError      = "error"
	EventReconnect  = "reconnect"
)

// Event is one frame on the push channel. ID zero means the frame carries no id line.
type Event struct {
	Name string
	ID   uint64
	Data interface{}
}

type Emitter interface {
	Emit(ev Event) error
}

// Encode writes ev in text/event-stream framing.
func Encode(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Name, err)
	}

	var buf bytes.Buffer
	if ev.Name != "" {
		buf.WriteString("event: ")
		buf.WriteString(ev.Name)
		buf.WriteByte('\n')
	}
	if ev.ID > 0 {
		buf.WriteString("id: ")
		buf.WriteString(strconv.FormatUint(ev.ID, 10))
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	_, err = w.Write(buf.Bytes())
	return err
}

type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sends the stream headers and status. It fails when the
// ResponseWriter cannot flush, since buffered events never reach the client.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Emit(ev Event) error {
	if err := Encode(s.w, ev); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
