package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wire field prefixes.
const (
	fieldID      = "id: "
	fieldEvent   = "event: "
	fieldData    = "data: "
	fieldComment = ": "
)

var ErrInvalidEventID = errors.New("event id or type contains a line break")

// idSequence numbers events that were published without an explicit id.
// Each connection owns one, starting at 0.
type idSequence struct {
	next int64
}

// take returns explicit when set, otherwise the next sequence value.
func (s *idSequence) take(explicit string) string {
	if explicit != "" {
		return explicit
	}
	id := strconv.FormatInt(s.next, 10)
	s.next++
	return id
}

// SSEWriter encodes events in the text/event-stream format: an id line, an
// optional event line, one data line holding the JSON payload and a blank
// line.
type SSEWriter struct {
	w     io.Writer
	flush func()
	ids   idSequence
}

// NewSSEWriter wraps w. flush may be nil.
func NewSSEWriter(w io.Writer, flush func()) *SSEWriter {
	return &SSEWriter{w: w, flush: flush}
}

// Format renders ev without writing it. It does not advance the id counter.
func Format(ev Event, id string) ([]byte, error) {
	if strings.ContainsAny(id, "\r\n") || strings.ContainsAny(string(ev.Kind), "\r\n") {
		return nil, ErrInvalidEventID
	}

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(fieldID) + len(id) + len(fieldEvent) + len(ev.Kind) + len(fieldData) + len(data) + 4)

	sb.WriteString(fieldID)
	sb.WriteString(id)
	sb.WriteByte('\n')

	if ev.Kind != "" {
		sb.WriteString(fieldEvent)
		sb.WriteString(string(ev.Kind))
		sb.WriteByte('\n')
	}

	// encoding/json never emits raw newlines, so one data line is enough.
	sb.WriteString(fieldData)
	sb.Write(data)
	sb.WriteString("\n\n")

	return []byte(sb.String()), nil
}

// WriteEvent encodes and flushes one event.
func (s *SSEWriter) WriteEvent(ev Event) error {
	frame, err := Format(ev, s.ids.take(ev.ID))
	if err != nil {
		return err
	}

	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

// WriteComment sends a comment frame, ignored by EventSource parsers.
func (s *SSEWriter) WriteComment(comment string) error {
	var sb strings.Builder
	for _, line := range strings.Split(comment, "\n") {
		sb.WriteString(fieldComment)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	if _, err := io.WriteString(s.w, sb.String()); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

// WriteKeepalive sends a keepalive comment.
func (s *SSEWriter) WriteKeepalive() error {
	return s.WriteComment("keepalive")
}
