package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsFrame is the JSON text frame sent for each event on a WebSocket stream.
type wsFrame struct {
	ID    string          `json:"id"`
	Event Kind            `json:"event,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// WSWriter delivers events as WebSocket text frames, numbering them the same
// way SSEWriter does.
type WSWriter struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	ids          idSequence
}

func NewWSWriter(conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	return &WSWriter{conn: conn, writeTimeout: writeTimeout}
}

func (w *WSWriter) WriteEvent(ev Event) error {
	if strings.ContainsAny(ev.ID, "\r\n") || strings.ContainsAny(string(ev.Kind), "\r\n") {
		return ErrInvalidEventID
	}

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	msg, err := json.Marshal(wsFrame{ID: w.ids.take(ev.ID), Event: ev.Kind, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	w.setDeadline()
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

// WriteKeepalive sends a ping control frame.
func (w *WSWriter) WriteKeepalive() error {
	deadline := time.Time{}
	if w.writeTimeout > 0 {
		deadline = time.Now().Add(w.writeTimeout)
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (w *WSWriter) setDeadline() {
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
}
