package relay

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		id       string
		expected string
	}{
		{
			name:     "typed event",
			event:    Event{Kind: KindStart, Payload: map[string]string{"sessionId": "abc"}},
			id:       "0",
			expected: "id: 0\nevent: start\ndata: {\"sessionId\":\"abc\"}\n\n",
		},
		{
			name:     "untyped event",
			event:    Event{Payload: []int{1, 2}},
			id:       "7",
			expected: "id: 7\ndata: [1,2]\n\n",
		},
		{
			name:     "string payload is json encoded",
			event:    Event{Kind: KindHook, Payload: "line1\nline2"},
			id:       "x",
			expected: "id: x\nevent: hook\ndata: \"line1\\nline2\"\n\n",
		},
		{
			name:     "nil payload",
			event:    Event{Kind: KindHook},
			id:       "1",
			expected: "id: 1\nevent: hook\ndata: null\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.event, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
			assert.NotContains(t, string(got), "\r")
		})
	}
}

func TestFormat_RejectsLineBreaks(t *testing.T) {
	_, err := Format(Event{Kind: KindHook}, "a\nb")
	assert.ErrorIs(t, err, ErrInvalidEventID)

	_, err = Format(Event{Kind: "bad\r"}, "1")
	assert.ErrorIs(t, err, ErrInvalidEventID)
}

func TestFormat_UnmarshalablePayload(t *testing.T) {
	_, err := Format(Event{Kind: KindHook, Payload: make(chan int)}, "1")
	assert.Error(t, err)
}

func TestSSEWriter_AutoIDsStartAtZero(t *testing.T) {
	var buf bytes.Buffer
	flushes := 0
	w := NewSSEWriter(&buf, func() { flushes++ })

	require.NoError(t, w.WriteEvent(Event{Kind: KindStart, Payload: 1}))
	require.NoError(t, w.WriteEvent(Event{Kind: KindHook, ID: "explicit", Payload: 2}))
	require.NoError(t, w.WriteEvent(Event{Kind: KindHookResponse, Payload: 3}))

	expected := "id: 0\nevent: start\ndata: 1\n\n" +
		"id: explicit\nevent: hook\ndata: 2\n\n" +
		"id: 1\nevent: hookResponse\ndata: 3\n\n"
	assert.Equal(t, expected, buf.String())
	assert.Equal(t, 3, flushes)
}

func TestSSEWriter_Keepalive(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(&buf, nil)

	require.NoError(t, w.WriteKeepalive())
	assert.Equal(t, ": keepalive\n\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestSSEWriter_WriteError(t *testing.T) {
	w := NewSSEWriter(failingWriter{}, nil)
	assert.Error(t, w.WriteEvent(Event{Kind: KindHook, Payload: 1}))
}
