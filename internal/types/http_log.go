package types

import (
	"encoding/json"
	"time"
)

// HeaderPair is one header line as received. Repeated names produce
// repeated pairs.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HookRecord is the captured form of one inbound webhook call. Records are
// never modified after they are appended to a session's hook log.
type HookRecord struct {
	HookID        int64               `json:"hookId"`
	Method        string              `json:"method"`
	Path          string              `json:"path"`
	Headers       []HeaderPair        `json:"headers"`
	Body          json.RawMessage     `json:"body"`
	Query         map[string][]string `json:"query"`
	ContentType   string              `json:"contentType,omitempty"`
	RemoteAddr    string              `json:"remoteAddr,omitempty"`
	BodyTruncated bool                `json:"bodyTruncated,omitempty"`
	ReceivedAt    time.Time           `json:"receivedAt"`
}

// HookResponse is what a webhook caller received. Body holds the exact bytes
// written to the caller and is null when the status code is not 200.
type HookResponse struct {
	HookID     int64           `json:"hookId"`
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// StartPayload is the first event on every stream.
type StartPayload struct {
	SessionID  string `json:"sessionId"`
	HookURL    string `json:"hookUrl,omitempty"`
	ControlURL string `json:"controlUrl,omitempty"`
}

// ErrorEnvelope is the soft-fail body returned with HTTP 200.
type ErrorEnvelope struct {
	OK       bool   `json:"ok"`
	ErrorMsg string `json:"errorMsg"`
}
