package session

import (
	"encoding/json"
	"errors"

	"hookrelay/internal/types"
)

var (
	ErrInvalidStatusCode = errors.New("invalid status code")
	ErrInvalidBody       = errors.New("invalid policy body")
)

var defaultBody = json.RawMessage(`{"ok":true}`)

// ResponsePolicy is what a session answers to every hook call. Body is
// treated as immutable; setters copy it.
type ResponsePolicy struct {
	StatusCode int
	Body       json.RawMessage
}

// DefaultPolicy answers 200 {"ok":true}.
func DefaultPolicy() ResponsePolicy {
	return ResponsePolicy{StatusCode: 200, Body: cloneRaw(defaultBody)}
}

// Apply returns p with the changes requested by req. Reset is applied
// first, then the status code and body overrides. Informational codes
// cannot end an exchange, so the status must be in 200-599.
func (p ResponsePolicy) Apply(req *types.ControlRequest) (ResponsePolicy, error) {
	next := p
	if req.Reset {
		next = DefaultPolicy()
	}
	if req.StatusCode != nil {
		if *req.StatusCode < 200 || *req.StatusCode > 599 {
			return p, ErrInvalidStatusCode
		}
		next.StatusCode = *req.StatusCode
	}
	if len(req.Body) > 0 {
		if !json.Valid(req.Body) {
			return p, ErrInvalidBody
		}
		next.Body = cloneRaw(req.Body)
	}
	return next, nil
}

func (p ResponsePolicy) Wire() types.Policy {
	return types.Policy{StatusCode: p.StatusCode, Body: cloneRaw(p.Body)}
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
