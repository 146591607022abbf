package types

import "encoding/json"

// Policy is the wire form of a session response policy.
type Policy struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// ControlRequest updates a session's response policy or queries its state.
// Absent fields leave the policy untouched. Reset is applied before the
// overrides.
type ControlRequest struct {
	Reset        bool            `json:"reset,omitempty"`
	StatusCode   *int            `json:"statusCode,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	IncludeHooks bool            `json:"includeHooks,omitempty"`
}

// Mutates reports whether the request asks for a policy change.
func (r *ControlRequest) Mutates() bool {
	return r.Reset || r.StatusCode != nil || len(r.Body) > 0
}

type ControlResponse struct {
	OK                   bool         `json:"ok"`
	SessionID            string       `json:"sessionId"`
	Policy               Policy       `json:"policy"`
	HookCount            int64        `json:"hookCount"`
	PolicyUpdatesEnabled bool         `json:"policyUpdatesEnabled"`
	Hooks                []HookRecord `json:"hooks,omitempty"`
}
