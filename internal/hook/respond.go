package hook

import (
	"encoding/json"
	"net/http"

	"hookrelay/internal/constants"
	"hookrelay/internal/session"
)

// ResponseBody computes what a hook caller receives under policy. Only a 200
// carries a body. When a correlation id is known and the policy body is a
// JSON object, the id is added to it; any other shape is returned unchanged.
func ResponseBody(policy session.ResponsePolicy, id any, found bool) json.RawMessage {
	if policy.StatusCode != http.StatusOK {
		return nil
	}
	body := policy.Body
	if !found {
		return body
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return body
	}
	obj[constants.CorrelationIDField] = id

	withID, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return withID
}
