package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"hookrelay/internal/constants"
	"hookrelay/internal/session"
	"hookrelay/internal/types"
	"hookrelay/internal/utils"
)

var ErrInvalidRequest = errors.New("invalid control request")

// Handler serves the control endpoint of a session. Policy mutation only
// happens when updates are enabled; otherwise requests that ask for one are
// answered with the unchanged policy.
type Handler struct {
	enableUpdates bool
	log           *zap.Logger
}

func NewHandler(enableUpdates bool, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{enableUpdates: enableUpdates, log: log}
}

// UpdatesEnabled reports whether control requests may change the policy.
func (h *Handler) UpdatesEnabled() bool {
	return h.enableUpdates
}

// Handle decodes the control request, applies it to sess and writes the
// resulting state. Every outcome is answered with HTTP 200.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, err := decodeRequest(w, r)
	if err != nil {
		h.log.Debug("Rejected control request", zap.String("session_id", sess.ID), zap.Error(err))
		utils.WriteSoftError(w, constants.MsgInvalidControlRequest)
		return
	}

	resp, err := h.Apply(r, sess, req)
	if err != nil {
		msg := constants.MsgInvalidControlRequest
		if errors.Is(err, session.ErrInvalidStatusCode) {
			msg = constants.MsgInvalidStatusCode
		}
		utils.WriteSoftError(w, msg)
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

// Apply runs a decoded control request against sess.
func (h *Handler) Apply(r *http.Request, sess *session.Session, req *types.ControlRequest) (types.ControlResponse, error) {
	policy := sess.Policy()
	if req.Mutates() && h.enableUpdates {
		updated, err := sess.UpdatePolicy(req)
		if err != nil {
			return types.ControlResponse{}, err
		}
		policy = updated
		h.log.Info("Response policy updated",
			zap.String("session_id", sess.ID),
			zap.Int("status", policy.StatusCode),
		)
	}

	resp := types.ControlResponse{
		OK:                   true,
		SessionID:            sess.ID,
		Policy:               policy.Wire(),
		HookCount:            sess.HookCount(),
		PolicyUpdatesEnabled: h.enableUpdates,
	}

	if req.IncludeHooks {
		hooks, err := sess.Hooks(r.Context())
		if err != nil {
			h.log.Warn("Failed to read hook log", zap.String("session_id", sess.ID), zap.Error(err))
		}
		resp.Hooks = hooks
	}
	return resp, nil
}

// decodeRequest treats an empty body as an empty request.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*types.ControlRequest, error) {
	req := &types.ControlRequest{}
	if r.Body == nil {
		return req, nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxControlBodySize))
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	return req, nil
}
