package hook

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"hookrelay/internal/constants"
	"hookrelay/internal/relay"
	"hookrelay/internal/session"
	"hookrelay/internal/types"
	"hookrelay/internal/utils"
)

type Options struct {
	Clock           clock.Clock
	MaxBodyBytes    int64
	CorrelationPath string
	Logger          *zap.Logger
}

// Handler captures webhook calls for a session and answers them from the
// session's response policy.
type Handler struct {
	capture   *Capturer
	correlate *Correlator
	log       *zap.Logger
}

func NewHandler(opts Options) (*Handler, error) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	correlate, err := NewCorrelator(opts.CorrelationPath)
	if err != nil {
		return nil, err
	}
	return &Handler{
		capture:   NewCapturer(opts.Clock, opts.MaxBodyBytes),
		correlate: correlate,
		log:       opts.Logger,
	}, nil
}

// Handle records the call, publishes hook and hookResponse events, and
// writes the response. The returned value is the one that was both
// published and written. A session closed mid-call is answered like an
// unknown one and yields a zero HookResponse.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, sess *session.Session) types.HookResponse {
	rec, raw := h.capture.Capture(r)
	rec, err := sess.RecordHook(r.Context(), rec)
	if err != nil {
		// The stream closed after the session was resolved.
		utils.WriteSoftError(w, constants.MsgInvalidSessionID)
		return types.HookResponse{}
	}

	policy := sess.Policy()
	id, found := h.correlate.Lookup(raw)

	resp := types.HookResponse{
		HookID:     rec.HookID,
		StatusCode: policy.StatusCode,
		Body:       ResponseBody(policy, id, found),
	}
	sess.Publish(relay.KindHookResponse, resp)

	h.log.Debug("Hook captured",
		zap.String("session_id", sess.ID),
		zap.Int64("hook_id", rec.HookID),
		zap.String("method", rec.Method),
		zap.String("path", rec.Path),
		zap.Int("status", resp.StatusCode),
		zap.Bool("correlated", found),
	)

	if resp.Body != nil {
		w.Header().Set("Content-Type", constants.ContentTypeJSON)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		if _, err := w.Write(resp.Body); err != nil {
			h.log.Debug("Hook response write failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return resp
}
