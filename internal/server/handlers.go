package server

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"hookrelay/internal/constants"
	"hookrelay/internal/relay"
	"hookrelay/internal/security"
	"hookrelay/internal/session"
	"hookrelay/internal/types"
	"hookrelay/internal/utils"
)

// HandleStream opens a server-sent event stream bound to a new session. The
// session lives exactly as long as the connection.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteSoftError(w, constants.MsgMethodNotAllowed)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive any server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", constants.ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	if r.ProtoMajor < 2 {
		h.Set("Connection", "keep-alive")
	}
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Warn("Stream flush unsupported", zap.Error(err))
		return
	}

	sse := relay.NewSSEWriter(w, func() { _ = rc.Flush() })
	s.serveSession(r.Context(), r, sse, "sse")
}

// HandleWebSocket is the WebSocket flavour of HandleStream: one text frame
// per event.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("❌ WebSocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(constants.WSBufferSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The peer sends nothing we use; reading only surfaces the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.serveSession(ctx, r, relay.NewWSWriter(conn, constants.WSWriteTimeout), "ws")
}

func (s *Server) serveSession(ctx context.Context, r *http.Request, w relay.Writer, transport string) {
	sess := s.Registry.Create()
	defer s.Registry.Remove(sess.ID)

	sub, err := sess.Relay().Bind()
	if err != nil {
		s.log.Error("Failed to bind stream", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	defer sess.Relay().Unbind(sub)

	log := s.log.With(zap.String("session_id", sess.ID), zap.String("transport", transport))
	log.Info("🔌 Stream connected", zap.String("remote_addr", security.GetClientIP(r)))

	sess.Publish(relay.KindStart, s.startPayload(r, sess.ID))

	if err := relay.Pump(ctx, sub, w, s.cfg.Stream.Keepalive); err != nil {
		log.Debug("Stream write failed", zap.Error(err))
	}
	log.Info("🔌 Stream disconnected",
		zap.Int64("hooks", sess.HookCount()),
		zap.Duration("duration", time.Since(sess.CreatedAt)),
	)
}

func (s *Server) startPayload(r *http.Request, id string) types.StartPayload {
	scheme, host := utils.GetScheme(r), utils.GetHost(r)
	return types.StartPayload{
		SessionID:  id,
		HookURL:    utils.ConstructURL(scheme, host, constants.EndpointHook+id),
		ControlURL: utils.ConstructURL(scheme, host, constants.EndpointControl+id),
	}
}

// HandleHook captures a webhook call for the session named in the path.
func (s *Server) HandleHook(w http.ResponseWriter, r *http.Request) {
	if !hookMethods[r.Method] {
		utils.WriteSoftError(w, constants.MsgMethodNotAllowed)
		return
	}
	sess, ok := s.resolveSession(w, r, constants.EndpointHook)
	if !ok {
		return
	}
	s.hooks.Handle(w, r, sess)
}

var hookMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// HandleControl reads or updates the session named in the path.
func (s *Server) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		utils.WriteSoftError(w, constants.MsgMethodNotAllowed)
		return
	}
	sess, ok := s.resolveSession(w, r, constants.EndpointControl)
	if !ok {
		return
	}
	s.control.Handle(w, r, sess)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": s.Registry.Len(),
	})
}

// sessionRoutes dispatches session-scoped prefixes before the mux sees them.
// The mux would answer "/hook" or "/hook//id" with a redirect; these routes
// must reply with a soft error instead.
func sessionRoutes(next http.Handler, routes map[string]http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for prefix, handle := range routes {
			if r.URL.Path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(r.URL.Path, prefix) {
				handle(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolveSession extracts the session id following prefix and looks it up.
// Failures are answered with a soft error.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, prefix string) (*session.Session, bool) {
	rest, found := strings.CutPrefix(r.URL.Path, prefix)
	if !found {
		utils.WriteSoftError(w, constants.MsgInvalidURL)
		return nil, false
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		utils.WriteSoftError(w, constants.MsgInvalidURL)
		return nil, false
	}
	if !security.ValidateUUID(id) {
		utils.WriteSoftError(w, constants.MsgInvalidSessionID)
		return nil, false
	}
	sess, ok := s.Registry.Find(id)
	if !ok {
		utils.WriteSoftError(w, constants.MsgInvalidSessionID)
		return nil, false
	}
	return sess, true
}

// staticHandler serves the configured static directory, or the embedded
// inspector page when the directory does not exist.
func (s *Server) staticHandler() http.Handler {
	var handler http.Handler
	if info, err := os.Stat(s.cfg.StaticDir); err == nil && info.IsDir() {
		s.log.Info("📁 Serving static files", zap.String("dir", s.cfg.StaticDir))
		handler = http.FileServer(http.Dir(s.cfg.StaticDir))
	} else {
		handler = http.HandlerFunc(s.handleIndex)
	}

	handler = guardPath(handler)
	handler = security.SecurityHeaders(handler)
	return GzipMiddleware(handler)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != constants.EndpointRoot && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	s.Templates.Render(w, "index.html", map[string]any{
		"Title":      constants.AppName,
		"StreamPath": constants.EndpointStream,
	})
}

func guardPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !security.ValidatePath(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
