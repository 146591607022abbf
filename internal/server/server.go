package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/control"
	"hookrelay/internal/hook"
	"hookrelay/internal/session"
)

// Server owns the session registry and dispatches every listener's
// requests to it.
type Server struct {
	Registry  *session.Registry
	Templates *TemplateManager

	cfg      *config.Config
	log      *zap.Logger
	hooks    *hook.Handler
	control  *control.Handler
	upgrader websocket.Upgrader
}

// New builds a server from cfg. The hook log backend is chosen by the Redis
// settings and falls back to memory.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store := session.NewStore(cfg.Redis, log)
	registry := session.NewRegistry(session.RegistryOptions{
		Store:        store,
		StreamBuffer: cfg.Stream.Buffer,
		Logger:       log,
	})
	return NewWithRegistry(cfg, log, registry)
}

// NewWithRegistry builds a server around an existing registry.
func NewWithRegistry(cfg *config.Config, log *zap.Logger, registry *session.Registry) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	hooks, err := hook.NewHandler(hook.Options{
		MaxBodyBytes:    cfg.Hook.MaxBodyBytes,
		CorrelationPath: cfg.Hook.CorrelationPath,
		Logger:          log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hook handler: %w", err)
	}

	tm, err := NewTemplateManager(log)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &Server{
		Registry:  registry,
		Templates: tm,
		cfg:       cfg,
		log:       log,
		hooks:     hooks,
		control:   control.NewHandler(cfg.Control.EnablePolicyUpdates, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.WSBufferSize,
			WriteBufferSize: constants.WSBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointStream, s.HandleStream)
	mux.HandleFunc(constants.EndpointWebSocket, s.HandleWebSocket)
	mux.HandleFunc(constants.EndpointHealth, s.HandleHealth)
	mux.Handle(constants.EndpointRoot, s.staticHandler())

	var handler http.Handler = sessionRoutes(mux, map[string]http.HandlerFunc{
		constants.EndpointHook:    s.HandleHook,
		constants.EndpointControl: s.HandleControl,
	})
	handler = CorsMiddleware(handler)
	handler = RecoveryMiddleware(s.log)(handler)
	return handler
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// the listeners down and closes every session.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := s.Handler()
	errCh := make(chan error, 2)

	plain := s.newHTTPServer(s.cfg.Port, h2c.NewHandler(handler, &http2.Server{}))
	servers := []*http.Server{plain}

	s.log.Info("🌐 HTTP mode (HTTP/2 enabled)", zap.String("addr", plain.Addr))
	go func() {
		if err := plain.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if s.cfg.TLSEnabled() {
		secure := s.newHTTPServer(s.cfg.TLS.Port, handler)
		certFile, keyFile := s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile
		if certFile == "" {
			secure.TLSConfig = s.acmeTLSConfig()
		}
		servers = append(servers, secure)

		s.log.Info("🔒 HTTPS enabled (HTTP/2)", zap.String("addr", secure.Addr), zap.Bool("acme", certFile == ""))
		go func() {
			if err := secure.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTPS server error: %w", err)
			}
		}()
	}

	s.log.Info("🚀 "+constants.AppName+" server starting", zap.Int("port", s.cfg.Port))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.log.Info("🛑 Shutting down server...")
	s.shutdown(servers)
	s.log.Info("✅ Server stopped")
	return runErr
}

func (s *Server) newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)),
		Handler:           handler,
		IdleTimeout:       constants.IdleTimeout,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		MaxHeaderBytes:    constants.MaxHeaderBytes,
	}
}

func (s *Server) acmeTLSConfig() *tls.Config {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.TLS.ACMEDomains...),
		Cache:      autocert.DirCache(s.cfg.TLS.ACMECacheDir),
	}
	return m.TLSConfig()
}

// shutdown releases every session once, then stops the listeners. Streams
// only end when their session is released, so sessions go first; hook calls
// still in flight then see an unknown session.
func (s *Server) shutdown(servers []*http.Server) {
	s.closeSessions()

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("Server forced to shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	s.Cleanup()
}

func (s *Server) closeSessions() {
	ids := s.Registry.IDs()
	s.log.Info("🧹 Releasing sessions", zap.Int("count", len(ids)))
	for _, id := range ids {
		s.Registry.Remove(id)
	}
}

// Cleanup closes every session and the hook log backend.
func (s *Server) Cleanup() {
	if err := s.Registry.Close(); err != nil {
		s.log.Warn("Failed to close hook store", zap.Error(err))
	}
}
