package server

import (
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"hookrelay/internal/constants"
	"hookrelay/internal/utils"
)

// CorsMiddleware allows any origin on every response and answers preflight
// requests itself.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", constants.CorsAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", constants.CorsAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", constants.CorsAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GzipMiddleware compresses static responses for clients that accept it.
// Streams, hooks and control replies are never routed through it.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		gz := utils.GetGzipWriter(w)
		defer utils.PutGzipWriter(gz)

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		next.ServeHTTP(&utils.GzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

func RecoveryMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("🔥 PANIC RECOVERED",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
