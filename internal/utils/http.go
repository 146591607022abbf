package utils

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"hookrelay/internal/constants"
	"hookrelay/internal/types"
)

// GetScheme determines the scheme (http/https) from the request
func GetScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(scheme, ",")[0]))
	}
	return "http"
}

// GetHost returns the public host of the request, preferring X-Forwarded-Host.
func GetHost(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return strings.TrimSpace(strings.Split(host, ",")[0])
	}
	return r.Host
}

// ConstructURL builds a URL string and removes standard web ports if present
func ConstructURL(scheme, host, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		return fmt.Sprintf("%s://%s%s", scheme, host, path)
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	if port == "" || IsStandardPort(scheme, port) {
		return fmt.Sprintf("%s://%s%s", scheme, hostname, path)
	}

	return fmt.Sprintf("%s://%s:%s%s", scheme, hostname, port, path)
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteSoftError answers 200 with {ok:false, errorMsg}. Webhook senders
// often look only at the status code, so routing failures are not 404s.
func WriteSoftError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, types.ErrorEnvelope{OK: false, ErrorMsg: msg})
}
