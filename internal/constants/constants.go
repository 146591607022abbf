package constants

import "time"

const AppName = "hookrelay"

// Network defaults
const (
	DefaultHost         = "" // all interfaces
	DefaultPort         = 5123
	DefaultStaticDir    = "public"
	MinPort             = 1
	MaxPort             = 65535
	ReadHeaderTimeout   = 10 * time.Second
	IdleTimeout         = 120 * time.Second
	ShutdownTimeout     = 5 * time.Second
	MaxHeaderBytes      = 1 << 20
	DefaultACMECacheDir = "certs/acme"
)

// Stream settings
const (
	DefaultStreamBuffer = 64
	WSBufferSize        = 16384
	WSWriteTimeout      = 10 * time.Second
)

// Hook capture
const (
	DefaultMaxBodyBytes    = 10 * 1024 * 1024 // 10MB
	DefaultCorrelationPath = "$.data"
	MaxControlBodySize     = 1024 * 1024
	CorrelationIDField     = "id"
)

// Redis hook log
const (
	RedisKeyPrefix  = "hookrelay:hooks:"
	DefaultRedisTTL = 24 * time.Hour
)

// API endpoints
const (
	EndpointStream    = "/stream"
	EndpointWebSocket = "/ws"
	EndpointHook      = "/hook/"
	EndpointControl   = "/control/"
	EndpointHealth    = "/healthz"
	EndpointRoot      = "/"
)

// Stream response headers
const (
	ContentTypeEventStream = "text/event-stream"
	ContentTypeJSON        = "application/json"
)

// CORS
const (
	CorsAllowOrigin  = "*"
	CorsAllowMethods = "GET, POST"
	CorsAllowHeaders = "X-Requested-With, Content-Type, Authorization"
)

// Soft-error messages returned in {ok:false, errorMsg}
const (
	MsgInvalidSessionID      = "invalid session id"
	MsgInvalidURL            = "invalid url"
	MsgInvalidControlRequest = "invalid control request"
	MsgInvalidStatusCode     = "invalid status code"
	MsgMethodNotAllowed      = "method not allowed"
	MsgStreamingUnsupported  = "streaming not supported"
)
