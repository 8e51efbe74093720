package httpapi

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 32 << 20

// maxBodyBytes bounds a /chat or /attachments request body, attachments included.
var maxBodyBytes atomic.Int64

func init() { maxBodyBytes.Store(defaultMaxBodyBytes) }

// SetMaxBodyBytes configures the maximum request body size (0 = default 32 MiB).
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes.Store(n)
}

const defaultMaxUploadBytes = 1 << 30

// maxUploadBytes bounds a multipart /chat body on the wire. Files beyond the
// prompt budget are read and discarded, so this may exceed maxBodyBytes.
var maxUploadBytes atomic.Int64

func init() { maxUploadBytes.Store(defaultMaxUploadBytes) }

// SetMaxUploadBytes configures the multipart /chat wire limit (0 = default 1 GiB).
func SetMaxUploadBytes(n int64) {
	if n <= 0 {
		n = defaultMaxUploadBytes
	}
	maxUploadBytes.Store(n)
}

// chatTimeout caps how long one chat stream may run. Zero means no limit
// beyond the server's own timeouts.
var chatTimeout atomic.Int64 // seconds

// SetChatTimeoutSeconds sets the chat timeout in seconds (0 disables).
func SetChatTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	chatTimeout.Store(sec)
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// startLimiter throttles explicit model-server start requests.
var startLimiter atomic.Pointer[rate.Limiter]

func init() { SetStartRateLimit(2*time.Second, 3) }

// SetStartRateLimit allows one /server/start per interval with the given
// burst. A non-positive interval disables the limit.
func SetStartRateLimit(every time.Duration, burst int) {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	startLimiter.Store(rate.NewLimiter(limit, burst))
}

// swaggerEnabled mounts the OpenAPI UI at /swagger/*.
var swaggerEnabled atomic.Bool

// SetSwaggerEnabled toggles the /swagger/* routes for routers built afterwards.
func SetSwaggerEnabled(on bool) { swaggerEnabled.Store(on) }
