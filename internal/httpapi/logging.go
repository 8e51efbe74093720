package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer; Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "httpapi").Logger() }

// loggingLineWriter logs complete stream lines at debug level.
type loggingLineWriter struct {
	log zerolog.Logger
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(string(lw.buf[:idx])); line != "" {
			lw.log.Debug().Str("line", line).Msg("chat>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int32

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelInfo
	}
}

var defaultLogLevel atomic.Int32

func init() { defaultLogLevel.Store(int32(LevelInfo)) }

// SetDefaultLogLevel sets the request log level used without overrides.
// Safe to call while serving; config reloads use it.
func SetDefaultLogLevel(s string) { defaultLogLevel.Store(int32(parseLevel(s))) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return LogLevel(defaultLogLevel.Load())
}

// requestLogger returns zlog tagged with the chi request ID when present.
func requestLogger(rid string) zerolog.Logger {
	if rid == "" {
		return zlog
	}
	return zlog.With().Str("request_id", rid).Logger()
}
