package supervisor

import (
	"errors"
	"net/http"
)

// unavailableError signals that no model server answered within the deadline.
type unavailableError struct {
	msg   string
	cause error
}

func (e *unavailableError) Error() string {
	if e.cause != nil {
		return "model server unavailable: " + e.msg + ": " + e.cause.Error()
	}
	return "model server unavailable: " + e.msg
}
func (e *unavailableError) Unwrap() error   { return e.cause }
func (e *unavailableError) StatusCode() int { return http.StatusServiceUnavailable }
func (e *unavailableError) Code() string    { return "upstream_unavailable" }

// ErrUpstreamUnavailable constructs an unavailableError.
func ErrUpstreamUnavailable(msg string, cause error) error {
	return &unavailableError{msg: msg, cause: cause}
}

// IsUpstreamUnavailable reports whether err indicates the model server could not be reached.
func IsUpstreamUnavailable(err error) bool {
	var e *unavailableError
	return errors.As(err, &e)
}

// spawnFailedError signals that the model server process could not be created.
type spawnFailedError struct {
	bin   string
	cause error
}

func (e *spawnFailedError) Error() string {
	return "spawn model server " + e.bin + ": " + e.cause.Error()
}
func (e *spawnFailedError) Unwrap() error   { return e.cause }
func (e *spawnFailedError) StatusCode() int { return http.StatusServiceUnavailable }
func (e *spawnFailedError) Code() string    { return "spawn_failed" }

// IsSpawnFailed reports whether err indicates process creation failed.
func IsSpawnFailed(err error) bool {
	var e *spawnFailedError
	return errors.As(err, &e)
}

var errExitedEarly = errors.New("model server exited before ready")
