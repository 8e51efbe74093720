package streamproxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrClientDisconnected reports that the caller went away before the stream
// completed. It triggers cancellation only and is never shown to a client.
var ErrClientDisconnected = errors.New("client disconnected")

// IsClientDisconnected reports whether err stems from caller cancellation.
func IsClientDisconnected(err error) bool { return errors.Is(err, ErrClientDisconnected) }

// protocolError is a streamed line that is not a valid JSON chunk.
type protocolError struct {
	line  string
	cause error
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("malformed chunk from model server: %v (line %q)", e.cause, e.line)
}
func (e *protocolError) Unwrap() error   { return e.cause }
func (e *protocolError) StatusCode() int { return http.StatusBadGateway }
func (e *protocolError) Code() string    { return "upstream_protocol_error" }

// IsUpstreamProtocolError reports whether err is a malformed upstream chunk.
func IsUpstreamProtocolError(err error) bool {
	var e *protocolError
	return errors.As(err, &e)
}

// upstreamError is a failure reported by, or on the connection to, the model
// server after the stream was opened.
type upstreamError struct {
	msg   string
	cause error
}

func (e *upstreamError) Error() string {
	if e.cause != nil {
		return "model server: " + e.msg + ": " + e.cause.Error()
	}
	return "model server: " + e.msg
}
func (e *upstreamError) Unwrap() error   { return e.cause }
func (e *upstreamError) StatusCode() int { return http.StatusBadGateway }
func (e *upstreamError) Code() string    { return "upstream_error" }

// IsUpstreamError reports whether err is a midstream upstream failure.
func IsUpstreamError(err error) bool {
	var e *upstreamError
	return errors.As(err, &e)
}
