package gateway

import "net/http"

// modelNotFoundError signals a model absent from the catalog (404).
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string   { return "model not found: " + e.name }
func (e modelNotFoundError) StatusCode() int { return http.StatusNotFound }
func (e modelNotFoundError) Code() string    { return "model_not_found" }

// ErrModelNotFound returns an error for a model name the catalog does not know.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates an unknown model.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// tooBusyError signals admission timeout for 429 mapping.
type tooBusyError struct{ model string }

func (e tooBusyError) Error() string   { return "too busy: " + e.model }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }
func (e tooBusyError) Code() string    { return "too_busy" }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// badRequestError rejects a malformed chat request before any work is done.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }
func (e badRequestError) Code() string    { return "bad_request" }

// IsBadRequest reports whether err rejects the request shape.
func IsBadRequest(err error) bool {
	_, ok := err.(badRequestError)
	return ok
}

// duplicateRequestIDError rejects a chat whose ID is already streaming (409).
type duplicateRequestIDError struct{ id string }

func (e duplicateRequestIDError) Error() string {
	return "a chat with request id " + e.id + " is already active"
}
func (e duplicateRequestIDError) StatusCode() int { return http.StatusConflict }
func (e duplicateRequestIDError) Code() string    { return "duplicate_request_id" }

// ErrDuplicateRequestID returns an error for an ID owned by an active chat.
func ErrDuplicateRequestID(id string) error { return duplicateRequestIDError{id: id} }

// IsDuplicateRequestID reports whether err rejects a reused request ID.
func IsDuplicateRequestID(err error) bool {
	_, ok := err.(duplicateRequestIDError)
	return ok
}
