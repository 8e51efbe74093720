package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"llmgate/internal/gateway"
	"llmgate/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorKind(w, status, msg, "")
}

func writeJSONErrorKind(w http.ResponseWriter, status int, msg, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Kind: kind})
}

// statusFor maps a service error onto an HTTP status; unknown errors are 500.
func statusFor(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeError maps err to its status and stable kind and writes it. Only
// valid before the first byte of a response body.
func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	kind := gateway.ErrorCode(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(kind)
	}
	writeJSONErrorKind(w, status, err.Error(), kind)
	return status
}
