package ollama

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned when the model server answers with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model server http error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("model server http error: %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// StatusCode maps upstream failures to 502 Bad Gateway.
func (e *StatusError) StatusCode() int { return http.StatusBadGateway }

// Code is the stable error kind reported to clients.
func (e *StatusError) Code() string { return "upstream_error" }

// IsStatusError reports whether err carries a non-2xx model server response.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
