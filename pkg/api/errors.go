package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the analysis service.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	// Body holds the response body, truncated for logging.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Server reports whether the response was a server-side failure.
func (e *StatusError) Server() bool {
	return e.StatusCode >= 500
}

// Transient reports whether the response was an upstream 502, which the
// service emits while busy and which resolves on its own.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusBadGateway
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Server()
}

// IsTransient reports whether err is a transient 502 response.
func IsTransient(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Transient()
}

// StatusOf returns the HTTP status of err, or zero when err is not a
// StatusError.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
