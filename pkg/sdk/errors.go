package fedcat

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by APIError via errors.Is.
var (
	ErrBadRequest    = errors.New("fedcat: bad request")
	ErrUnauthorized  = errors.New("fedcat: unauthorized")
	ErrForbidden     = errors.New("fedcat: forbidden")
	ErrNotFound      = errors.New("fedcat: not found")
	ErrUnprocessable = errors.New("fedcat: unprocessable request")
	ErrServer        = errors.New("fedcat: server error")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fedcat: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is maps the status code onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnprocessable:
		return e.StatusCode == http.StatusUnprocessableEntity
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}
