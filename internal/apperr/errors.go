// Package apperr defines the error taxonomy shared by the coordination layer
// and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrValidation  = errors.New("invalid request")
	ErrNotFound    = errors.New("not found")
)

// UpstreamError wraps a failure of an external collaborator.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func Upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// HTTPStatus maps an error from this package onto a response code.
func HTTPStatus(err error) int {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
