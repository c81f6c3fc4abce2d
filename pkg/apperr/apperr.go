package apperr

import (
	"errors"
	"net/http"
)

// Shared error kinds. Repos and handlers wrap these with context via
// fmt.Errorf("...: %w", ...) so the HTTP layer can pick the status code
// with errors.Is while logs keep the full chain.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("authentication required")
	ErrUnauthorized    = errors.New("not permitted")
)

func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
