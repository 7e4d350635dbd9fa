package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenNotFound  = errors.New("token not found")
	ErrNoPrincipal    = errors.New("no signed-in principal")
	ErrUnknownRole    = errors.New("unknown role")
	ErrSubmitInFlight = errors.New("submit already in progress")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string
	// Reason is extra_data.reason of a 403 body, if any.
	Reason string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend responded %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend responded %d", e.Status)
}

// Is maps 404 to ErrNotFound and 401/403 to ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}
