package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure classes callers branch on. Anything else
// coming back from the server is a transient network/server error and the
// caller's policy is notify + refetch.
var (
	// ErrNotAuthenticated means no usable credential; the client refuses to
	// issue requests until one is supplied.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden means the server rejected the operation for the viewer's
	// role or membership.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the board or task no longer exists.
	ErrNotFound = errors.New("not found")
)

// APIError carries a non-2xx server response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto the sentinel errors so callers
// can use errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrNotAuthenticated
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
