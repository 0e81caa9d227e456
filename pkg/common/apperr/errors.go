// Package apperr holds the error taxonomy shared by the dashboard workflows.
// Every workflow converts these into local view state at the call site.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError means bad credentials or an expired/invalid token. The only
// recovery is a fresh login; it is never retried.
type AuthError struct {
	Message string
	// Redirect is set when the session was cleared and the user must be sent
	// to the login page.
	Redirect string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "authentication required"
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure (offline, timeout, refused).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is raised client side before any network call.
type ValidationError struct {
	Field  string
	reason error
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, reason: fmt.Errorf(format, args...)}
}

// WrapValidation keeps a sentinel reachable through errors.Is.
func WrapValidation(field string, reason error) *ValidationError {
	return &ValidationError{Field: field, reason: reason}
}

func (e *ValidationError) Error() string {
	return e.reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.reason
}

// NotFoundError means the referenced donor or document is absent server side.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return e.Resource + " not found"
	}
	return "not found"
}

// APIError is any other non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps an error to the status the dashboard answers with.
func HTTPStatus(err error) int {
	var apiErr *APIError
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsAuth(err):
		return http.StatusUnauthorized
	case IsNotFound(err):
		return http.StatusNotFound
	case IsNetwork(err):
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
