package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Status codes synthesized by the onboarding pipeline. They sit outside the
// registered HTTP range on purpose so they never collide with upstream codes.
const (
	StatusGenericFailure     = 512
	StatusConflictingConsent = 513
)

// APIError represents a structured error response from a service.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status code %d, message: %s", e.StatusCode, e.Message)
}

// Is matches another *APIError carrying the same status code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.StatusCode == e.StatusCode
}

func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}

func NewBadRequestError(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, message)
}

func NewUnauthorizedError(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, message)
}

func NewForbiddenError(message string) *APIError {
	return NewAPIError(http.StatusForbidden, message)
}

func NewNotFoundError(message string) *APIError {
	return NewAPIError(http.StatusNotFound, message)
}

func NewInternalServerError(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message)
}

// NewGenericFailure wraps an unstructured failure. The 512 code tells the
// error modal this was not an upstream HTTP status (and never a 401).
func NewGenericFailure(message string) *APIError {
	return NewAPIError(StatusGenericFailure, message)
}

// Pre-defined error types
var (
	ErrConflict           = NewAPIError(http.StatusConflict, "resource already exists")
	ErrConflictingConsent = NewAPIError(StatusConflictingConsent, "member holds both HIPAA and CLIENT_HIPAA consents")
)

// FromError returns the *APIError carried by err, or synthesizes a generic
// failure around it. A nil err yields nil.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return NewGenericFailure(err.Error())
}
