// Package apperr provides the structured error taxonomy for the digest service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Digest pipeline errors
	CodeAuthError            = "AUTH_ERROR"
	CodeUpstreamError        = "UPSTREAM_ERROR"
	CodeClassificationError  = "CLASSIFICATION_ERROR"
	CodePersistenceError     = "PERSISTENCE_ERROR"
	CodeGenerationInProgress = "GENERATION_IN_PROGRESS"

	// Request errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code.
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// New creates an AppError from raw parts.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// Wrap attaches a cause to a new AppError.
func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// Auth signals missing or invalid mailbox credentials. Never retried.
func Auth(message string, err error) *AppError {
	if message == "" {
		message = "mailbox credentials missing or invalid"
	}
	return &AppError{
		Code:    CodeAuthError,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

// Upstream signals a mailbox provider failure (network, rate limit, 5xx).
// The caller may retry a full generation cycle later.
func Upstream(service string, err error) *AppError {
	return &AppError{
		Code:    CodeUpstreamError,
		Message: fmt.Sprintf("upstream failure: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Classification signals a classifier failure that is not absorbed by the
// deterministic fallback (e.g. misconfigured AI provider credentials).
func Classification(message string, err error) *AppError {
	return &AppError{
		Code:    CodeClassificationError,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Persistence signals a record store failure. Commit-phase writes log this
// without aborting the in-flight digest.
func Persistence(operation string, err error) *AppError {
	return &AppError{
		Code:    CodePersistenceError,
		Message: fmt.Sprintf("persistence failure: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// GenerationInProgress signals that a digest generation for the user is
// already running; the per-user single-flight guard rejected this call.
func GenerationInProgress() *AppError {
	return &AppError{
		Code:    CodeGenerationInProgress,
		Message: "digest generation already in progress for this user",
		Status:  http.StatusConflict,
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{Code: CodeInternalError, Message: message, Status: http.StatusInternalServerError}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError converts any error into an AppError, wrapping unknown errors
// as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

// GetHTTPStatus extracts the status for an error, defaulting to 500.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
