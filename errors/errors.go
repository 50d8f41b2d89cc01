package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// HTTPStatus is the status the backend answered with, 0 when no response was received.
	HTTPStatus int `json:"status,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Fatal reports whether the error must terminate the invocation.
func (e *AppError) Fatal() bool { return IsFatalCode(e.Code) }

// Reason returns the HTTP reason phrase for the backend status, or "" when
// no response was received.
func (e *AppError) Reason() string {
	if e.HTTPStatus == 0 {
		return ""
	}
	return http.StatusText(e.HTTPStatus)
}

// URL returns the request URL recorded in the details, if any.
func (e *AppError) URL() string {
	if u, ok := e.Details["url"].(string); ok {
		return u
	}
	return ""
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// LocalEnvironment creates the fatal error raised when a local probe that
// the registration cannot do without has failed.
func LocalEnvironment(probe string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeLocalEnvironment,
		Message: fmt.Sprintf("cannot determine %s", probe),
		Details: map[string]any{"probe": probe},
		Cause:   cause,
	}
}

// InvalidInput creates a new AppError for rejected operator input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// BackendUnavailable creates a new AppError for a request that got no response.
func BackendUnavailable(op, url string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeBackendUnavailable,
		Message: fmt.Sprintf("%s: backend unreachable", op),
		Details: map[string]any{"operation": op, "url": url},
		Cause:   cause,
	}
}

// BackendRejected creates a new AppError for a non-2xx backend response.
func BackendRejected(op, url string, status int, body string) *AppError {
	details := map[string]any{"operation": op, "url": url}
	if body != "" {
		details["body"] = body
	}
	return &AppError{
		Code:       ErrCodeBackendRejected,
		Message:    fmt.Sprintf("%s: backend answered %d %s", op, status, http.StatusText(status)),
		HTTPStatus: status,
		Details:    details,
	}
}

// NotFound creates a new AppError for a missing key or service.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", resource, id),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
