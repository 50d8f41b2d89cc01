package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Local errors
const (
	// ErrCodeLocalEnvironment indicates the host environment could not be
	// inspected well enough to publish a registration (e.g. no outbound address).
	ErrCodeLocalEnvironment ErrorCode = "LOCAL_ENVIRONMENT"
	// ErrCodeInvalidInput indicates operator input was rejected before any
	// network call was made.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Backend errors
const (
	// ErrCodeBackendUnavailable indicates the backend could not be reached.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeBackendRejected indicates the backend answered with a non-2xx status.
	ErrCodeBackendRejected ErrorCode = "BACKEND_REJECTED"
	// ErrCodeNotFound indicates the requested key or service does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

var fatalCodes = map[ErrorCode]bool{
	ErrCodeLocalEnvironment: true,
}

// IsFatalCode reports whether an error with this code must abort the invocation.
func IsFatalCode(code ErrorCode) bool {
	return fatalCodes[code]
}
