package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, remote service overload.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, unknown run id, rejected credentials.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: rate limiting, worker queue saturation.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout           ErrorCode = "TIMEOUT"            // Operation timed out
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE" // Remote run service unreachable or failing

	// Permanent errors
	ErrCodeValidation    ErrorCode = "VALIDATION"    // Malformed or invalid input
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"     // Task or run does not exist
	ErrCodeRemoteAuth    ErrorCode = "REMOTE_AUTH"   // Remote service rejected credentials
	ErrCodeConflict      ErrorCode = "CONFLICT"      // Conflicting operation or state
	ErrCodeCanceled      ErrorCode = "CANCELED"      // Operation was canceled
	ErrCodeOrchestration ErrorCode = "ORCHESTRATION" // Invalid local transition or coordination failure

	// Resource errors
	ErrCodeRateLimit ErrorCode = "RATE_LIMITED" // Remote rate limit exceeded
	ErrCodeCapacity  ErrorCode = "CAPACITY"     // Worker pool or queue at capacity

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Persisted data corruption detected
	ErrCodePanic      ErrorCode = "PANIC"      // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	// Transient
	case ErrCodeTimeout, ErrCodeRemoteUnavailable:
		return CategoryTransient

	// Permanent
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeRemoteAuth, ErrCodeConflict,
		ErrCodeCanceled, ErrCodeOrchestration:
		return CategoryPermanent

	// Resource
	case ErrCodeRateLimit, ErrCodeCapacity:
		return CategoryResource

	// Internal
	case ErrCodeInternal, ErrCodeCorruption, ErrCodePanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:           "operation timed out",
	ErrCodeRemoteUnavailable: "remote run service unavailable",
	ErrCodeValidation:        "invalid input provided",
	ErrCodeNotFound:          "task or run not found",
	ErrCodeRemoteAuth:        "remote service rejected credentials",
	ErrCodeConflict:          "conflicting operation",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeOrchestration:     "orchestration failure",
	ErrCodeRateLimit:         "rate limit exceeded",
	ErrCodeCapacity:          "system at capacity",
	ErrCodeInternal:          "internal error",
	ErrCodeCorruption:        "data corruption detected",
	ErrCodePanic:             "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
