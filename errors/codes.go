package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: backend timeouts, temporary service unavailability.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid model strings, authentication failures, disallowed
	// status transitions.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: backend rate limiting.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or invariant violations.
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

// Error codes for the engine's failure taxonomy.
const (
	// Model parsing and validation
	ErrCodeValidation ErrorCode = "VALIDATION" // Malformed model string

	// Credentials and routing
	ErrCodeNoCredentials ErrorCode = "NO_CREDENTIALS" // No usable API key for any route
	ErrCodeRouting       ErrorCode = "ROUTING"        // Backend failure with routing context

	// Backend call failures
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION" // Backend rejected the credential
	ErrCodeRateLimit      ErrorCode = "RATE_LIMITED"   // Backend rate limit exceeded
	ErrCodeTimeout        ErrorCode = "TIMEOUT"        // Backend call timed out
	ErrCodeBackend        ErrorCode = "BACKEND"        // Generic backend failure

	// Status transitions
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"    // Edge not in the allow-list
	ErrCodeVerificationMismatch ErrorCode = "VERIFICATION_MISMATCH" // Post-write read disagrees with the write

	// Scheduler lifecycle
	ErrCodeSchedulerStart ErrorCode = "SCHEDULER_START" // Scheduler failed to launch

	// Cancellation (deliberate shutdown, never a service fault)
	ErrCodeCanceled ErrorCode = "CANCELED"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeBackend:
		return CategoryTransient

	case ErrCodeValidation, ErrCodeNoCredentials, ErrCodeAuthentication,
		ErrCodeInvalidTransition, ErrCodeVerificationMismatch,
		ErrCodeSchedulerStart, ErrCodeCanceled, ErrCodeRouting:
		return CategoryPermanent

	case ErrCodeRateLimit:
		return CategoryResource

	case ErrCodeInternal:
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
	ErrCodeValidation:           "model string validation failed",
	ErrCodeNoCredentials:        "no API keys available",
	ErrCodeRouting:              "request routing failed",
	ErrCodeAuthentication:       "backend authentication failed",
	ErrCodeRateLimit:            "rate limit exceeded",
	ErrCodeTimeout:              "operation timed out",
	ErrCodeBackend:              "backend request failed",
	ErrCodeInvalidTransition:    "status transition not allowed",
	ErrCodeVerificationMismatch: "status write verification failed",
	ErrCodeSchedulerStart:       "scheduler failed to start",
	ErrCodeCanceled:             "operation canceled",
	ErrCodeInternal:             "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
