package errors

import (
	"fmt"
	"time"
)

// EngineError is the interface for all structured errors in taskloop.
// It extends the standard error interface with context for retry and
// circuit-breaker decisions.
type EngineError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of EngineError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use default based on category
	timestamp time.Time
	taskID    string // related task, if applicable
	provider  string // related provider, if applicable
}

var _ EngineError = (*Error)(nil)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return make(map[string]string)
	}
	// Return a copy to prevent modification
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// TaskID returns the related task ID, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

// Provider returns the related provider name, if set.
func (e *Error) Provider() string {
	return e.provider
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// WithProvider sets the related provider name.
func WithProvider(provider string) Option {
	return func(e *Error) {
		e.provider = provider
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// Validation creates a model validation error.
func Validation(message string, opts ...Option) *Error {
	return New(ErrCodeValidation, message, opts...)
}

// NoCredentials creates an error for requests with no usable API key.
func NoCredentials(message string, opts ...Option) *Error {
	return New(ErrCodeNoCredentials, message, opts...)
}

// Authentication creates a backend authentication error.
func Authentication(message string, opts ...Option) *Error {
	return New(ErrCodeAuthentication, message, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(ErrCodeTimeout, message, opts...)
}

// Backend creates a generic backend error.
func Backend(message string, opts ...Option) *Error {
	return New(ErrCodeBackend, message, opts...)
}

// Routing creates a routing error wrapping a backend failure with the
// stage that failed.
func Routing(stage string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithCause(cause)}, opts...)
	return New(ErrCodeRouting, fmt.Sprintf("%s routing failed", stage), opts...)
}

// InvalidTransition creates an error for a disallowed status edge.
func InvalidTransition(from, to string, opts ...Option) *Error {
	return New(ErrCodeInvalidTransition,
		fmt.Sprintf("invalid transition: %s -> %s", from, to), opts...)
}

// VerificationMismatch creates an error for a status write whose
// follow-up read disagrees with what was written.
func VerificationMismatch(expected, actual string, opts ...Option) *Error {
	return New(ErrCodeVerificationMismatch,
		fmt.Sprintf("status update failed: expected %q, got %q", expected, actual), opts...)
}

// SchedulerStart creates a scheduler startup error.
func SchedulerStart(message string, opts ...Option) *Error {
	return New(ErrCodeSchedulerStart, message, opts...)
}

// Canceled creates a cancellation error. Cancellation is a deliberate
// shutdown outcome, distinct from a service fault.
func Canceled(message string, opts ...Option) *Error {
	return New(ErrCodeCanceled, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
