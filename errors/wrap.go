package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an EngineError, it wraps it with the new message while
// preserving its code, category, and retry semantics.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		wrapped := &Error{
			code:      engineErr.code,
			category:  engineErr.category,
			message:   message,
			cause:     err,
			metadata:  engineErr.Metadata(),
			retryable: engineErr.retryable,
			taskID:    engineErr.taskID,
			provider:  engineErr.provider,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Context errors map to the cancellation/timeout codes
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsEngineError attempts to extract an EngineError from an error chain.
// Returns nil if no EngineError is found.
func AsEngineError(err error) EngineError {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Retryable()
	}
	// Default to not retryable for unknown errors
	return false
}

// IsCanceled reports whether the error chain represents a deliberate
// cancellation rather than a service fault. Both the engine's Canceled
// code and the context package's sentinel errors count.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrCodeCanceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not an EngineError.
func Code(err error) ErrorCode {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
// Returns empty string if err is not an EngineError.
func Category(err error) ErrorCategory {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
