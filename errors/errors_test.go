package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// ============================================================================
// 1. Error creation with different codes/categories
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         ErrorCode
		message      string
		wantCategory ErrorCategory
	}{
		{"timeout", ErrCodeTimeout, "operation timed out", CategoryTransient},
		{"backend", ErrCodeBackend, "bad gateway", CategoryTransient},
		{"validation", ErrCodeValidation, "bad model string", CategoryPermanent},
		{"no_credentials", ErrCodeNoCredentials, "no keys", CategoryPermanent},
		{"rate_limit", ErrCodeRateLimit, "too many requests", CategoryResource},
		{"invalid_transition", ErrCodeInvalidTransition, "bad edge", CategoryPermanent},
		{"internal", ErrCodeInternal, "internal error", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Error() != tt.message {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.message)
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeValidation, "model %q is malformed", "no-slash")
	want := `model "no-slash" is malformed`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(ErrCodeNoCredentials)
	if err.Code() != ErrCodeNoCredentials {
		t.Errorf("Code() = %v, want %v", err.Code(), ErrCodeNoCredentials)
	}
	if err.Error() != "no API keys available" {
		t.Errorf("Error() = %v, want default description", err.Error())
	}
}

// ============================================================================
// 2. Retryable vs non-retryable errors
// ============================================================================

func TestRetryable(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		wantRetry bool
	}{
		{"timeout is retryable", ErrCodeTimeout, true},
		{"rate_limit is retryable", ErrCodeRateLimit, true},
		{"generic backend is retryable", ErrCodeBackend, true},
		{"authentication is not retryable", ErrCodeAuthentication, false},
		{"validation is not retryable", ErrCodeValidation, false},
		{"no_credentials is not retryable", ErrCodeNoCredentials, false},
		{"canceled is not retryable", ErrCodeCanceled, false},
		{"verification_mismatch is not retryable", ErrCodeVerificationMismatch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "test")
			if err.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetry)
			}
		})
	}
}

func TestRetryableOverride(t *testing.T) {
	err := New(ErrCodeTimeout, "timeout", WithRetryable(false))
	if err.Retryable() {
		t.Error("explicit override should win over category default")
	}
}

// ============================================================================
// 3. Wrapping and chain inspection
// ============================================================================

func TestWrapPreservesCode(t *testing.T) {
	inner := RateLimited("429 from backend", WithProvider("openrouter"))
	wrapped := Wrap(inner, "routing request")

	if wrapped.Code() != ErrCodeRateLimit {
		t.Errorf("Code() = %v, want %v", wrapped.Code(), ErrCodeRateLimit)
	}
	if !wrapped.Retryable() {
		t.Error("wrapped rate limit error should stay retryable")
	}
	if wrapped.Provider() != "openrouter" {
		t.Errorf("Provider() = %v, want openrouter", wrapped.Provider())
	}
	if !errors.Is(wrapped, inner) {
		t.Error("errors.Is should find the inner error")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if got := Wrap(context.DeadlineExceeded, "call").Code(); got != ErrCodeTimeout {
		t.Errorf("deadline exceeded wraps to %v, want %v", got, ErrCodeTimeout)
	}
	if got := Wrap(context.Canceled, "call").Code(); got != ErrCodeCanceled {
		t.Errorf("canceled wraps to %v, want %v", got, ErrCodeCanceled)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapUnknownError(t *testing.T) {
	err := Wrap(fmt.Errorf("plain error"), "context")
	if err.Code() != ErrCodeInternal {
		t.Errorf("Code() = %v, want %v", err.Code(), ErrCodeInternal)
	}
}

func TestIsAndCode(t *testing.T) {
	err := Routing("OpenAI", fmt.Errorf("boom"))
	if !Is(err, ErrCodeRouting) {
		t.Error("Is should match the routing code")
	}
	if Code(err) != ErrCodeRouting {
		t.Errorf("Code() = %v, want %v", Code(err), ErrCodeRouting)
	}
	if Code(fmt.Errorf("plain")) != "" {
		t.Error("Code of non-EngineError should be empty")
	}
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(Canceled("shutdown requested")) {
		t.Error("Canceled error should report IsCanceled")
	}
	if !IsCanceled(context.Canceled) {
		t.Error("context.Canceled should report IsCanceled")
	}
	if IsCanceled(Timeout("slow")) {
		t.Error("timeout should not report IsCanceled")
	}
	if IsCanceled(nil) {
		t.Error("nil should not report IsCanceled")
	}
}

func TestCause(t *testing.T) {
	root := fmt.Errorf("root")
	err := Wrap(WrapWithCode(root, ErrCodeBackend, "backend call failed"), "outer")
	if Cause(err) != root {
		t.Errorf("Cause() = %v, want root", Cause(err))
	}
}

// ============================================================================
// 4. Constructor helpers
// ============================================================================

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code ErrorCode
	}{
		{"validation", Validation("bad"), ErrCodeValidation},
		{"no_credentials", NoCredentials("none"), ErrCodeNoCredentials},
		{"authentication", Authentication("denied"), ErrCodeAuthentication},
		{"rate_limited", RateLimited("slow down"), ErrCodeRateLimit},
		{"timeout", Timeout("slow"), ErrCodeTimeout},
		{"backend", Backend("boom"), ErrCodeBackend},
		{"invalid_transition", InvalidTransition("Done", "In progress"), ErrCodeInvalidTransition},
		{"verification", VerificationMismatch("Done", "In progress"), ErrCodeVerificationMismatch},
		{"scheduler_start", SchedulerStart("thread refused"), ErrCodeSchedulerStart},
		{"canceled", Canceled("shutdown"), ErrCodeCanceled},
		{"internal", Internal("bug"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", tt.err.Code(), tt.code)
			}
		})
	}
}

func TestRoutingMessage(t *testing.T) {
	err := Routing("OpenAI", fmt.Errorf("connection refused"))
	want := "OpenAI routing failed: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestMetadataCopy(t *testing.T) {
	err := New(ErrCodeBackend, "boom", WithMetadata("stage", "generate"))
	m := err.Metadata()
	m["stage"] = "mutated"
	if err.Metadata()["stage"] != "generate" {
		t.Error("Metadata() must return a copy")
	}
}
