package backend

import (
	"fmt"
	"net/http"
	"strings"

	engerrors "github.com/taskloop/taskloop/errors"
)

// classifySDKError maps an SDK error onto a typed engine error so the
// retry loop and the scheduler's breaker see consistent categories.
func classifySDKError(err error) error {
	if err == nil {
		return nil
	}
	if engerrors.AsEngineError(err) != nil {
		return err
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case isAuthMessage(errStr):
		return engerrors.Authentication("authentication rejected",
			engerrors.WithProvider("openai"), engerrors.WithCause(err))
	case isBillingMessage(errStr):
		return engerrors.Backend("billing/payment error",
			engerrors.WithProvider("openai"), engerrors.WithCause(err),
			engerrors.WithRetryable(false))
	case isRateLimitMessage(errStr):
		return engerrors.RateLimited("rate limit exceeded",
			engerrors.WithProvider("openai"), engerrors.WithCause(err))
	case isServerMessage(errStr):
		return engerrors.Backend("transient server error",
			engerrors.WithProvider("openai"), engerrors.WithCause(err))
	default:
		return engerrors.Wrap(err, "openai request failed",
			engerrors.WithProvider("openai"))
	}
}

// classifyStatus maps an HTTP status code onto a typed engine error.
func classifyStatus(provider string, status int, body string) error {
	opts := []engerrors.Option{
		engerrors.WithProvider(provider),
		engerrors.WithMetadata("body", truncateBody(body)),
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return engerrors.Authentication("authentication rejected", opts...)
	case status == http.StatusTooManyRequests:
		return engerrors.RateLimited("rate limit exceeded", opts...)
	case status == http.StatusPaymentRequired:
		return engerrors.Backend("payment required",
			append(opts, engerrors.WithRetryable(false))...)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return engerrors.Timeout("request timed out", opts...)
	case status >= 500:
		return engerrors.Backend(fmt.Sprintf("server error (status %d)", status), opts...)
	default:
		return engerrors.New(engerrors.ErrCodeBackend, "unexpected status",
			append(opts,
				engerrors.WithRetryable(false),
				engerrors.WithMetadata("status", http.StatusText(status)))...)
	}
}

func truncateBody(body string) string {
	const limit = 200
	if len(body) > limit {
		return body[:limit]
	}
	return body
}

func isAuthMessage(s string) bool {
	return strings.Contains(s, "401") ||
		strings.Contains(s, "403") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "invalid api key") ||
		strings.Contains(s, "incorrect api key") ||
		strings.Contains(s, "forbidden")
}

func isRateLimitMessage(s string) bool {
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "overloaded") ||
		strings.Contains(s, "capacity")
}

func isServerMessage(s string) bool {
	return strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "504") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "bad gateway") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "gateway timeout") ||
		strings.Contains(s, "temporarily unavailable")
}

func isBillingMessage(s string) bool {
	return strings.Contains(s, "billing") ||
		strings.Contains(s, "payment") ||
		strings.Contains(s, "credits") ||
		strings.Contains(s, "quota exceeded") ||
		strings.Contains(s, "insufficient") ||
		strings.Contains(s, "402") ||
		strings.Contains(s, "subscription")
}
