// Package errors provides the structured error taxonomy for taskloop.
// It defines the error codes and categories the engine's retry, routing,
// and circuit-breaker logic key off.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (backend hiccups, timeouts)
//   - Permanent: Failures where retry will not help (bad model strings, auth failures)
//   - Resource: Resource exhaustion issues (rate limits)
//   - Internal: Unexpected errors indicating bugs or invariant violations
//
// # Usage
//
// Create a new error:
//
//	err := errors.Timeout("backend call timed out")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "routing request")
//
// Check retry semantics:
//
//	if errors.IsRetryable(err) {
//	    // retry logic
//	}
//
// Cancellation is modeled as its own code so that a deliberate shutdown is
// never mistaken for a service fault:
//
//	if errors.IsCanceled(err) {
//	    // do not feed the circuit breaker
//	}
package errors
