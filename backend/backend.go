// Package backend provides completion backends for task execution.
//
// A Backend sends a single task's content to a provider endpoint and
// returns the generated output. Two implementations are provided: a
// direct OpenAI backend built on the official SDK, and an HTTP backend
// for OpenAI-compatible aggregator APIs such as OpenRouter. Transient
// failures are retried with exponential backoff; authentication and
// billing failures fail fast.
package backend

import (
	"context"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
)

// Request describes a single completion request.
type Request struct {
	Model        string // Provider-local model name, e.g. "gpt-4o-mini"
	Content      string // Task content sent as the user message
	SystemPrompt string // Optional system message
	MaxTokens    int    // 0 uses the backend default
}

// Response holds the completion output and usage counters.
type Response struct {
	Content      string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Backend is the interface implemented by completion backends.
type Backend interface {
	// Generate sends the request and returns the completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend for logging and error metadata.
	Name() string
}

// RetryConfig holds retry settings for backend calls.
type RetryConfig struct {
	MaxRetries  int           // Max retry attempts (default 5)
	InitBackoff time.Duration // Initial backoff (default 1s)
	MaxBackoff  time.Duration // Max backoff duration (default 60s)
}

// Retry configuration defaults.
const (
	defaultMaxRetries  = 5
	defaultInitBackoff = 1 * time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0

	defaultMaxTokens = 4096
)

// effective returns retry settings with defaults filled in.
func (c RetryConfig) effective() (maxRetries int, initBackoff, maxBackoff time.Duration) {
	maxRetries = c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	initBackoff = c.InitBackoff
	if initBackoff <= 0 {
		initBackoff = defaultInitBackoff
	}
	maxBackoff = c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return
}

// callWithRetry runs fn until it succeeds, returns a non-retryable
// error, or the retry budget is exhausted. Backoff sleeps are
// interruptible by ctx.
func callWithRetry(ctx context.Context, retry RetryConfig, provider string, fn func() (*Response, error)) (*Response, error) {
	maxRetries, initBackoff, maxBackoff := retry.effective()
	backoff := initBackoff

	var resp *Response
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = fn()
		if err == nil {
			return resp, nil
		}

		if !engerrors.IsRetryable(err) {
			return nil, err
		}

		if attempt == maxRetries {
			return nil, engerrors.Wrapf(err, "%s request failed after %d retries", provider, maxRetries)
		}

		select {
		case <-ctx.Done():
			return nil, engerrors.Wrap(ctx.Err(), provider+" request aborted",
				engerrors.WithProvider(provider))
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, err
}
