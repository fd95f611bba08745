package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	engerrors "github.com/taskloop/taskloop/errors"
)

// OpenRouterBaseURL is the default OpenRouter API endpoint.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterBackend sends requests to OpenRouter or any other
// OpenAI-compatible aggregator endpoint over plain HTTP. Model names
// keep their provider prefix ("anthropic/claude-3-5-sonnet") since the
// aggregator does its own routing.
type OpenRouterBackend struct {
	apiKey    string
	baseURL   string
	maxTokens int
	name      string
	retry     RetryConfig
	client    *http.Client
}

// OpenRouterConfig holds configuration for the aggregator backend.
type OpenRouterConfig struct {
	APIKey    string
	BaseURL   string // Defaults to OpenRouterBaseURL
	MaxTokens int
	Name      string // For logging/identification, defaults to "openrouter"
	Retry     RetryConfig
	Timeout   time.Duration // Per-request HTTP timeout, defaults to 5m
}

var _ Backend = (*OpenRouterBackend)(nil)

// NewOpenRouterBackend creates an aggregator backend.
func NewOpenRouterBackend(cfg OpenRouterConfig) (*OpenRouterBackend, error) {
	if cfg.APIKey == "" {
		return nil, engerrors.NoCredentials("api_key is required for openrouter",
			engerrors.WithProvider("openrouter"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &OpenRouterBackend{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		maxTokens: maxTokens,
		name:      cfg.Name,
		retry:     cfg.Retry,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Name implements the Backend interface.
func (b *OpenRouterBackend) Name() string {
	return b.name
}

// OpenAI-compatible request/response types

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate implements the Backend interface.
func (b *OpenRouterBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, engerrors.Validation("model is required",
			engerrors.WithProvider(b.name))
	}

	messages := make([]oaiMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: req.Content})

	maxTokens := b.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	oaiReq := oaiRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	return callWithRetry(ctx, b.retry, b.name, func() (*Response, error) {
		return b.doRequest(ctx, oaiReq)
	})
}

// doRequest makes one HTTP round trip and classifies failures.
func (b *OpenRouterBackend) doRequest(ctx context.Context, req oaiRequest) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, engerrors.Wrap(err, "failed to marshal request",
			engerrors.WithProvider(b.name))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, engerrors.Wrap(err, "failed to create request",
			engerrors.WithProvider(b.name))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, engerrors.Wrap(err, b.name+" request failed",
			engerrors.WithProvider(b.name))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, engerrors.Wrap(err, "failed to read response",
			engerrors.WithProvider(b.name))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyStatus(b.name, httpResp.StatusCode, string(respBody))
	}

	var resp oaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, engerrors.Wrap(err, "failed to parse response",
			engerrors.WithProvider(b.name))
	}
	if resp.Error != nil {
		return nil, engerrors.Backend("API error: "+resp.Error.Message,
			engerrors.WithProvider(b.name),
			engerrors.WithRetryable(false))
	}

	result := &Response{
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.StopReason = resp.Choices[0].FinishReason
	}
	return result, nil
}
