package backend

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	engerrors "github.com/taskloop/taskloop/errors"
)

// OpenAIBackend sends requests directly to the OpenAI API using the
// official SDK.
type OpenAIBackend struct {
	client    *openai.Client
	maxTokens int
	retry     RetryConfig
}

// OpenAIConfig holds configuration for the direct OpenAI backend.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // Optional custom endpoint
	MaxTokens int
	Retry     RetryConfig
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a direct OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, engerrors.NoCredentials("api_key is required for openai",
			engerrors.WithProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIBackend{
		client:    &client,
		maxTokens: maxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Name implements the Backend interface.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Generate implements the Backend interface.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, engerrors.Validation("model is required",
			engerrors.WithProvider("openai"))
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Content))

	maxTokens := int64(b.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(req.Model),
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}

	return callWithRetry(ctx, b.retry, "openai", func() (*Response, error) {
		resp, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, classifySDKError(err)
		}
		return convertCompletion(resp), nil
	})
}

// convertCompletion maps the SDK response onto the backend Response.
func convertCompletion(resp *openai.ChatCompletion) *Response {
	result := &Response{
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.StopReason = string(resp.Choices[0].FinishReason)
	}
	return result
}
