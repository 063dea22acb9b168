package anamnesis

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient is an alternate LanguageModelClient (C9) for when the
// Anthropic collaborator is unavailable or explicitly configured off.
type OpenAIClient struct {
	sdk          openai.Client
	defaultModel openai.ChatModel
}

// OpenAIClientOption configures an OpenAIClient.
type OpenAIClientOption func(*openAIClientConfig)

type openAIClientConfig struct {
	baseURL string
}

// WithOpenAIBaseURL points the client at an alternate endpoint, used in
// tests to target an httptest server instead of the real API.
func WithOpenAIBaseURL(baseURL string) OpenAIClientOption {
	return func(c *openAIClientConfig) { c.baseURL = baseURL }
}

// NewOpenAIClient constructs a client from an API key.
func NewOpenAIClient(apiKey string, opts ...OpenAIClientOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, newError(KindInvalidInput, "NewOpenAIClient", nil, "missing API key")
	}
	cfg := openAIClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAIClient{
		sdk:          openai.NewClient(clientOpts...),
		defaultModel: openai.ChatModelGPT4o,
	}, nil
}

// Generate sends a single-turn prompt and returns the assistant's text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	model := c.defaultModel
	if opts.Model != "" {
		model = openai.ChatModel(opts.Model)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", newError(KindModelUnavailable, "OpenAIClient.Generate", err, "chat.completions.new")
	}
	if len(resp.Choices) == 0 {
		return "", newError(KindModelUnavailable, "OpenAIClient.Generate", nil, "empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
