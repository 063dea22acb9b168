package anamnesis

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is the primary LanguageModelClient (C9), wrapping the
// real Anthropic Messages API the way the example pack's Chat client
// wraps it, but reduced to the core's narrow prompt-in/text-out contract.
type AnthropicClient struct {
	sdk          anthropic.Client
	defaultModel string
}

// AnthropicClientOption configures an AnthropicClient.
type AnthropicClientOption func(*anthropicClientConfig)

type anthropicClientConfig struct {
	baseURL string
}

// WithAnthropicBaseURL points the client at an alternate endpoint, used
// in tests to target an httptest server instead of the real API.
func WithAnthropicBaseURL(baseURL string) AnthropicClientOption {
	return func(c *anthropicClientConfig) { c.baseURL = baseURL }
}

// NewAnthropicClient constructs a client from an API key.
func NewAnthropicClient(apiKey string, opts ...AnthropicClientOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, newError(KindInvalidInput, "NewAnthropicClient", nil, "missing API key")
	}
	cfg := anthropicClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &AnthropicClient{
		sdk:          anthropic.NewClient(clientOpts...),
		defaultModel: string(anthropic.ModelClaudeSonnet4_5),
	}, nil
}

// Generate sends a single-turn prompt and returns the assistant's text.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", newError(KindModelUnavailable, "AnthropicClient.Generate", err, "messages.new")
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", newError(KindModelUnavailable, "AnthropicClient.Generate", nil, "empty response")
	}
	return out, nil
}
