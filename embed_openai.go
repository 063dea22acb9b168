package anamnesis

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIEmbedder generates vector embeddings via the OpenAI Embeddings
// API, as an alternate EmbeddingProvider (C1) to GenAIEmbedder.
type OpenAIEmbedder struct {
	client    openai.Client
	model     openai.EmbeddingModel
	dimension int64
	baseURL   string
}

// OpenAIEmbedderOption configures an OpenAIEmbedder.
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithOpenAIEmbedModel overrides the default text-embedding-3-small model.
func WithOpenAIEmbedModel(model openai.EmbeddingModel) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.model = model }
}

// WithOpenAIEmbedDimension overrides the default 1536-wide output.
func WithOpenAIEmbedDimension(dim int) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.dimension = int64(dim) }
}

// WithOpenAIEmbedBaseURL points the client at an alternate endpoint,
// used in tests to target an httptest server instead of the real API.
func WithOpenAIEmbedBaseURL(baseURL string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.baseURL = baseURL }
}

// NewOpenAIEmbedder constructs an embedder backed by the real OpenAI SDK
// client, mirroring the client-construction shape used for chat
// completions elsewhere in the example pack.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIEmbedderOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, newError(KindInvalidInput, "NewOpenAIEmbedder", nil, "missing API key")
	}
	e := &OpenAIEmbedder{
		model:     openai.EmbeddingModelTextEmbedding3Small,
		dimension: 1536,
	}
	for _, opt := range opts {
		opt(e)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = openai.NewClient(clientOpts...)
	return e, nil
}

// Embed generates a vector for text. taskType is accepted for interface
// compatibility but ignored — OpenAI embeddings have no task-specific modes.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text, _ string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          e.model,
		Dimensions:     openai.Int(e.dimension),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, newError(KindModelUnavailable, "OpenAIEmbedder.Embed", err, "embeddings.new")
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, newError(KindModelUnavailable, "OpenAIEmbedder.Embed", nil, "empty embedding returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension returns the configured embedding width.
func (e *OpenAIEmbedder) Dimension() int {
	return int(e.dimension)
}
