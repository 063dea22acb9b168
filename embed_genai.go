package anamnesis

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenAIEmbedder generates vector embeddings via Google's Gemini API. It is
// the primary EmbeddingProvider (C1); task type maps to genai's
// TaskType enum (SEMANTIC_SIMILARITY, RETRIEVAL_QUERY, ...).
type GenAIEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	log       *zap.SugaredLogger
}

// NewGenAIEmbedder constructs a Gemini-backed embedder. dim controls
// OutputDimensionality; pass 0 for the model default.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dim int, log *zap.SugaredLogger) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, newError(KindInvalidInput, "NewGenAIEmbedder", nil, "missing API key")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dim == 0 {
		dim = 768
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, newError(KindModelUnavailable, "NewGenAIEmbedder", err, "create genai client")
	}

	return &GenAIEmbedder{client: client, model: model, dimension: dim, log: log}, nil
}

func int32ptr(i int32) *int32 { return &i }

// Embed produces a unit-scaled embedding for text. taskType is passed
// through as a genai TaskType string (empty defaults to SEMANTIC_SIMILARITY).
func (e *GenAIEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: int32ptr(int32(e.dimension)),
		TaskType:             taskType,
	})
	if err != nil {
		e.log.Warnw("genai embed failed", "err", err, "model", e.model)
		return nil, newError(KindModelUnavailable, "GenAIEmbedder.Embed", err, "embed content")
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, newError(KindModelUnavailable, "GenAIEmbedder.Embed", nil, "empty embedding returned")
	}
	values := result.Embeddings[0].Values
	var norm float64
	for _, v := range values {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return values, nil
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// Dimension returns the configured output width.
func (e *GenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *GenAIEmbedder) String() string {
	return fmt.Sprintf("genai:%s", e.model)
}
