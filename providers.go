package anamnesis

import "context"

// EmbeddingProvider generates vector embeddings from text (C1). Built-in
// implementations: GenAIEmbedder (Gemini, primary), OpenAIEmbedder
// (alternate), HashEmbedder (fallback — see embed_hash.go).
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	Dimension() int
}

// DegradedProvider is implemented by EmbeddingProvider adapters that
// operate in a reduced-accuracy mode, so callers can log it per §4.11.
type DegradedProvider interface {
	ModeDescription() string
}
