package anamnesis

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is the degrade-mode EmbeddingProvider from spec §4.11: a
// TF-IDF-style feature-hashed bag of words, unit-normalized, with no
// external dependency. It is never chosen as the primary provider — it
// exists so retrieval keeps working (with reduced accuracy, logged via
// ModeDescription) when no API key is configured or no real provider can
// be constructed. A real provider whose Embed call fails is not replaced by
// it: retrieval then falls back to recent episodes, and EpisodicMemory.Store
// returns the error.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder builds a fallback embedder producing vectors of dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &HashEmbedder{dimension: dim}
}

// Embed hashes each token into a bucket, accumulates a log-scaled term
// weight, and L2-normalizes the result so cosine similarity behaves.
func (h *HashEmbedder) Embed(_ context.Context, text string, _ string) ([]float32, error) {
	vec := make([]float64, h.dimension)
	tokens := strings.Fields(strings.ToLower(text))
	counts := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		hasher := fnv.New32a()
		hasher.Write([]byte(tok))
		bucket := hasher.Sum32() % uint32(h.dimension)
		counts[bucket]++
	}
	for bucket, count := range counts {
		vec[bucket] = 1 + math.Log(float64(count))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dimension)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// Dimension returns the configured output width.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// ModeDescription reports that this provider is a degraded fallback, so
// callers can log reduced-accuracy operation per spec §4.11.
func (h *HashEmbedder) ModeDescription() string {
	return "lexical-hash fallback (no external embedding model configured)"
}
