package anamnesis

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderProducesConfiguredDimension(t *testing.T) {
	h := NewHashEmbedder(32)
	vec, err := h.Embed(context.Background(), "hello world", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 32 {
		t.Errorf("expected 32 components, got %d", len(vec))
	}
	if h.Dimension() != 32 {
		t.Errorf("expected Dimension() to report 32, got %d", h.Dimension())
	}
}

func TestHashEmbedderDefaultsDimensionWhenNonPositive(t *testing.T) {
	for _, dim := range []int{0, -5} {
		h := NewHashEmbedder(dim)
		if h.Dimension() != 768 {
			t.Errorf("NewHashEmbedder(%d).Dimension() = %d, want 768", dim, h.Dimension())
		}
	}
}

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := h.Embed(ctx, "the quick brown fox", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Embed(ctx, "the quick brown fox", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical text to embed identically, component %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedderIsUnitNormalized(t *testing.T) {
	h := NewHashEmbedder(64)
	vec, err := h.Embed(context.Background(), "some reasonably long sentence with several distinct words", "")
	if err != nil {
		t.Fatal(err)
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected an L2-normalized vector (norm 1.0), got %v", norm)
	}
}

func TestHashEmbedderEmptyTextIsZeroVector(t *testing.T) {
	h := NewHashEmbedder(16)
	vec, err := h.Embed(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Errorf("expected the zero vector for empty input, component %d = %v", i, v)
		}
	}
}

func TestHashEmbedderModeDescriptionReportsDegraded(t *testing.T) {
	h := NewHashEmbedder(16)
	if h.ModeDescription() == "" {
		t.Error("expected a non-empty mode description")
	}
}
