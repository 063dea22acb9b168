package anamnesis

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenWiresEveryComponentWithNoAPIKeys(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "companion.db")
	c, err := Open(context.Background(), Config{DBPath: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Episodic == nil || c.Temporal == nil || c.Retrieval == nil || c.Consolidator == nil {
		t.Fatal("expected the core memory components to be wired")
	}
	if c.Graph == nil || c.GraphExtract == nil || c.Wiki == nil || c.Persona == nil {
		t.Fatal("expected the knowledge/persona components to be wired")
	}
	if c.React == nil || c.Planner == nil || c.Goals == nil {
		t.Fatal("expected the agentic components to be wired")
	}
	if _, ok := c.Embedder.(*HashEmbedder); !ok {
		t.Errorf("expected the hash-embedder fallback with no API keys configured, got %T", c.Embedder)
	}
	if c.LLM != nil {
		t.Errorf("expected a nil language model with no API keys configured, got %T", c.LLM)
	}
}

func TestOpenEndToEndRememberAndRecall(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "companion.db")
	c, err := Open(context.Background(), Config{DBPath: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	id, err := c.Episodic.Store(ctx, "what editor do I use", "you use neovim", 0.8)
	if err != nil {
		t.Fatal(err)
	}

	results, err := c.Retrieval.Semantic(ctx, "what editor do I use", 5)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.Episode.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the stored episode to be retrievable, got %+v", results)
	}
}

func TestOpenAppliesConfigDefaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "companion.db")
	c, err := Open(context.Background(), Config{DBPath: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Config.EmbedDimension != 768 {
		t.Errorf("expected default embed dimension 768, got %d", c.Config.EmbedDimension)
	}
	if c.Config.Decay != DefaultDecayConfig() {
		t.Errorf("expected default decay config to be applied, got %+v", c.Config.Decay)
	}
}
