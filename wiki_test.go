package anamnesis

import (
	"context"
	"testing"
)

func testWiki(t *testing.T, llm LanguageModelClient) *SemanticWiki {
	t.Helper()
	s := testStore(t)
	w, err := NewSemanticWiki(s, NewHashEmbedder(64), llm, DefaultWikiConfig())
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWikiNilLLMIsNoop(t *testing.T) {
	w := testWiki(t, nil)
	facts, err := w.LearnFromTurn(context.Background(), "conv-1", "msg-1", "I love tea", "good to know")
	if err != nil {
		t.Fatal(err)
	}
	if facts != nil {
		t.Errorf("expected no facts with a nil llm, got %+v", facts)
	}
}

func TestWikiLearnsFactsAboveConfidenceThreshold(t *testing.T) {
	llm := &mockLLM{replies: []string{
		`[{"statement": "user prefers tea over coffee", "entity": "user", "category": "preference", "confidence": 0.9},
		  {"statement": "uncertain guess", "entity": "user", "category": "other", "confidence": 0.1}]`,
	}}
	w := testWiki(t, llm)

	facts, err := w.LearnFromTurn(context.Background(), "conv-1", "msg-1", "I prefer tea over coffee", "noted")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 || facts[0].Statement != "user prefers tea over coffee" {
		t.Errorf("expected only the high-confidence fact to be kept, got %+v", facts)
	}

	count, err := w.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 fact persisted, got %d", count)
	}
}

func TestWikiDedupsSimilarFacts(t *testing.T) {
	llm := &mockLLM{replies: []string{
		`[{"statement": "user likes tea", "entity": "user", "category": "preference", "confidence": 0.9}]`,
		`[{"statement": "user likes tea", "entity": "user", "category": "preference", "confidence": 0.9}]`,
	}}
	w := testWiki(t, llm)
	ctx := context.Background()

	if _, err := w.LearnFromTurn(ctx, "conv-1", "msg-1", "I like tea", "noted"); err != nil {
		t.Fatal(err)
	}
	facts, err := w.LearnFromTurn(ctx, "conv-1", "msg-2", "I like tea", "noted again")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 0 {
		t.Errorf("expected the repeated identical fact to be deduped, got %+v", facts)
	}

	count, err := w.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected only 1 fact after dedup, got %d", count)
	}
}

func TestWikiCapsAtMaxFactsPerTurn(t *testing.T) {
	cfg := DefaultWikiConfig()
	cfg.MaxFactsPerTurn = 1
	s := testStore(t)
	llm := &mockLLM{replies: []string{
		`[{"statement": "fact one", "entity": "user", "category": "other", "confidence": 0.9},
		  {"statement": "fact two", "entity": "user", "category": "other", "confidence": 0.9}]`,
	}}
	w, err := NewSemanticWiki(s, NewHashEmbedder(64), llm, cfg)
	if err != nil {
		t.Fatal(err)
	}

	facts, err := w.LearnFromTurn(context.Background(), "conv-1", "msg-1", "two facts here", "ok")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 {
		t.Errorf("expected max_facts_per_turn=1 to cap output, got %d facts", len(facts))
	}
}

func TestWikiForEntityFiltersByEntity(t *testing.T) {
	llm := &mockLLM{replies: []string{
		`[{"statement": "likes tea", "entity": "alice", "category": "preference", "confidence": 0.9}]`,
		`[{"statement": "likes coffee", "entity": "bob", "category": "preference", "confidence": 0.9}]`,
	}}
	w := testWiki(t, llm)
	ctx := context.Background()
	if _, err := w.LearnFromTurn(ctx, "conv-1", "msg-1", "alice likes tea", "noted"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.LearnFromTurn(ctx, "conv-1", "msg-2", "bob likes coffee", "noted"); err != nil {
		t.Fatal(err)
	}

	facts, err := w.ForEntity("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 || facts[0].Entity != "alice" {
		t.Errorf("expected only alice's fact, got %+v", facts)
	}
}
