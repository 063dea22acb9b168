package anamnesis

import (
	"context"
	"testing"
	"time"
)

func testRetrievalEngine(t *testing.T) (*RetrievalEngine, *EpisodicMemory, *Store) {
	t.Helper()
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	embedder := NewHashEmbedder(64)
	epi := NewEpisodicMemory(s, vec, embedder, DefaultDecayConfig())
	re := NewRetrievalEngine(s, vec, embedder, DefaultDecayConfig(), DefaultRaftConfig(), DefaultRetrievalConfig())
	return re, epi, s
}

func TestRetrievalSemanticIncrementsAccess(t *testing.T) {
	re, epi, s := testRetrievalEngine(t)
	ctx := context.Background()
	id, err := epi.Store(ctx, "favorite programming language", "Go, you said last time", 0.7)
	if err != nil {
		t.Fatal(err)
	}

	results, err := re.Semantic(ctx, "favorite programming language", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Episode.ID != id {
		t.Fatalf("expected to retrieve the stored episode, got %+v", results)
	}

	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != 1 {
		t.Errorf("expected Semantic to increment access_count, got %d", got.AccessCount)
	}
}

func TestRetrievalTemporalWeightedBlendsRetention(t *testing.T) {
	re, epi, _ := testRetrievalEngine(t)
	ctx := context.Background()
	if _, err := epi.Store(ctx, "weather today", "it's sunny", 0.5); err != nil {
		t.Fatal(err)
	}

	results, err := re.TemporalWeighted(ctx, "weather today", 5, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score <= 0 {
		t.Errorf("expected a positive blended score, got %.4f", results[0].Score)
	}
}

func TestRetrievalRaftFilteredFlagsLowConfidenceWhenEmpty(t *testing.T) {
	re, _, _ := testRetrievalEngine(t)
	result, err := re.RaftFiltered(context.Background(), "anything, nothing is stored", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !result.LowConfidence {
		t.Errorf("expected low_confidence with no episodes stored")
	}
	if len(result.Episodes) != 0 {
		t.Errorf("expected no episodes (no distractor pool either), got %+v", result.Episodes)
	}
}

func TestRetrievalRaftFilteredInjectsDistractorsNeverIncrementsTheirAccess(t *testing.T) {
	re, epi, s := testRetrievalEngine(t)
	ctx := context.Background()

	relevantID, err := epi.Store(ctx, "tell me about rust ownership", "rust uses ownership and borrowing", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	var distractorIDs []string
	for i := 0; i < 4; i++ {
		id, err := epi.Store(ctx, "unrelated chatter", "unrelated reply", 0.5)
		if err != nil {
			t.Fatal(err)
		}
		distractorIDs = append(distractorIDs, id)
	}

	result, err := re.RaftFiltered(ctx, "tell me about rust ownership", 1)
	if err != nil {
		t.Fatal(err)
	}

	var sawRelevant, sawDistractor bool
	for _, e := range result.Episodes {
		if e.Episode.ID == relevantID && !e.IsDistractor {
			sawRelevant = true
		}
		if e.IsDistractor {
			sawDistractor = true
			got, err := s.GetEpisode(e.Episode.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.AccessCount != 0 {
				t.Errorf("expected distractor %s to never have access_count incremented, got %d", e.Episode.ID, got.AccessCount)
			}
		}
	}
	if !sawRelevant {
		t.Errorf("expected the relevant episode in the result set: %+v", result.Episodes)
	}
	if !sawDistractor {
		t.Errorf("expected at least one distractor with max_distractors=3 and a larger pool present")
	}
}

func TestRetrievalCascadeFallsBackToRecentWhenNothingMatches(t *testing.T) {
	re, epi, _ := testRetrievalEngine(t)
	ctx := context.Background()
	if _, err := epi.Store(ctx, "some prior turn", "some prior reply", 0.5); err != nil {
		t.Fatal(err)
	}

	result, mode, err := re.Cascade(ctx, "zzz query with no lexical overlap at all", 5, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if mode != "recent" {
		t.Errorf("expected cascade to bottom out at the recent-episodes stage, got mode %q", mode)
	}
	if len(result.Episodes) == 0 {
		t.Errorf("expected the recent-episodes fallback to return the stored episode")
	}
	if !result.LowConfidence {
		t.Errorf("expected low_confidence for a fallback-stage result")
	}
}

func TestRetrievalCascadePrefersRaftWhenRelevant(t *testing.T) {
	re, epi, _ := testRetrievalEngine(t)
	ctx := context.Background()
	id, err := epi.Store(ctx, "what language do I use at work", "you use Go at work", 0.9)
	if err != nil {
		t.Fatal(err)
	}

	result, mode, err := re.Cascade(ctx, "what language do I use at work", 5, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if mode != ModeRaftFiltered {
		t.Errorf("expected a high-overlap query to resolve at the RAFT stage, got mode %q", mode)
	}
	found := false
	for _, e := range result.Episodes {
		if e.Episode.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the matching episode in the RAFT-stage result")
	}
}
