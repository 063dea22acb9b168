package anamnesis

import (
	"context"
	"testing"
)

func testEpisodic(t *testing.T) (*EpisodicMemory, *Store, VectorStore) {
	t.Helper()
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	embedder := NewHashEmbedder(64)
	m := NewEpisodicMemory(s, vec, embedder, DefaultDecayConfig())
	return m, s, vec
}

func TestEpisodicStoreRoundTrip(t *testing.T) {
	m, s, vec := testEpisodic(t)
	id, err := m.Store(context.Background(), "what's my favorite color", "blue, you told me last week", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a non-empty id")
	}

	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserText != "what's my favorite color" || got.Satisfaction != 0.8 {
		t.Errorf("unexpected episode: %+v", got)
	}
	if got.Importance == 0 {
		t.Errorf("expected Importance to be computed on store, got 0")
	}

	count, err := vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 vector entry, got %d", count)
	}
}

func TestEpisodicStorePreservesExplicitZeroSatisfaction(t *testing.T) {
	m, s, _ := testEpisodic(t)
	id, err := m.Store(context.Background(), "hi", "hello", 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Satisfaction != 0 {
		t.Errorf("expected an explicit 0.0 satisfaction to round-trip, got %.2f", got.Satisfaction)
	}
}

func TestEpisodicGetRecentOrdering(t *testing.T) {
	m, _, _ := testEpisodic(t)
	ctx := context.Background()
	var last string
	for i := 0; i < 3; i++ {
		id, err := m.Store(ctx, "turn", "reply", 0.5)
		if err != nil {
			t.Fatal(err)
		}
		last = id
	}

	recent, err := m.GetRecent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != last {
		t.Errorf("expected most recent episode %s first, got %+v", last, recent)
	}
}

func TestEpisodicIncrementAccess(t *testing.T) {
	m, s, _ := testEpisodic(t)
	id, err := m.Store(context.Background(), "hi", "hello", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.IncrementAccess([]string{id, id, id}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != 3 {
		t.Errorf("expected access_count 3, got %d", got.AccessCount)
	}
}
