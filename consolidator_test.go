package anamnesis

import (
	"context"
	"testing"
)

func testConsolidator(t *testing.T, cfg ConsolidationConfig) (*MemoryConsolidator, *Store, VectorStore, EmbeddingProvider) {
	t.Helper()
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	embedder := NewHashEmbedder(64)
	c := NewMemoryConsolidator(s, vec, embedder, nil, cfg)
	return c, s, vec, embedder
}

// insertLowRetentionEpisode stores an episode directly (bypassing
// EpisodicMemory so RetentionScore can be forced below threshold) plus its
// vector, mirroring how a decayed episode actually ends up eligible.
func insertLowRetentionEpisode(t *testing.T, s *Store, vec VectorStore, embedder EmbeddingProvider, id, userText, assistantText string) Episode {
	t.Helper()
	e := sampleEpisode(id)
	e.UserText = userText
	e.AssistantText = assistantText
	e.RetentionScore = 0.05
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}
	vecBytes, err := embedder.Embed(context.Background(), userText+"\n"+assistantText, "RETRIEVAL_DOCUMENT")
	if err != nil {
		t.Fatal(err)
	}
	if err := vec.Insert(id, vecBytes, "{}"); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestConsolidatorMergesSimilarCluster(t *testing.T) {
	cfg := DefaultConsolidationConfig()
	cfg.MinClusterSize = 2
	cfg.SimilarityThreshold = 0.3 // hashed bag-of-words similarity is noisier than a real embedder
	c, s, vec, embedder := testConsolidator(t, cfg)

	insertLowRetentionEpisode(t, s, vec, embedder, "ep-1", "my favorite food is pizza", "noted, pizza it is")
	insertLowRetentionEpisode(t, s, vec, embedder, "ep-2", "my favorite food is pizza again", "yes, pizza, I remember")

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.ClustersFormed != 1 {
		t.Errorf("expected 1 cluster formed, got %d", report.ClustersFormed)
	}
	if report.EpisodesMerged != 2 {
		t.Errorf("expected 2 episodes merged, got %d", report.EpisodesMerged)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM episodic_memory WHERE id IN ('ep-1','ep-2')`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected source episodes to be deleted, found %d remaining", count)
	}

	vecCount, err := vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if vecCount != 1 {
		t.Errorf("expected exactly 1 vector entry (the consolidated episode) after delete+insert, got %d", vecCount)
	}
}

func TestConsolidatorKeepsClusterBelowMinSize(t *testing.T) {
	cfg := DefaultConsolidationConfig()
	cfg.MinClusterSize = 5 // no two episodes here will ever reach this
	c, s, vec, embedder := testConsolidator(t, cfg)

	insertLowRetentionEpisode(t, s, vec, embedder, "ep-1", "alpha", "alpha reply")
	insertLowRetentionEpisode(t, s, vec, embedder, "ep-2", "beta", "beta reply")

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.ClustersFormed != 0 {
		t.Errorf("expected no clusters formed, got %d", report.ClustersFormed)
	}
	if report.EpisodesKept != 2 {
		t.Errorf("expected both episodes kept as below min_cluster_size, got %d", report.EpisodesKept)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM episodic_memory`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected both source episodes to survive untouched, got %d rows", count)
	}
}

func TestConsolidatorRunOnEmptyStoreIsNoop(t *testing.T) {
	c, _, _, _ := testConsolidator(t, DefaultConsolidationConfig())
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.ClustersFormed != 0 || report.EpisodesMerged != 0 || report.EpisodesKept != 0 {
		t.Errorf("expected an all-zero report on an empty store, got %+v", report)
	}
}
