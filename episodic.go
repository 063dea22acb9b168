package anamnesis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EpisodicMemory is the only surface that writes Episode records (C4). It
// couples the relational Store's metadata with the VectorStore's
// embeddings and keeps the two in lockstep: a failed vector insert rolls
// back the relational row, so a vector-only record with no metadata can
// never arise.
type EpisodicMemory struct {
	store    *Store
	vec      VectorStore
	embedder EmbeddingProvider
	cfg      DecayConfig
}

// NewEpisodicMemory wires the episodic store to its collaborators.
func NewEpisodicMemory(store *Store, vec VectorStore, embedder EmbeddingProvider, cfg DecayConfig) *EpisodicMemory {
	return &EpisodicMemory{store: store, vec: vec, embedder: embedder, cfg: cfg}
}

// Store persists a completed turn: classifies its memory_type, embeds it,
// indexes the vector, and writes the relational row. Returns the new
// episode id.
func (m *EpisodicMemory) Store(ctx context.Context, userText, assistantText string, satisfaction float64) (string, error) {
	memType := ClassifyMemoryType(userText, assistantText)
	now := time.Now()

	e := Episode{
		ID:              uuid.NewString(),
		UserText:        userText,
		AssistantText:   assistantText,
		Satisfaction:    satisfaction,
		CreatedAt:       now,
		AccessCount:     0,
		RetentionScore:  1.0,
		LastDecayUpdate: now,
		DecayStrength:   DefaultDecayStrength(memType),
		MemoryType:      memType,
	}
	e.Importance = e.ComputeImportance()

	embedding, err := m.embedder.Embed(ctx, userText+"\n"+assistantText, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return "", newError(KindModelUnavailable, "EpisodicMemory.Store", err, "embed turn")
	}
	e.EmbeddingRef = e.ID

	if err := m.store.InsertEpisode(e); err != nil {
		return "", newError(KindStorageUnavailable, "EpisodicMemory.Store", err, "insert episode")
	}
	if err := m.vec.Insert(e.ID, embedding, marshalMetadata(map[string]string{"memory_type": string(memType)})); err != nil {
		// Roll back the relational row: a vector-less record with no
		// metadata is a data-model violation, but a metadata row with no
		// vector is worse — we'd silently lose retrievability forever.
		m.store.DeleteEpisode(e.ID)
		return "", newError(KindStorageUnavailable, "EpisodicMemory.Store", err, "index vector")
	}

	return e.ID, nil
}

// Get fetches a single episode by id.
func (m *EpisodicMemory) Get(id string) (Episode, error) {
	return m.store.GetEpisode(id)
}

// GetRecent returns the n most recently created episodes, newest first.
func (m *EpisodicMemory) GetRecent(n int) ([]Episode, error) {
	return m.store.GetRecentEpisodes(n)
}

// IncrementAccess bumps access_count for a batch of ids — called by the
// Retrieval Engine for every episode it surfaces to a caller, but never
// for RAFT distractors.
func (m *EpisodicMemory) IncrementAccess(ids []string) error {
	return m.store.IncrementAccess(ids)
}
