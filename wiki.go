package anamnesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// extractedFact mirrors the JSON shape the language model is prompted to
// emit: {"statement","entity","category","confidence"}.
type extractedFact struct {
	Statement  string  `json:"statement"`
	Entity     string  `json:"entity"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

const factExtractionPrompt = `Extract discrete factual statements about the user or their world from this conversation turn, as a JSON array: [{"statement": "...", "entity": "...", "category": "preference|knowledge|task|definition|instruction|other", "confidence": 0.0-1.0}]. Only include facts with reasonable confidence. Respond with only the JSON array.

User: %s
Assistant: %s`

// SemanticWiki extracts, deduplicates, and indexes discrete facts from
// conversation turns (C10).
type SemanticWiki struct {
	store *wikiStore
	embed EmbeddingProvider
	llm   LanguageModelClient
	cfg   WikiConfig
}

// NewSemanticWiki opens the wiki's tables and wires its collaborators.
func NewSemanticWiki(store *Store, embed EmbeddingProvider, llm LanguageModelClient, cfg WikiConfig) (*SemanticWiki, error) {
	ws, err := newWikiStore(store)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "NewSemanticWiki", err, "migrate")
	}
	return &SemanticWiki{store: ws, embed: embed, llm: llm, cfg: cfg}, nil
}

// LearnFromTurn extracts candidate facts from one conversation turn,
// drops those below min_confidence, caps at max_facts_per_turn, and
// writes every fact surviving dedup against the existing corpus. A nil
// llm or a model failure is a no-op: fact learning augments the wiki
// opportunistically and must never block episode storage.
func (w *SemanticWiki) LearnFromTurn(ctx context.Context, conversationID, messageID, userText, assistantText string) ([]Fact, error) {
	if w.llm == nil {
		return nil, nil
	}

	candidates, err := w.extractFacts(ctx, userText, assistantText)
	if err != nil {
		return nil, nil
	}

	var kept []extractedFact
	for _, c := range candidates {
		if c.Confidence >= w.cfg.MinConfidence {
			kept = append(kept, c)
		}
	}
	if len(kept) > w.cfg.MaxFactsPerTurn {
		kept = kept[:w.cfg.MaxFactsPerTurn]
	}

	existingFacts, existingVecs, err := w.store.AllFactsWithEmbeddings()
	if err != nil {
		return nil, newError(KindStorageUnavailable, "SemanticWiki.LearnFromTurn", err, "load existing facts")
	}

	var written []Fact
	now := time.Now()
	for _, c := range kept {
		embedding, err := w.embed.Embed(ctx, c.Statement, "RETRIEVAL_DOCUMENT")
		if err != nil {
			continue
		}
		if w.isDuplicate(embedding, existingVecs) {
			continue
		}

		f := Fact{
			ID:                   uuid.NewString(),
			Statement:            c.Statement,
			Entity:               c.Entity,
			Category:             FactCategory(c.Category),
			Confidence:           c.Confidence,
			SourceConversationID: conversationID,
			SourceMessageID:      messageID,
			LearnedAt:            now,
		}
		if err := w.store.InsertFact(f, embedding); err != nil {
			continue
		}
		written = append(written, f)
		existingFacts = append(existingFacts, f)
		existingVecs = append(existingVecs, embedding)
	}
	return written, nil
}

// isDuplicate reports whether candidate's cosine similarity to any
// existing fact embedding meets or exceeds fact_dedup_threshold.
func (w *SemanticWiki) isDuplicate(candidate []float32, existing [][]float32) bool {
	for _, v := range existing {
		if CosineSimilarity(candidate, v) >= w.cfg.FactDedupThreshold {
			return true
		}
	}
	return false
}

// ForEntity returns every fact about entity, ordered confidence desc then
// recency desc.
func (w *SemanticWiki) ForEntity(entity string) ([]Fact, error) {
	facts, err := w.store.FactsByEntity(entity)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "SemanticWiki.ForEntity", err, "entity %s", entity)
	}
	return facts, nil
}

// Count returns the total number of stored facts.
func (w *SemanticWiki) Count() (int, error) {
	return w.store.Count()
}

func (w *SemanticWiki) extractFacts(ctx context.Context, userText, assistantText string) ([]extractedFact, error) {
	prompt := fmt.Sprintf(factExtractionPrompt, userText, assistantText)
	reply, err := w.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 500, Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	raw, ok := ExtractJSON(reply)
	if !ok {
		return nil, newError(KindInvalidInput, "SemanticWiki.extractFacts", nil, "no JSON in model reply")
	}
	var facts []extractedFact
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		return nil, newError(KindInvalidInput, "SemanticWiki.extractFacts", err, "unmarshal facts")
	}
	return facts, nil
}
