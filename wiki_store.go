package anamnesis

import (
	"database/sql"
	"encoding/json"
	"time"
)

// wikiStore persists semantic-wiki facts and their embeddings.
type wikiStore struct {
	db *sql.DB
}

func newWikiStore(s *Store) (*wikiStore, error) {
	w := &wikiStore{db: s.DB()}
	if err := w.migrate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *wikiStore) migrate() error {
	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS wiki_facts (
			id                     TEXT PRIMARY KEY,
			statement              TEXT NOT NULL,
			entity                 TEXT NOT NULL DEFAULT '',
			category               TEXT NOT NULL DEFAULT 'other',
			confidence             REAL NOT NULL DEFAULT 0.5,
			source_conversation_id TEXT NOT NULL DEFAULT '',
			source_message_id      TEXT NOT NULL DEFAULT '',
			learned_at             INTEGER NOT NULL,
			reinforcement_count    INTEGER NOT NULL DEFAULT 0,
			related_facts          TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_wiki_entity ON wiki_facts(entity);

		CREATE TABLE IF NOT EXISTS wiki_fact_embeddings (
			fact_id   TEXT PRIMARY KEY REFERENCES wiki_facts(id) ON DELETE CASCADE,
			embedding TEXT NOT NULL
		);
	`)
	return err
}

const factCols = `id, statement, entity, category, confidence, source_conversation_id,
	source_message_id, learned_at, reinforcement_count, related_facts`

func scanFact(row interface{ Scan(dest ...any) error }) (Fact, error) {
	var f Fact
	var learnedAt int64
	var related string
	var category string
	if err := row.Scan(&f.ID, &f.Statement, &f.Entity, &category, &f.Confidence,
		&f.SourceConversationID, &f.SourceMessageID, &learnedAt, &f.ReinforcementCount, &related); err != nil {
		return f, err
	}
	f.Category = FactCategory(category)
	f.LearnedAt = time.Unix(learnedAt, 0).UTC()
	json.Unmarshal([]byte(related), &f.RelatedFacts)
	return f, nil
}

// InsertFact writes a new fact row plus its embedding.
func (w *wikiStore) InsertFact(f Fact, embedding []float32) error {
	related, _ := json.Marshal(f.RelatedFacts)
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`
		INSERT INTO wiki_facts (`+factCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Statement, f.Entity, string(f.Category), f.Confidence,
		f.SourceConversationID, f.SourceMessageID, f.LearnedAt.Unix(), f.ReinforcementCount, string(related),
	); err != nil {
		return err
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO wiki_fact_embeddings (fact_id, embedding) VALUES (?, ?)`, f.ID, string(embJSON)); err != nil {
		return err
	}
	return tx.Commit()
}

// AllFactsWithEmbeddings loads every fact alongside its embedding, for
// dedup and semantic search. At the wiki's expected scale (thousands of
// facts) this is cheap enough to score in Go, matching the relational
// vector-store fallback used elsewhere in this module.
func (w *wikiStore) AllFactsWithEmbeddings() ([]Fact, [][]float32, error) {
	rows, err := w.db.Query(`
		SELECT f.` + factCols + `, e.embedding
		FROM wiki_facts f JOIN wiki_fact_embeddings e ON e.fact_id = f.id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var facts []Fact
	var vecs [][]float32
	for rows.Next() {
		var f Fact
		var learnedAt int64
		var related, category, embJSON string
		if err := rows.Scan(&f.ID, &f.Statement, &f.Entity, &category, &f.Confidence,
			&f.SourceConversationID, &f.SourceMessageID, &learnedAt, &f.ReinforcementCount, &related, &embJSON); err != nil {
			return nil, nil, err
		}
		f.Category = FactCategory(category)
		f.LearnedAt = time.Unix(learnedAt, 0).UTC()
		json.Unmarshal([]byte(related), &f.RelatedFacts)
		var vec []float32
		json.Unmarshal([]byte(embJSON), &vec)
		facts = append(facts, f)
		vecs = append(vecs, vec)
	}
	return facts, vecs, rows.Err()
}

// FactsByEntity returns facts for an entity ordered by (confidence DESC, learned_at DESC).
func (w *wikiStore) FactsByEntity(entity string) ([]Fact, error) {
	rows, err := w.db.Query(`
		SELECT `+factCols+` FROM wiki_facts
		WHERE entity = ?
		ORDER BY confidence DESC, learned_at DESC`, entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Count returns the total number of stored facts (used by tests checking
// dedup left the row count unchanged).
func (w *wikiStore) Count() (int, error) {
	var n int
	err := w.db.QueryRow(`SELECT COUNT(*) FROM wiki_facts`).Scan(&n)
	return n, err
}
