package anamnesis

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection for relational persistence: episodic
// memory, decay configuration, and the consolidation audit log. Knowledge
// graph, wiki and persona tables live in the same database: kg_store.go,
// wiki_store.go and persona_store.go create them on this *sql.DB when their
// components are constructed, so the whole schema lives behind one
// connection and one writer.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database and runs its own
// migrations.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, newError(KindStorageUnavailable, "NewStore", err, "mkdir %s", filepath.Dir(path))
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, newError(KindStorageUnavailable, "NewStore", err, "open db")
	}

	// Single connection avoids write contention; all writers in this
	// package serialize through the one *sql.DB handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, newError(KindStorageUnavailable, "NewStore", err, "migrate")
	}
	return s, nil
}

func (s *Store) migrate() error {
	s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)

	var version int
	s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS episodic_memory (
				id                TEXT PRIMARY KEY,
				user_message      TEXT NOT NULL,
				ai_response       TEXT NOT NULL,
				satisfaction      REAL NOT NULL DEFAULT 0.5,
				created_at        INTEGER NOT NULL,
				access_count      INTEGER NOT NULL DEFAULT 0,
				importance        REAL NOT NULL DEFAULT 0,
				embedding_ref     TEXT NOT NULL DEFAULT '',
				retention_score   REAL NOT NULL DEFAULT 1.0,
				last_decay_update INTEGER NOT NULL DEFAULT 0,
				is_pinned         INTEGER NOT NULL DEFAULT 0,
				decay_strength    REAL NOT NULL DEFAULT 20.0,
				memory_type       TEXT NOT NULL DEFAULT 'conversational',
				is_consolidated   INTEGER NOT NULL DEFAULT 0,
				source_count      INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_episodic_retention  ON episodic_memory(retention_score);
			CREATE INDEX IF NOT EXISTS idx_episodic_decay_upd  ON episodic_memory(last_decay_update);
			CREATE INDEX IF NOT EXISTS idx_episodic_pinned     ON episodic_memory(is_pinned);
			CREATE INDEX IF NOT EXISTS idx_episodic_type       ON episodic_memory(memory_type);
			CREATE INDEX IF NOT EXISTS idx_episodic_created    ON episodic_memory(created_at);

			CREATE TABLE IF NOT EXISTS memory_decay_config (
				id                         INTEGER PRIMARY KEY CHECK (id = 1),
				base_strength              REAL NOT NULL,
				min_retention              REAL NOT NULL,
				max_retention              REAL NOT NULL,
				decay_worker_interval_hours INTEGER NOT NULL,
				last_decay_run             INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS memory_consolidations (
				id                     INTEGER PRIMARY KEY AUTOINCREMENT,
				source_memory_ids      TEXT NOT NULL,
				consolidated_memory_id TEXT NOT NULL REFERENCES episodic_memory(id),
				memories_merged        INTEGER NOT NULL,
				space_saved            INTEGER NOT NULL,
				created_at             INTEGER NOT NULL
			);

			PRAGMA foreign_keys = ON;
		`); err != nil {
			return err
		}
		s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	}

	if version < 2 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS react_tool_invocations (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				tool_name  TEXT NOT NULL,
				args_json  TEXT NOT NULL,
				result     TEXT NOT NULL DEFAULT '',
				succeeded  INTEGER NOT NULL,
				latency_ms INTEGER NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_react_invocations_tool ON react_tool_invocations(tool_name);
		`); err != nil {
			return err
		}
		s.db.Exec(`INSERT INTO schema_version (version) VALUES (2)`)
	}

	return nil
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- DecayConfig persistence ---

// LoadDecayConfig reads the singleton row, seeding it with defaults on
// first use.
func (s *Store) LoadDecayConfig(defaults DecayConfig) (DecayConfig, error) {
	var c DecayConfig
	var base float64
	var lastRun int64
	var intervalHours int64
	err := s.db.QueryRow(`
		SELECT base_strength, min_retention, max_retention, decay_worker_interval_hours, last_decay_run
		FROM memory_decay_config WHERE id = 1`).Scan(&base, &c.MinRetention, &c.MaxRetention, &intervalHours, &lastRun)
	if err == sql.ErrNoRows {
		c = defaults
		_, err = s.db.Exec(`
			INSERT INTO memory_decay_config (id, base_strength, min_retention, max_retention, decay_worker_interval_hours, last_decay_run)
			VALUES (1, ?, ?, ?, ?, 0)`,
			20.0, c.MinRetention, c.MaxRetention, int64(c.DecayWorkerInterval.Hours()))
		return c, err
	}
	if err != nil {
		return c, err
	}
	c.DecayWorkerInterval = time.Duration(intervalHours) * time.Hour
	return c, nil
}

// RecordDecayRun stamps last_decay_run with now.
func (s *Store) RecordDecayRun(now time.Time) error {
	_, err := s.db.Exec(`UPDATE memory_decay_config SET last_decay_run = ? WHERE id = 1`, now.Unix())
	return err
}

// --- Episode CRUD ---

func scanEpisode(row interface {
	Scan(dest ...any) error
}) (Episode, error) {
	var e Episode
	var createdAt, lastDecay int64
	var pinned, consolidated int
	var memType string
	if err := row.Scan(
		&e.ID, &e.UserText, &e.AssistantText, &e.Satisfaction, &createdAt,
		&e.AccessCount, &e.Importance, &e.EmbeddingRef, &e.RetentionScore,
		&lastDecay, &pinned, &e.DecayStrength, &memType, &consolidated, &e.SourceCount,
	); err != nil {
		return e, err
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.LastDecayUpdate = time.Unix(lastDecay, 0).UTC()
	e.IsPinned = pinned != 0
	e.MemoryType = MemoryType(memType)
	e.IsConsolidated = consolidated != 0
	return e, nil
}

const episodeCols = `id, user_message, ai_response, satisfaction, created_at,
	access_count, importance, embedding_ref, retention_score,
	last_decay_update, is_pinned, decay_strength, memory_type, is_consolidated, source_count`

// InsertEpisode persists a new episode row.
func (s *Store) InsertEpisode(e Episode) error {
	_, err := s.db.Exec(`
		INSERT INTO episodic_memory (`+episodeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserText, e.AssistantText, e.Satisfaction, e.CreatedAt.Unix(),
		e.AccessCount, e.Importance, e.EmbeddingRef, e.RetentionScore,
		e.LastDecayUpdate.Unix(), boolToInt(e.IsPinned), e.DecayStrength,
		string(e.MemoryType), boolToInt(e.IsConsolidated), e.SourceCount,
	)
	return err
}

// DeleteEpisode removes an episode row (caller is responsible for also
// removing the vector-store entry).
func (s *Store) DeleteEpisode(id string) error {
	_, err := s.db.Exec(`DELETE FROM episodic_memory WHERE id = ?`, id)
	return err
}

// GetEpisode fetches a single episode by id.
func (s *Store) GetEpisode(id string) (Episode, error) {
	row := s.db.QueryRow(`SELECT `+episodeCols+` FROM episodic_memory WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return e, newError(KindNotFound, "GetEpisode", err, "episode %s", id)
	}
	return e, err
}

// GetRecentEpisodes returns the n most recently created episodes.
func (s *Store) GetRecentEpisodes(n int) ([]Episode, error) {
	rows, err := s.db.Query(`SELECT `+episodeCols+` FROM episodic_memory ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodeRows(rows)
}

// GetEpisodesByIDs loads episodes for a set of ids, preserving no
// particular order (callers re-sort as needed).
func (s *Store) GetEpisodesByIDs(ids []string) ([]Episode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	placeholders := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		args[i] = id
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	rows, err := s.db.Query(`SELECT `+episodeCols+` FROM episodic_memory WHERE id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodeRows(rows)
}

func scanEpisodeRows(rows *sql.Rows) ([]Episode, error) {
	var out []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncrementAccess bumps access_count for a batch of episode ids. Used by
// retrieval whenever episodes are surfaced to a caller (never for
// distractors, per the RAFT contract).
func (s *Store) IncrementAccess(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`UPDATE episodic_memory SET access_count = access_count + 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateRetention writes a recomputed retention_score/last_decay_update
// for one episode.
func (s *Store) UpdateRetention(id string, retention float64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE episodic_memory SET retention_score = ?, last_decay_update = ? WHERE id = ?`,
		retention, at.Unix(), id)
	return err
}

// SetPinned toggles is_pinned; when pinning, also freezes retention at 1.0.
func (s *Store) SetPinned(id string, pinned bool, at time.Time) error {
	if pinned {
		_, err := s.db.Exec(`UPDATE episodic_memory SET is_pinned = 1, retention_score = 1.0, last_decay_update = ? WHERE id = ?`, at.Unix(), id)
		return err
	}
	_, err := s.db.Exec(`UPDATE episodic_memory SET is_pinned = 0 WHERE id = ?`, id)
	return err
}

// AllEpisodesForDecay streams every non-pinned episode's decay inputs.
// Pinned episodes are excluded since their retention is fixed at 1.0.
func (s *Store) AllEpisodesForDecay() ([]Episode, error) {
	rows, err := s.db.Query(`SELECT ` + episodeCols + ` FROM episodic_memory WHERE is_pinned = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodeRows(rows)
}

// CandidatesBelowRetention returns non-pinned, non-consolidated episodes
// with retention_score under threshold, capped at limit rows — used by
// the consolidator (prune uses PruneBelow).
func (s *Store) CandidatesBelowRetention(threshold float64, limit int) ([]Episode, error) {
	rows, err := s.db.Query(`
		SELECT `+episodeCols+` FROM episodic_memory
		WHERE retention_score < ? AND is_pinned = 0 AND is_consolidated = 0
		ORDER BY retention_score ASC LIMIT ?`, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodeRows(rows)
}

// PruneBelow deletes every non-pinned episode with retention_score below
// threshold and returns their ids, so the caller can cascade the delete
// into the vector store.
func (s *Store) PruneBelow(threshold float64) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM episodic_memory WHERE retention_score < ? AND is_pinned = 0`, threshold)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`DELETE FROM episodic_memory WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			stmt.Close()
			return nil, err
		}
	}
	stmt.Close()
	return ids, tx.Commit()
}

// RecordConsolidation writes an audit row for a completed consolidation.
func (s *Store) RecordConsolidation(sourceIDsJSON string, consolidatedID string, merged, spaceSaved int, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_consolidations (source_memory_ids, consolidated_memory_id, memories_merged, space_saved, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sourceIDsJSON, consolidatedID, merged, spaceSaved, at.Unix())
	return err
}

// RecordToolInvocation writes an audit row for one ReAct tool call,
// independent of the transcript returned to the caller.
func (s *Store) RecordToolInvocation(toolName, argsJSON, result string, succeeded bool, latency time.Duration, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO react_tool_invocations (tool_name, args_json, result, succeeded, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		toolName, argsJSON, result, boolToInt(succeeded), latency.Milliseconds(), at.Unix())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DB exposes the underlying connection for components (kg_store.go,
// wiki_store.go, persona_store.go) that migrate and query their own
// tables against the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}
