package anamnesis

import (
	"database/sql"
	"encoding/json"
	"time"
)

// kgStore persists the knowledge graph's entities, relationships and
// entity-to-episode links, keyed the way liliang-cn-sqvect/pkg/graph
// models GraphNode/GraphEdge, but as plain relational triples — the
// spec's graph never needs a vector index of its own.
type kgStore struct {
	db *sql.DB
}

func newKGStore(s *Store) (*kgStore, error) {
	k := &kgStore{db: s.DB()}
	if err := k.migrate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *kgStore) migrate() error {
	_, err := k.db.Exec(`
		CREATE TABLE IF NOT EXISTS kg_entities (
			entity_id    TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			entity_type  TEXT NOT NULL DEFAULT 'unknown',
			properties   TEXT NOT NULL DEFAULT '{}',
			community_id INTEGER,
			degree       INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kg_entities_type      ON kg_entities(entity_type);
		CREATE INDEX IF NOT EXISTS idx_kg_entities_community ON kg_entities(community_id);

		CREATE TABLE IF NOT EXISTS kg_relationships (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id         TEXT NOT NULL REFERENCES kg_entities(entity_id),
			target_id         TEXT NOT NULL REFERENCES kg_entities(entity_id),
			relationship_type TEXT NOT NULL,
			weight            REAL NOT NULL DEFAULT 1.0,
			properties        TEXT NOT NULL DEFAULT '{}',
			created_at        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kg_rel_source ON kg_relationships(source_id);
		CREATE INDEX IF NOT EXISTS idx_kg_rel_target ON kg_relationships(target_id);

		CREATE TABLE IF NOT EXISTS kg_entity_documents (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id       TEXT NOT NULL REFERENCES kg_entities(entity_id),
			episode_id      TEXT NOT NULL,
			relevance_score REAL NOT NULL DEFAULT 0.5,
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kg_docs_entity  ON kg_entity_documents(entity_id);
		CREATE INDEX IF NOT EXISTS idx_kg_docs_episode ON kg_entity_documents(episode_id);
	`)
	return err
}

func encodeProps(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeProps(s string) map[string]string {
	if s == "" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]string{}
	}
	return m
}

// UpsertEntity inserts a new entity or overwrites an existing one's name,
// entity_type and properties, bumping updated_at.
func (k *kgStore) UpsertEntity(e Entity, now time.Time) error {
	_, err := k.db.Exec(`
		INSERT INTO kg_entities (entity_id, name, entity_type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			name = excluded.name,
			entity_type = excluded.entity_type,
			properties = excluded.properties,
			updated_at = excluded.updated_at`,
		e.EntityID, e.Name, e.EntityType, encodeProps(e.Properties), now.Unix(), now.Unix(),
	)
	return err
}

func scanEntity(row interface{ Scan(dest ...any) error }) (Entity, error) {
	var e Entity
	var props string
	var communityID sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&e.EntityID, &e.Name, &e.EntityType, &props, &communityID, &e.Degree, &createdAt, &updatedAt); err != nil {
		return e, err
	}
	e.Properties = decodeProps(props)
	if communityID.Valid {
		v := int(communityID.Int64)
		e.CommunityID = &v
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return e, nil
}

const entityCols = `entity_id, name, entity_type, properties, community_id, degree, created_at, updated_at`

// GetEntity fetches a single entity by id.
func (k *kgStore) GetEntity(id string) (Entity, error) {
	row := k.db.QueryRow(`SELECT `+entityCols+` FROM kg_entities WHERE entity_id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return e, newError(KindNotFound, "GetEntity", err, "entity %s", id)
	}
	return e, err
}

// InsertRelationship adds a directed edge and bumps both endpoints' cached degree.
func (k *kgStore) InsertRelationship(r Relationship, now time.Time) error {
	tx, err := k.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`
		INSERT INTO kg_relationships (source_id, target_id, relationship_type, weight, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SourceID, r.TargetID, r.RelationshipType, r.Weight, encodeProps(r.Properties), now.Unix()); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE kg_entities SET degree = degree + 1, updated_at = ? WHERE entity_id IN (?, ?)`,
		now.Unix(), r.SourceID, r.TargetID); err != nil {
		return err
	}
	return tx.Commit()
}

// LinkEntityToEpisode records that an entity was mentioned in an episode.
func (k *kgStore) LinkEntityToEpisode(entityID, episodeID string, relevance float64, now time.Time) error {
	_, err := k.db.Exec(`
		INSERT INTO kg_entity_documents (entity_id, episode_id, relevance_score, created_at)
		VALUES (?, ?, ?, ?)`, entityID, episodeID, relevance, now.Unix())
	return err
}

// SearchEntities performs a case-insensitive substring search ordered by
// cached degree descending.
func (k *kgStore) SearchEntities(substr string, limit int) ([]Entity, error) {
	rows, err := k.db.Query(`
		SELECT `+entityCols+` FROM kg_entities
		WHERE name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY degree DESC LIMIT ?`, substr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

// Neighbors returns the union of in/out edges for id, projected to the
// opposite endpoint and ordered by degree descending.
func (k *kgStore) Neighbors(id string) ([]Entity, error) {
	rows, err := k.db.Query(`
		SELECT `+entityCols+` FROM kg_entities e
		WHERE e.entity_id IN (
			SELECT target_id FROM kg_relationships WHERE source_id = ?
			UNION
			SELECT source_id FROM kg_relationships WHERE target_id = ?
		)
		ORDER BY e.degree DESC`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

// Community returns every entity sharing a community_id, ordered by degree.
func (k *kgStore) Community(cid int) ([]Entity, error) {
	rows, err := k.db.Query(`SELECT `+entityCols+` FROM kg_entities WHERE community_id = ? ORDER BY degree DESC`, cid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

// SetCommunity assigns a community_id to a batch of entities (the result
// of a pluggable community-detection pass — see graph.go).
func (k *kgStore) SetCommunity(entityIDs []string, cid int, now time.Time) error {
	tx, err := k.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`UPDATE kg_entities SET community_id = ?, updated_at = ? WHERE entity_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range entityIDs {
		if _, err := stmt.Exec(cid, now.Unix(), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AdjacentEdges returns every relationship touching id, in either direction.
func (k *kgStore) AdjacentEdges(id string) ([]Relationship, error) {
	rows, err := k.db.Query(`
		SELECT id, source_id, target_id, relationship_type, weight, properties, created_at
		FROM kg_relationships WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		var r Relationship
		var props string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationshipType, &r.Weight, &props, &createdAt); err != nil {
			return nil, err
		}
		r.Properties = decodeProps(props)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEntityRows(rows *sql.Rows) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
