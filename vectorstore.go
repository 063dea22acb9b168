package anamnesis

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
)

// ScoredID is one ANN search hit: a content id paired with a similarity
// score in a space where higher is closer (implementations may use any
// monotonically increasing similarity; callers only rely on ordering and
// a calibrated threshold, per spec §4.10).
type ScoredID struct {
	ID    string
	Score float64
}

// VectorStore is the required adapter surface over an embedding index,
// content-addressed by id (an episode id or fact id).
type VectorStore interface {
	Insert(id string, embedding []float32, metadataJSON string) error
	Delete(ids []string) error
	Search(queryEmbedding []float32, k int) ([]ScoredID, error)
	Count() (int, error)
	// Compact and CreateIndex are optional; implementations that don't
	// benefit from them (like the relational fallback) are no-ops.
	Compact() error
	CreateIndex(partitions, subvectors int) error
}

// EncodeVector converts a float32 slice to a little-endian byte blob,
// the wire format sqlite-vec and the relational fallback both use.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts a little-endian byte blob back to a float32 slice.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// if either is the zero vector. Vectors of mismatched length compare over
// their shared prefix only.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// relationalVectorStore is the required second C3 implementation: it
// keeps embeddings as little-endian float32 BLOBs (EncodeVector), not JSON,
// in a vector_entries table beside a JSON metadata column, and computes
// cosine per-row on read, grounded on the teacher's vectors table but re-shaped
// to the generic VectorStore surface and capped per spec §4.10.
type relationalVectorStore struct {
	store *Store
}

// NewRelationalVectorStore wires a VectorStore on top of the relational
// store's own connection — no separate database file.
func NewRelationalVectorStore(s *Store) (VectorStore, error) {
	rv := &relationalVectorStore{store: s}
	if _, err := s.DB().Exec(`
		CREATE TABLE IF NOT EXISTS vector_entries (
			id        TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			metadata  TEXT NOT NULL DEFAULT '{}'
		)`); err != nil {
		return nil, newError(KindStorageUnavailable, "NewRelationalVectorStore", err, "migrate")
	}
	return rv, nil
}

func (r *relationalVectorStore) Insert(id string, embedding []float32, metadataJSON string) error {
	if metadataJSON == "" {
		metadataJSON = "{}"
	}
	_, err := r.store.DB().Exec(`
		INSERT INTO vector_entries (id, embedding, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`,
		id, EncodeVector(embedding), metadataJSON)
	return err
}

func (r *relationalVectorStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.store.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`DELETE FROM vector_entries WHERE id = ?`)
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

// relationalSearchCap bounds how many rows are pulled into Go for
// per-row cosine scoring, matching the candidate-cap invariant in §4.2.
const relationalSearchCap = 5000

func (r *relationalVectorStore) Search(queryEmbedding []float32, k int) ([]ScoredID, error) {
	rows, err := r.store.DB().Query(`SELECT id, embedding FROM vector_entries LIMIT ?`, relationalSearchCap)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "relationalVectorStore.Search", err, "query")
	}
	defer rows.Close()

	var scored []ScoredID
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		scored = append(scored, ScoredID{ID: id, Score: CosineSimilarity(queryEmbedding, DecodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (r *relationalVectorStore) Count() (int, error) {
	var n int
	err := r.store.DB().QueryRow(`SELECT COUNT(*) FROM vector_entries`).Scan(&n)
	return n, err
}

func (r *relationalVectorStore) Compact() error { return nil }

func (r *relationalVectorStore) CreateIndex(partitions, subvectors int) error { return nil }

// marshalMetadata is a small helper shared by callers that need a JSON
// metadata blob without importing encoding/json themselves.
func marshalMetadata(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
