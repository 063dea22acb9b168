package anamnesis

import (
	"math"
	"testing"
)

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.5, 3.25, 0}
	decoded := DecodeVector(EncodeVector(v))
	if len(decoded) != len(v) {
		t.Fatalf("expected %d components, got %d", len(v), len(decoded))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("component %d: expected %v got %v", i, v[i], decoded[i])
		}
	}
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	sim := CosineSimilarity(v, v)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected cosine 1.0 for identical vectors, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(sim) > 1e-9 {
		t.Errorf("expected cosine 0 for orthogonal vectors, got %v", sim)
	}
}

func TestCosineSimilarityZeroVectorIsZero(t *testing.T) {
	sim := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if sim != 0 {
		t.Errorf("expected cosine 0 against the zero vector, got %v", sim)
	}
}

func TestCosineSimilarityMismatchedLengthComparesSharedPrefix(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 1}, []float32{1, 1, 999})
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected cosine 1.0 over the shared prefix, got %v", sim)
	}
}

func TestRelationalVectorStoreInsertSearchDeleteCount(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}

	if err := vec.Insert("a", []float32{1, 0}, ""); err != nil {
		t.Fatal(err)
	}
	if err := vec.Insert("b", []float32{0, 1}, `{"k":"v"}`); err != nil {
		t.Fatal(err)
	}

	count, err := vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 entries, got %d", count)
	}

	hits, err := vec.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("expected 'a' as the closest match, got %+v", hits)
	}

	if err := vec.Delete([]string{"a"}); err != nil {
		t.Fatal(err)
	}
	count, err = vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after delete, got %d", count)
	}
}

func TestRelationalVectorStoreInsertUpsertsOnConflict(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := vec.Insert("a", []float32{1, 0}, ""); err != nil {
		t.Fatal(err)
	}
	if err := vec.Insert("a", []float32{0, 1}, ""); err != nil {
		t.Fatal(err)
	}
	count, err := vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected upsert to keep a single row for id 'a', got %d", count)
	}
	hits, err := vec.Search([]float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || math.Abs(hits[0].Score-1.0) > 1e-9 {
		t.Errorf("expected the updated embedding to be in effect, got %+v", hits)
	}
}
