//go:build !sqlite_vec || !cgo

package anamnesis

// NewANNVectorStore requires building with `-tags sqlite_vec` and cgo
// enabled (see vectorstore_ann.go); without it, companion.go falls back
// to the relational vector store automatically.
func NewANNVectorStore(dbPath string, dim int) (VectorStore, error) {
	return nil, newError(KindStorageUnavailable, "NewANNVectorStore", nil,
		"built without sqlite_vec+cgo support; rebuild with -tags sqlite_vec")
}
