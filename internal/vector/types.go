// Package vector is the semantic side of the engine (spec.md §4.7): an
// embedded HNSW vector store addressed by named collections, an embedding
// provider collaborator interface, and the pipeline that keeps Embeddings
// consistent with a File's Chunks as they're (re)indexed, moved, or
// deleted.
package vector

import "context"

// Kind distinguishes the two embedding request shapes spec.md §4.7 names:
// code chunks being indexed versus a query string being searched. Some
// providers (asymmetric models) embed these differently.
type Kind string

const (
	KindCode  Kind = "code"
	KindQuery Kind = "query"
)

// Provider generates vector embeddings for text (the collaborator
// interface named in spec.md §6.2 "Embedding provider"), narrowed to the
// batch shape the pipeline actually needs.
type Provider interface {
	// Embed returns one vector per text, in order. kind lets an
	// asymmetric embedding model use a different prefix/head for code
	// versus query text.
	Embed(ctx context.Context, texts []string, kind Kind) ([][]float32, error)
	// ModelID identifies the embedding model; stored once per collection
	// and compared against on every EnsureCollection call. Upsert checks
	// only the vector width.
	ModelID() string
	// Dimensions is the vector width the provider produces.
	Dimensions() int
}

// Payload is the metadata stored alongside a vector (spec.md §4.7: "Payload:
// relative_path, start_line, end_line, chunk_hash, model_id, model_dim").
type Payload struct {
	RelativePath string
	StartLine    int
	EndLine      int
	ChunkHash    string
	ModelID      string
	ModelDim     int
}

// Point is one vector plus its payload, addressed by a deterministic ID
// (spec.md §4.7 point 3: derived from repository_id/relative_path/chunk_index).
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is one match returned by Store.Search, score normalized to
// [0,1] (spec.md §4.7).
type SearchResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter restricts Search/Delete to points whose payload satisfies it
// (spec.md §4.7: "delete(collection, filter): removes points by payload
// predicate"). A nil Filter matches everything.
type Filter func(Payload) bool

// ByRelativePath builds a Filter matching points under one file, used for
// the move/delete cases (spec.md §4.7 points 4-5).
func ByRelativePath(relativePath string) Filter {
	return func(p Payload) bool { return p.RelativePath == relativePath }
}

// Store is the vector store's collaborator interface (spec.md §4.7).
type Store interface {
	// EnsureCollection creates collection name if absent, idempotently.
	// An existing collection with a different dim fails with
	// internal/errors.ModelMismatch.
	EnsureCollection(ctx context.Context, name string, dim int, modelID string) error
	// Upsert replaces points by ID within collection, atomically per call.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the k nearest points to query, optionally restricted
	// by filter, highest score first.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)
	// Delete removes every point in collection matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error
	// Get returns one point by ID, used to copy a vector to a new ID
	// without re-embedding (spec.md §4.7 point 4, file move).
	Get(ctx context.Context, collection, id string) (Point, bool, error)
	// CollectionInfo reports the (model_id, dim) a collection was created
	// with, used by get_status (spec.md §6.1).
	CollectionInfo(collection string) (modelID string, dim int, ok bool)
	// Save/Load persist a collection to/from dataDir using an atomic
	// temp-file-then-rename pattern.
	Save(dataDir string) error
	Load(dataDir string) error
	Close() error
}
