// Package store is the storage layer (spec.md §4.2): a relational/FTS store
// keyed by repository-relative paths and content hashes, plus the schema
// migration and single-writer transaction machinery that keeps symbols, FTS
// postings and file metadata consistent on every create/move/delete.
package store

import (
	"context"
	"time"
)

// SymbolKind enumerates the symbol kinds named in spec.md §3.
type SymbolKind string

const (
	SymbolFunction    SymbolKind = "function"
	SymbolMethod      SymbolKind = "method"
	SymbolClass       SymbolKind = "class"
	SymbolStruct      SymbolKind = "struct"
	SymbolInterface   SymbolKind = "interface"
	SymbolTrait       SymbolKind = "trait"
	SymbolEnum        SymbolKind = "enum"
	SymbolVariable    SymbolKind = "variable"
	SymbolConstant    SymbolKind = "constant"
	SymbolTypeAlias   SymbolKind = "type_alias"
	SymbolModule      SymbolKind = "module"
	SymbolKindOther   SymbolKind = "other"
	SymbolKindAnyWild SymbolKind = "any" // sentinel for "match any kind" in queries
)

// FTSKind distinguishes the two FTS documents a File owns (spec.md §3 "FTS
// Posting").
type FTSKind string

const (
	FTSCode   FTSKind = "code"
	FTSSymbol FTSKind = "symbol"
)

// Repository is the root entity owning Files (spec.md §3).
type Repository struct {
	ID   string // first git remote normalized, or a stable hash of root
	Root string // absolute path; NOT persisted inside a portable index
}

// File is keyed by (repository_id, relative_path) (spec.md §3).
type File struct {
	ID          int64 // surrogate key, internal to the store
	RepositoryID string
	RelativePath string // forward-slash, POSIX-style, no leading "./"
	ContentHash string // hex SHA-256
	Language    string
	Size        int64
	MtimeNs     int64
	IndexError  string // non-empty when the last parse failed or was demoted
	IndexedAt   time.Time
}

// Symbol is keyed by (file_id, name, kind, start_line) (spec.md §3).
type Symbol struct {
	FileID     int64
	Name       string
	Kind       SymbolKind
	Signature  string
	StartLine  int
	EndLine    int
	StartCol   int
	EndCol     int
	ParentName string
}

// Hit is one result row returned by any query backend (spec.md §4.5.4).
type Hit struct {
	RelativePath string
	Line         int
	EndLine      int
	Snippet      string
	Kind         string
	Signature    string
	Score        float64
	Source       string // symbol | fts_code | fts_symbol | vector | rerank
	Highlights   []Span // byte offsets within Snippet
}

// Span is a half-open [Start, End) byte range within a Hit's snippet.
type Span struct {
	Start int
	End   int
}

// WriteTxn is a handle to the single active write transaction. Readers
// never block on a writer beyond the moment of commit (spec.md §4.2, §5).
type WriteTxn struct {
	id int64
	tx transactor
}

// transactor is the minimal subset of *sql.Tx the store needs; kept as an
// interface so tests can substitute a fake.
type transactor interface {
	Commit() error
	Rollback() error
}

// Store is the storage layer's public contract (spec.md §4.2). All
// mutating operations take an open WriteTxn; read operations are lock-free
// with respect to writers except for the instant of commit.
type Store interface {
	// BeginWrite opens the single write transaction. A second concurrent
	// call blocks until the first commits or aborts (spec.md §5).
	BeginWrite(ctx context.Context) (*WriteTxn, error)
	Commit(txn *WriteTxn) error
	Abort(txn *WriteTxn) error

	// UpsertFile inserts or replaces a File row and, in the same
	// transaction, deletes its existing Symbols and FTS rows so a
	// subsequent InsertSymbols/ReplaceFTSDocument starts from a clean
	// slate (spec.md §4.2).
	UpsertFile(ctx context.Context, txn *WriteTxn, f File) (fileID int64, err error)
	// TouchFile updates a File's (size, mtime_ns) and indexed time without touching its
	// Symbols, FTS documents or Chunks, used by the indexing engine's fast
	// path when content_hash is unchanged (spec.md §4.4 step 4: "update
	// (size, mtime_ns) and skip parsing").
	TouchFile(ctx context.Context, txn *WriteTxn, fileID int64, size, mtimeNs int64) error
	InsertSymbols(ctx context.Context, txn *WriteTxn, fileID int64, symbols []Symbol) error
	ReplaceFTSDocument(ctx context.Context, txn *WriteTxn, fileID int64, text string, kind FTSKind) error
	DeleteFile(ctx context.Context, txn *WriteTxn, repositoryID, relativePath string) error
	RenameFile(ctx context.Context, txn *WriteTxn, repositoryID, oldPath, newPath string) error

	// LookupSymbol implements the exact → case-insensitive → prefix
	// fallback chain of spec.md §4.2 (the dispatcher adds a 4th, BM25,
	// stage on top of this).
	LookupSymbol(ctx context.Context, repositoryID, name string, kind SymbolKind, limit int) ([]Hit, error)
	SearchFTS(ctx context.Context, repositoryID, query string, kind FTSKind, limit int, timeout time.Duration) ([]Hit, error)

	// IterateRepositoryFiles yields every known File for repositoryID, used
	// by the indexing engine's reconciliation pass.
	IterateRepositoryFiles(ctx context.Context, repositoryID string) (FileIterator, error)

	GetFile(ctx context.Context, repositoryID, relativePath string) (*File, bool, error)
	RepositoryStats(ctx context.Context, repositoryID string) (RepositoryStats, error)
	// ListRepositories enumerates every repository_id with at least one
	// indexed File, used by get_status (spec.md §6.1).
	ListRepositories(ctx context.Context) ([]string, error)
	SetState(ctx context.Context, txn *WriteTxn, key, value string) error
	GetState(ctx context.Context, key string) (string, bool, error)

	// ChunkRecords returns the last-known embedding bookkeeping for
	// fileID's chunks, keyed by chunk index, used by internal/vector's
	// pipeline to skip chunks whose hash hasn't changed (spec.md §4.7).
	ChunkRecords(ctx context.Context, fileID int64) (map[int]ChunkRecord, error)
	// ReplaceChunkRecords replaces fileID's chunk bookkeeping wholesale,
	// mirroring UpsertFile's clean-slate-then-rebuild approach to Symbols.
	ReplaceChunkRecords(ctx context.Context, txn *WriteTxn, fileID int64, records []ChunkRecord) error
	// PendingChunks returns up to limit chunks still marked embed_pending,
	// across all repositories, for the background retry sweep.
	PendingChunks(ctx context.Context, limit int) ([]PendingChunk, error)
	// UpdateChunkEmbedding updates one chunk's vector id and pending flag
	// in place, used by the embed_pending sweep so a retry touching a few
	// chunks of a file doesn't need to rewrite that file's whole chunk set.
	UpdateChunkEmbedding(ctx context.Context, txn *WriteTxn, fileID int64, chunkIndex int, vectorID string, pending bool) error

	Close() error
}

// FileIterator is a lazy, finite sequence of Files (spec.md §9: "lazy
// iterators" are modeled as a finite sequence since result sets here are
// bounded by a repository's file count, not infinite).
type FileIterator interface {
	Next() (File, bool, error)
	Close() error
}

// RepositoryStats summarizes one repository for get_status (spec.md §6.1).
type RepositoryStats struct {
	RepositoryID  string
	Files         int
	Symbols       int
	LastIndexedNs int64
}

// ChunkRecord is the embedding bookkeeping row for one Chunk of a File
// (spec.md §4.7): it remembers the hash that was last embedded so a
// re-index can skip unchanged chunks, the deterministic VectorID the
// chunk was upserted under, and whether it's still waiting on a
// provider retry.
type ChunkRecord struct {
	FileID       int64
	ChunkIndex   int
	ChunkHash    string
	StartLine    int
	EndLine      int
	VectorID     string
	EmbedPending bool
}

// PendingChunk augments a ChunkRecord with the (repository, path) needed to
// re-read and re-chunk a file during the embed_pending background sweep
// (spec.md §4.7 "Provider failure").
type PendingChunk struct {
	ChunkRecord
	RepositoryID string
	RelativePath string
}
