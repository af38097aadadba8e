// Package facade exposes the five tool operations of spec.md §6.1
// (symbol_lookup, search_code, get_status, list_plugins, reindex) as a
// thin, transport-agnostic surface that a JSON-RPC-style binding can wrap
// directly. It owns no policy of its own: routing, fallback and fusion
// live in internal/dispatcher; indexing lives in internal/index. The
// façade's job is argument validation, default-filling and shaping
// responses into the flat structs spec.md §6.1 names.
package facade

import (
	"time"

	"github.com/brindle-dev/codalex/internal/dispatcher"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/internal/vector"
)

// DefaultSearchLimit and DefaultSearchTimeout mirror dispatcher's own
// defaults; the façade fills them in before a request reaches the
// dispatcher so every caller sees the same effective defaults regardless
// of transport.
const (
	DefaultSearchLimit   = dispatcher.DefaultLimit
	DefaultSearchTimeout = dispatcher.DefaultTimeout
)

// SymbolLookupResult is the symbol_lookup response shape (spec.md §6.1.1).
type SymbolLookupResult struct {
	Hits    []store.Hit
	Partial bool
}

// SearchCodeResult is the search_code response shape (spec.md §6.1.2).
type SearchCodeResult struct {
	Hits     []store.Hit
	Degraded bool
	Partial  bool
}

// RepositoryStatus is one repository's entry in get_status (spec.md §6.1.3).
type RepositoryStatus struct {
	ID            string
	Files         int
	Symbols       int
	LastIndexedNs int64
}

// VectorStoreStatus reports whether semantic search is usable at all
// (spec.md §6.1.3: "vector_store: {enabled, reachable, model_id?}").
type VectorStoreStatus struct {
	Enabled   bool
	Reachable bool
	ModelID   string
}

// PluginStatus is one registered language's entry in get_status/
// list_plugins (spec.md §6.1.3-4).
type PluginStatus struct {
	Language           string
	Extensions         []string
	State              plugin.State
	UnavailableUntilNs int64
}

// StatusResult is the get_status response shape.
type StatusResult struct {
	Repositories []RepositoryStatus
	VectorStore  VectorStoreStatus
	Plugins      []PluginStatus
}

// ReindexResult is the reindex response shape (spec.md §6.1.5), a thin
// rename of index.BatchResult's fields into the tool contract's vocabulary.
type ReindexResult struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Errored   int
	Errors    []ReindexError
}

// ReindexError is one failed file's entry in ReindexResult.Errors.
type ReindexError struct {
	Path   string
	Reason string
}

// Deps are the façade's collaborators. RepositoryID and RepoRoot identify
// the single repository this façade instance serves; a process serving
// multiple repositories runs one Facade per repository.
type Deps struct {
	Dispatcher   *dispatcher.Dispatcher
	Index        *index.Engine
	Store        store.Store
	Plugins      *plugin.Registry
	Vectors      vector.Store
	Embedder     vector.Provider
	RepositoryID string
	RepoRoot     string
}

// Facade binds Deps into the five operations.
type Facade struct {
	deps Deps
}

// New builds a Facade. Deps.Dispatcher, Deps.Index, Deps.Store and
// Deps.Plugins are required; Deps.Vectors/Deps.Embedder may be nil
// (semantic search and vector_store status both degrade gracefully).
func New(deps Deps) *Facade {
	return &Facade{deps: deps}
}

func clampLimit(want, def, min, max int) int {
	if want <= 0 {
		want = def
	}
	if want < min {
		want = min
	}
	if want > max {
		want = max
	}
	return want
}

func clampTimeout(want time.Duration, def time.Duration) time.Duration {
	if want <= 0 {
		return def
	}
	return want
}
