// Package dispatcher implements the query routing layer (spec.md §4.5):
// symbol lookup's exact/case-insensitive/prefix/BM25 fallback chain, the
// BM25-fast-path and hybrid-RRF-fusion branches of code search, and the
// per-query timeout/fallback state machine that keeps a slow vector store
// or plugin load from blocking a response past its deadline.
package dispatcher

import (
	"time"

	"github.com/brindle-dev/codalex/internal/store"
)

// DefaultLimit, DefaultTimeout and DefaultPluginLoadTimeout are the
// query-level defaults named in spec.md §4.5.
const (
	DefaultLimit             = 20
	DefaultTimeout           = 5 * time.Second
	DefaultPluginLoadTimeout = 5 * time.Second
	CancellationGrace        = 500 * time.Millisecond
)

// RerankMode selects a post-filter strategy (spec.md §4.6); "off" disables
// reranking entirely.
type RerankMode string

const (
	RerankOff      RerankMode = "off"
	RerankTFIDF    RerankMode = "tfidf"
	RerankExternal RerankMode = "external"
	RerankHybrid   RerankMode = "hybrid"
)

// FusionConfig tunes the Reciprocal Rank Fusion merge of spec.md §4.5.2.
type FusionConfig struct {
	RRFConstant  int
	BM25Weight   float64
	VectorWeight float64
}

// DefaultFusionConfig returns spec.md §4.5.2's defaults (k=60, BM25=0.4,
// vector=0.6).
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{RRFConstant: 60, BM25Weight: 0.4, VectorWeight: 0.6}
}

// LookupRequest is a symbol-lookup query (spec.md §4.5.1).
type LookupRequest struct {
	RepositoryID string
	Name         string
	Kind         store.SymbolKind // SymbolKindAnyWild for "any"
	Limit        int
	Timeout      time.Duration
}

// SearchRequest is a code-search query (spec.md §4.5.2).
type SearchRequest struct {
	RepositoryID string
	Query        string
	Semantic     bool
	Rerank       RerankMode
	Limit        int
	Timeout      time.Duration
}

// Result is the outcome of a query: the ranked Hits plus the flags spec.md
// §4.5.3 requires callers to be able to observe (partial/degraded results
// are not failures).
type Result struct {
	Hits     []store.Hit
	Partial  bool // Executing exceeded Timeout; returns what had arrived
	Degraded bool // a sub-backend was unavailable but the query still succeeded
	FellBack bool // plugin load timed out; served from BM25 alone. Lookup and Search never set it
}
