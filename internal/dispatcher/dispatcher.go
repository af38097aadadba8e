package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	codalexerrors "github.com/brindle-dev/codalex/internal/errors"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/internal/vector"
)

// Dispatcher routes Lookup and Search requests across the symbol table,
// the two BM25 documents and (when enabled) the vector store, applying the
// timeout/fallback state machine and RRF fusion of spec.md §4.5.
//
// Vectors and Embedder may be nil; Search then behaves as if the vector
// store were unreachable (degraded=true on every semantic request rather
// than an error, per spec.md §4.5.3).
type Dispatcher struct {
	Store    store.Store
	Vectors  vector.Store
	Embedder vector.Provider
	Reranker Reranker
	Fusion   FusionConfig

	PluginLoadTimeout time.Duration
}

// Reranker is the capability set of spec.md §4.6, implemented by
// internal/rerank; kept as an interface here so the dispatcher never
// imports a specific strategy.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error)
}

// New builds a Dispatcher with spec.md §4.5's defaults filled in.
func New(st store.Store, vectors vector.Store, embedder vector.Provider, reranker Reranker) *Dispatcher {
	return &Dispatcher{
		Store:             st,
		Vectors:           vectors,
		Embedder:          embedder,
		Reranker:          reranker,
		Fusion:            DefaultFusionConfig(),
		PluginLoadTimeout: DefaultPluginLoadTimeout,
	}
}

func (d *Dispatcher) ensureIndexed(ctx context.Context, repositoryID string) error {
	stats, err := d.Store.RepositoryStats(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("repository stats: %w", err)
	}
	if stats.Files == 0 {
		return codalexerrors.RepositoryNotIndexed(repositoryID)
	}
	return nil
}

// Lookup implements spec.md §4.5.1: exact, case-insensitive, prefix, then
// BM25-on-fts_symbol, stopping at the first stage that yields a result.
func (d *Dispatcher) Lookup(ctx context.Context, req LookupRequest) (Result, error) {
	if err := d.ensureIndexed(ctx, req.RepositoryID); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return Result{}, codalexerrors.InvalidQuery("symbol name is empty")
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	kind := req.Kind
	if kind == "" {
		kind = store.SymbolKindAnyWild
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hits, err := d.Store.LookupSymbol(ctx, req.RepositoryID, req.Name, kind, limit)
	if err != nil {
		return Result{}, fmt.Errorf("lookup symbol: %w", err)
	}
	if len(hits) > 0 {
		return Result{Hits: hits}, nil
	}

	// Stage 4: BM25 on fts_symbol, the dispatcher's own fallback stage on
	// top of storage's exact/prefix chain (spec.md §4.5.1 point 4).
	hits, err = d.Store.SearchFTS(ctx, req.RepositoryID, req.Name, store.FTSSymbol, limit, timeout)
	if err != nil {
		return Result{}, fmt.Errorf("bm25 symbol fallback: %w", err)
	}
	return Result{Hits: hits}, nil
}

// Search implements spec.md §4.5.2: the BM25 fast path (semantic=false,
// never touches the plugin registry) and the hybrid RRF path
// (semantic=true).
func (d *Dispatcher) Search(ctx context.Context, req SearchRequest) (Result, error) {
	if err := d.ensureIndexed(ctx, req.RepositoryID); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return Result{}, codalexerrors.InvalidQuery("query is empty")
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !req.Semantic {
		hits, err := d.Store.SearchFTS(execCtx, req.RepositoryID, req.Query, store.FTSCode, limit, timeout)
		if err != nil {
			if execCtx.Err() != nil {
				return Result{Hits: hits, Partial: true}, nil
			}
			return Result{}, fmt.Errorf("bm25 search: %w", err)
		}
		return d.applyRerank(ctx, req, Result{Hits: hits}, limit)
	}

	result, err := d.hybridSearch(execCtx, req, limit)
	if err != nil {
		return Result{}, err
	}
	return d.applyRerank(ctx, req, result, limit)
}

// hybridSearch runs BM25 and vector search in parallel and fuses with RRF
// (spec.md §4.5.2). A vector-side failure or absence degrades to BM25-only
// rather than failing the query (spec.md §4.5.3).
func (d *Dispatcher) hybridSearch(ctx context.Context, req SearchRequest, limit int) (Result, error) {
	fetchLimit := limit * 2
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	var (
		bm25Hits   []store.Hit
		bm25Err    error
		vectorHits []store.Hit
		vectorErr  error
		degraded   bool
	)

	if d.Vectors == nil || d.Embedder == nil {
		degraded = true
	} else if _, _, ok := d.Vectors.CollectionInfo(vector.CollectionName(req.RepositoryID)); !ok {
		degraded = true
	} else if modelID, _, _ := d.Vectors.CollectionInfo(vector.CollectionName(req.RepositoryID)); modelID != d.Embedder.ModelID() {
		return Result{}, codalexerrors.ModelMismatch(d.Embedder.ModelID(), modelID)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bm25Hits, bm25Err = d.Store.SearchFTS(ctx, req.RepositoryID, req.Query, store.FTSCode, fetchLimit, DefaultTimeout)
	}()

	if !degraded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := d.Embedder.Embed(ctx, []string{req.Query}, vector.KindQuery)
			if err != nil {
				vectorErr = err
				return
			}
			results, err := d.Vectors.Search(ctx, vector.CollectionName(req.RepositoryID), vecs[0], fetchLimit, nil)
			if err != nil {
				vectorErr = err
				return
			}
			vectorHits = toHits(results)
		}()
	}
	wg.Wait()

	partial := ctx.Err() != nil

	if degraded || vectorErr != nil {
		if bm25Err != nil {
			if !partial {
				return Result{}, fmt.Errorf("bm25 search: %w", bm25Err)
			}
		}
		return Result{Hits: truncate(bm25Hits, limit), Partial: partial, Degraded: true}, nil
	}
	if bm25Err != nil {
		return Result{Hits: truncate(vectorHits, limit), Partial: partial, Degraded: true}, nil
	}

	fused := fuseRRF(bm25Hits, vectorHits, d.Fusion)
	return Result{Hits: truncate(fused, limit), Partial: partial}, nil
}

func (d *Dispatcher) applyRerank(ctx context.Context, req SearchRequest, res Result, limit int) (Result, error) {
	mode := req.Rerank
	if mode == "" || mode == RerankOff || d.Reranker == nil {
		return res, nil
	}
	reranked, err := d.Reranker.Rerank(ctx, req.Query, res.Hits, limit)
	if err != nil {
		return res, nil // reranking never turns a successful query into a failure
	}
	res.Hits = reranked
	return res, nil
}

func toHits(results []vector.SearchResult) []store.Hit {
	hits := make([]store.Hit, len(results))
	for i, r := range results {
		hits[i] = store.Hit{
			RelativePath: r.Payload.RelativePath,
			Line:         r.Payload.StartLine,
			EndLine:      r.Payload.EndLine,
			Score:        float64(r.Score),
			Source:       "vector",
		}
	}
	return hits
}

func truncate(hits []store.Hit, limit int) []store.Hit {
	if len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}

// fuseRRF merges two ranked lists with Reciprocal Rank Fusion (spec.md
// §4.5.2): score(d) = Σ w_b / (k + rank_b(d)), keyed by (relative_path,
// line) since Hits have no single opaque id the way a chunk/vector point
// does.
func fuseRRF(bm25Hits, vectorHits []store.Hit, cfg FusionConfig) []store.Hit {
	type accum struct {
		hit   store.Hit
		score float64
	}
	key := func(h store.Hit) string { return h.RelativePath + ":" + fmt.Sprint(h.Line) }

	scores := make(map[string]*accum)
	for rank, h := range bm25Hits {
		rrf := cfg.BM25Weight / float64(cfg.RRFConstant+rank+1)
		h.Source = "fts_code"
		scores[key(h)] = &accum{hit: h, score: rrf}
	}
	for rank, h := range vectorHits {
		rrf := cfg.VectorWeight / float64(cfg.RRFConstant+rank+1)
		k := key(h)
		if existing, ok := scores[k]; ok {
			existing.score += rrf
			existing.hit.Source = "rerank"
		} else {
			h.Source = "vector"
			scores[k] = &accum{hit: h, score: rrf}
		}
	}

	out := make([]store.Hit, 0, len(scores))
	for _, a := range scores {
		a.hit.Score = a.score
		out = append(out, a.hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].RelativePath != out[j].RelativePath {
			return out[i].RelativePath < out[j].RelativePath
		}
		return out[i].Line < out[j].Line
	})
	return out
}
