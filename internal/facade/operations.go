package facade

import (
	"context"
	"path/filepath"

	"github.com/brindle-dev/codalex/internal/dispatcher"
	"github.com/brindle-dev/codalex/internal/errors"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/internal/vector"
)

// SymbolLookup implements spec.md §6.1.1.
func (f *Facade) SymbolLookup(ctx context.Context, name string, kind store.SymbolKind, limit int) (SymbolLookupResult, error) {
	limit = clampLimit(limit, DefaultSearchLimit, 1, 200)
	res, err := f.deps.Dispatcher.Lookup(ctx, dispatcher.LookupRequest{
		RepositoryID: f.deps.RepositoryID,
		Name:         name,
		Kind:         kind,
		Limit:        limit,
		Timeout:      DefaultSearchTimeout,
	})
	if err != nil {
		return SymbolLookupResult{}, err
	}
	return SymbolLookupResult{Hits: res.Hits, Partial: res.Partial}, nil
}

// SearchCode implements spec.md §6.1.2.
func (f *Facade) SearchCode(ctx context.Context, query string, semantic bool, limit int, rerank dispatcher.RerankMode) (SearchCodeResult, error) {
	limit = clampLimit(limit, DefaultSearchLimit, 1, 200)
	if rerank == "" {
		rerank = dispatcher.RerankOff
	}
	res, err := f.deps.Dispatcher.Search(ctx, dispatcher.SearchRequest{
		RepositoryID: f.deps.RepositoryID,
		Query:        query,
		Semantic:     semantic,
		Rerank:       rerank,
		Limit:        limit,
		Timeout:      DefaultSearchTimeout,
	})
	if err != nil {
		return SearchCodeResult{}, err
	}
	return SearchCodeResult{Hits: res.Hits, Degraded: res.Degraded, Partial: res.Partial}, nil
}

// GetStatus implements spec.md §6.1.3: per-repository file/symbol counts,
// vector store reachability, and every registered plugin's lifecycle
// state. Unlike SymbolLookup/SearchCode/Reindex, this enumerates every
// repository the store knows about, not just Deps.RepositoryID, matching
// the plural `repositories: [...]` shape of the tool contract.
func (f *Facade) GetStatus(ctx context.Context) (StatusResult, error) {
	ids, err := f.deps.Store.ListRepositories(ctx)
	if err != nil {
		return StatusResult{}, err
	}

	repos := make([]RepositoryStatus, 0, len(ids))
	for _, id := range ids {
		stats, err := f.deps.Store.RepositoryStats(ctx, id)
		if err != nil {
			return StatusResult{}, err
		}
		repos = append(repos, RepositoryStatus{
			ID:            id,
			Files:         stats.Files,
			Symbols:       stats.Symbols,
			LastIndexedNs: stats.LastIndexedNs,
		})
	}

	vs := VectorStoreStatus{Enabled: f.deps.Vectors != nil && f.deps.Embedder != nil}
	if vs.Enabled {
		modelID, _, ok := f.deps.Vectors.CollectionInfo(vector.CollectionName(f.deps.RepositoryID))
		vs.Reachable = ok
		if ok {
			vs.ModelID = modelID
		} else {
			vs.ModelID = f.deps.Embedder.ModelID()
		}
	}

	return StatusResult{
		Repositories: repos,
		VectorStore:  vs,
		Plugins:      toPluginStatuses(f.deps.Plugins.Status()),
	}, nil
}

// ListPlugins implements spec.md §6.1.4.
func (f *Facade) ListPlugins(context.Context) ([]PluginStatus, error) {
	return toPluginStatuses(f.deps.Plugins.Status()), nil
}

// Reindex implements spec.md §6.1.5. An empty path re-scans the whole
// repository and reconciles deletions; a non-empty path restricts the
// pass to that repository-relative path (or directory prefix) and leaves
// unrelated missing files alone (spec.md §4.4 "Reconciliation").
func (f *Facade) Reindex(ctx context.Context, path string, force bool) (ReindexResult, error) {
	opts := index.IndexOptions{Force: force}
	if path != "" {
		opts.Paths = []string{filepath.ToSlash(path)}
	}

	batch, err := f.deps.Index.IndexRepository(ctx, f.deps.RepositoryID, f.deps.RepoRoot, opts)
	if err != nil {
		return ReindexResult{}, err
	}

	out := ReindexResult{
		Indexed:   batch.Indexed,
		Unchanged: batch.Unchanged,
		Skipped:   batch.Skipped,
		Errored:   batch.Errored,
		Errors:    make([]ReindexError, 0, len(batch.Errors)),
	}
	for _, e := range batch.Errors {
		reason := e.Reason
		if reason == "" && e.Err != nil {
			reason = errors.Code(e.Err)
			if reason == "" {
				reason = e.Err.Error()
			}
		}
		out.Errors = append(out.Errors, ReindexError{Path: e.RelativePath, Reason: reason})
	}
	return out, nil
}

func toPluginStatuses(statuses []plugin.Status) []PluginStatus {
	out := make([]PluginStatus, len(statuses))
	for i, s := range statuses {
		out[i] = PluginStatus{
			Language:           s.Language,
			Extensions:         s.Extensions,
			State:              s.State,
			UnavailableUntilNs: s.UnavailableUntilNs,
		}
	}
	return out
}
