package vector

import (
	"context"
	"log/slog"

	"github.com/brindle-dev/codalex/internal/store"
)

// ChunkTextLoader re-reads and re-slices the one chunk a pending retry
// needs, rather than the whole file's chunk set, since only the
// embedding is being retried, not re-chunking.
type ChunkTextLoader interface {
	LoadChunkText(ctx context.Context, repositoryID, relativePath string, startLine, endLine int) (string, error)
}

// RetryPending implements the background sweep named in spec.md §4.7
// ("Provider failure ... A background sweep retries pending chunks"): it
// re-embeds every chunk still marked embed_pending, up to limit per call,
// and persists success/continued-failure back to the store.
func (p *Pipeline) RetryPending(ctx context.Context, st store.Store, loader ChunkTextLoader, limit int) (retried, stillPending int, err error) {
	pending, err := st.PendingChunks(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, pc := range pending {
		text, loadErr := loader.LoadChunkText(ctx, pc.RepositoryID, pc.RelativePath, pc.StartLine, pc.EndLine)
		if loadErr != nil {
			slog.Warn("embed_pending sweep: load chunk text failed", "repository", pc.RepositoryID, "path", pc.RelativePath, "error", loadErr)
			stillPending++
			continue
		}

		var vectors [][]float32
		embedErr := withRetry(ctx, p.Retry, p.Jitter, func() error {
			var err error
			vectors, err = p.Provider.Embed(ctx, []string{text}, KindCode)
			return err
		})
		if embedErr != nil {
			slog.Warn("embed_pending sweep: still failing", "repository", pc.RepositoryID, "path", pc.RelativePath, "error", embedErr)
			stillPending++
			continue
		}

		collection := CollectionName(pc.RepositoryID)
		if err := p.Vectors.EnsureCollection(ctx, collection, p.Provider.Dimensions(), p.Provider.ModelID()); err != nil {
			stillPending++
			continue
		}
		id := VectorID(pc.RepositoryID, pc.RelativePath, pc.ChunkIndex)
		upsertErr := p.Vectors.Upsert(ctx, collection, []Point{{
			ID:     id,
			Vector: vectors[0],
			Payload: Payload{
				RelativePath: pc.RelativePath,
				StartLine:    pc.StartLine,
				EndLine:      pc.EndLine,
				ChunkHash:    pc.ChunkHash,
				ModelID:      p.Provider.ModelID(),
				ModelDim:     p.Provider.Dimensions(),
			},
		}})
		if upsertErr != nil {
			stillPending++
			continue
		}

		txn, err := st.BeginWrite(ctx)
		if err != nil {
			return retried, stillPending, err
		}
		if err := st.UpdateChunkEmbedding(ctx, txn, pc.FileID, pc.ChunkIndex, id, false); err != nil {
			_ = st.Abort(txn)
			return retried, stillPending, err
		}
		if err := st.Commit(txn); err != nil {
			return retried, stillPending, err
		}
		retried++
	}
	return retried, stillPending, nil
}
