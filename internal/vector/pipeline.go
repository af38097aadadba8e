package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"

	"github.com/brindle-dev/codalex/internal/chunk"
	"github.com/brindle-dev/codalex/internal/store"
)

// DefaultBatchSize matches spec.md §4.7 point 2 ("New chunks are batched
// (default 64)").
const DefaultBatchSize = 64

// Pipeline keeps one repository's Embeddings in step with its Chunks
// (spec.md §4.7). It does not own the storage transaction boundary:
// callers read ChunkRecords before UpsertFile clears them and persist the
// returned records afterward via ReplaceChunkRecords, the same sequencing
// UpsertFile already imposes on Symbols.
type Pipeline struct {
	Vectors   Store
	Provider  Provider
	BatchSize int
	Retry     RetryConfig
	// Jitter is exposed so tests can make backoff deterministic; a nil
	// Jitter just means no randomization, not an error.
	Jitter jitterSource
}

// NewPipeline builds a Pipeline with spec.md defaults and math/rand-backed
// jitter.
func NewPipeline(vectors Store, provider Provider) *Pipeline {
	return &Pipeline{
		Vectors:   vectors,
		Provider:  provider,
		BatchSize: DefaultBatchSize,
		Retry:     DefaultRetryConfig(),
		Jitter:    func(frac float64) float64 { return (rand.Float64()*2 - 1) * frac },
	}
}

// CollectionName derives the vector store collection for a repository.
// One collection per repository keeps ModelMismatch scoped to the
// repository whose model actually changed, rather than failing every
// open repository at once.
func CollectionName(repositoryID string) string {
	return "chunks:" + repositoryID
}

// VectorID derives the deterministic point ID for one chunk (spec.md
// §4.7 point 3), hashed so a re-index with the same coordinates always
// replaces rather than duplicates, and an old id naturally becomes
// unreachable once relativePath or chunkIndex changes.
func VectorID(repositoryID, relativePath string, chunkIndex int) string {
	h := sha256.New()
	h.Write([]byte(repositoryID))
	h.Write([]byte{0})
	h.Write([]byte(relativePath))
	h.Write([]byte{0})
	h.Write([]byte{byte(chunkIndex), byte(chunkIndex >> 8), byte(chunkIndex >> 16), byte(chunkIndex >> 24)})
	return hex.EncodeToString(h.Sum(nil))
}

// IndexChunks embeds and upserts chunks that changed since previous (keyed
// by chunk index), skips chunks whose hash is unchanged, and returns the
// full chunk bookkeeping to persist via store.ReplaceChunkRecords. Chunks
// whose embedding permanently fails are returned with EmbedPending=true
// (spec.md §4.7 "Provider failure").
func (p *Pipeline) IndexChunks(ctx context.Context, repositoryID string, file store.File, chunks []chunk.Chunk, previous map[int]store.ChunkRecord) ([]store.ChunkRecord, error) {
	collection := CollectionName(repositoryID)
	if err := p.Vectors.EnsureCollection(ctx, collection, p.Provider.Dimensions(), p.Provider.ModelID()); err != nil {
		return nil, err
	}

	records := make([]store.ChunkRecord, len(chunks))
	var toEmbed []int // indices into chunks that need a provider call

	for i, c := range chunks {
		prev, ok := previous[c.Index]
		if ok && prev.ChunkHash == c.ChunkHash && !prev.EmbedPending {
			records[i] = store.ChunkRecord{
				FileID: file.ID, ChunkIndex: c.Index, ChunkHash: c.ChunkHash,
				StartLine: c.StartLine, EndLine: c.EndLine, VectorID: prev.VectorID,
			}
			continue
		}
		toEmbed = append(toEmbed, i)
	}

	for start := 0; start < len(toEmbed); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(toEmbed) {
			end = len(toEmbed)
		}
		batch := toEmbed[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Text
		}

		var vectors [][]float32
		err := withRetry(ctx, p.Retry, p.Jitter, func() error {
			var embedErr error
			vectors, embedErr = p.Provider.Embed(ctx, texts, KindCode)
			return embedErr
		})
		if err != nil {
			for _, idx := range batch {
				c := chunks[idx]
				records[idx] = store.ChunkRecord{
					FileID: file.ID, ChunkIndex: c.Index, ChunkHash: c.ChunkHash,
					StartLine: c.StartLine, EndLine: c.EndLine, EmbedPending: true,
				}
			}
			continue
		}

		points := make([]Point, len(batch))
		for j, idx := range batch {
			c := chunks[idx]
			id := VectorID(repositoryID, file.RelativePath, c.Index)
			points[j] = Point{
				ID:     id,
				Vector: vectors[j],
				Payload: Payload{
					RelativePath: file.RelativePath,
					StartLine:    c.StartLine,
					EndLine:      c.EndLine,
					ChunkHash:    c.ChunkHash,
					ModelID:      p.Provider.ModelID(),
					ModelDim:     p.Provider.Dimensions(),
				},
			}
			records[idx] = store.ChunkRecord{
				FileID: file.ID, ChunkIndex: c.Index, ChunkHash: c.ChunkHash,
				StartLine: c.StartLine, EndLine: c.EndLine, VectorID: id,
			}
		}
		if err := p.Vectors.Upsert(ctx, collection, points); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// HandleMove implements spec.md §4.7 point 4: when content is unchanged,
// it copies each chunk's existing vector to a new ID under newPath
// without calling the provider, then deletes the old path's points.
// Otherwise the caller should treat the move as delete(old)+index(new).
func (p *Pipeline) HandleMove(ctx context.Context, repositoryID, oldPath, newPath string, previous map[int]store.ChunkRecord) ([]store.ChunkRecord, error) {
	collection := CollectionName(repositoryID)
	records := make([]store.ChunkRecord, 0, len(previous))

	var points []Point
	for idx, rec := range previous {
		if rec.VectorID == "" {
			records = append(records, store.ChunkRecord{
				FileID: rec.FileID, ChunkIndex: idx, ChunkHash: rec.ChunkHash,
				StartLine: rec.StartLine, EndLine: rec.EndLine, EmbedPending: rec.EmbedPending,
			})
			continue
		}
		pt, ok, err := p.Vectors.Get(ctx, collection, rec.VectorID)
		if err != nil {
			return nil, err
		}
		newID := VectorID(repositoryID, newPath, idx)
		if ok {
			pt.ID = newID
			pt.Payload.RelativePath = newPath
			points = append(points, pt)
		}
		records = append(records, store.ChunkRecord{
			FileID: rec.FileID, ChunkIndex: idx, ChunkHash: rec.ChunkHash,
			StartLine: rec.StartLine, EndLine: rec.EndLine, VectorID: newID,
		})
	}

	if len(points) > 0 {
		if err := p.Vectors.Upsert(ctx, collection, points); err != nil {
			return nil, err
		}
	}
	if err := p.Vectors.Delete(ctx, collection, ByRelativePath(oldPath)); err != nil {
		return nil, err
	}
	return records, nil
}

// HandleDelete implements spec.md §4.7 point 5.
func (p *Pipeline) HandleDelete(ctx context.Context, repositoryID, relativePath string) error {
	return p.Vectors.Delete(ctx, CollectionName(repositoryID), ByRelativePath(relativePath))
}
