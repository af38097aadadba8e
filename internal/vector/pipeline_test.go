package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindle-dev/codalex/internal/chunk"
	"github.com/brindle-dev/codalex/internal/store"
)

type countingProvider struct {
	calls int
	fail  int // number of leading Embed calls that return an error
	dim   int
}

func (p *countingProvider) ModelID() string { return "test-model" }
func (p *countingProvider) Dimensions() int  { return p.dim }

func (p *countingProvider) Embed(ctx context.Context, texts []string, kind Kind) ([][]float32, error) {
	p.calls++
	if p.calls <= p.fail {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.dim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func newTestPipeline(provider Provider) (*Pipeline, *HNSWStore) {
	vs := NewHNSWStore()
	p := NewPipeline(vs, provider)
	p.Jitter = nil
	p.Retry = RetryConfig{MaxAttempts: 2, BaseDelay: 0, MaxDelay: 0, Multiplier: 1}
	return p, vs
}

func TestIndexChunksSkipsUnchangedHash(t *testing.T) {
	provider := &countingProvider{dim: 4}
	p, vs := newTestPipeline(provider)
	ctx := context.Background()

	file := store.File{ID: 1, RepositoryID: "repo", RelativePath: "a.go"}
	chunks := []chunk.Chunk{
		{RelativePath: "a.go", StartLine: 1, EndLine: 5, Text: "x", ChunkHash: "h1", Index: 0},
		{RelativePath: "a.go", StartLine: 6, EndLine: 10, Text: "y", ChunkHash: "h2", Index: 1},
	}
	previous := map[int]store.ChunkRecord{
		0: {FileID: 1, ChunkIndex: 0, ChunkHash: "h1", VectorID: "already-there"},
	}

	records, err := p.IndexChunks(ctx, "repo", file, chunks, previous)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "already-there", records[0].VectorID, "unchanged chunk hash should be skipped, not re-embedded")
	assert.Equal(t, 1, provider.calls, "only the changed chunk should trigger an Embed call")
	assert.NotEmpty(t, records[1].VectorID)

	pt, ok, err := vs.Get(ctx, CollectionName("repo"), records[1].VectorID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h2", pt.Payload.ChunkHash)
}

func TestIndexChunksMarksPendingOnPermanentFailure(t *testing.T) {
	provider := &countingProvider{dim: 4, fail: 100}
	p, _ := newTestPipeline(provider)
	ctx := context.Background()

	file := store.File{ID: 1, RepositoryID: "repo", RelativePath: "a.go"}
	chunks := []chunk.Chunk{{RelativePath: "a.go", StartLine: 1, EndLine: 5, Text: "x", ChunkHash: "h1", Index: 0}}

	records, err := p.IndexChunks(ctx, "repo", file, chunks, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].EmbedPending)
	assert.Empty(t, records[0].VectorID)
}

func TestIndexChunksBatchesAcrossBatchSize(t *testing.T) {
	provider := &countingProvider{dim: 2}
	p, _ := newTestPipeline(provider)
	p.BatchSize = 2
	ctx := context.Background()

	file := store.File{ID: 1, RepositoryID: "repo", RelativePath: "a.go"}
	var chunks []chunk.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, chunk.Chunk{RelativePath: "a.go", StartLine: i, EndLine: i + 1, Text: "t", ChunkHash: "h", Index: i})
	}

	_, err := p.IndexChunks(ctx, "repo", file, chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls, "5 chunks at batch size 2 should take ceil(5/2)=3 Embed calls")
}

func TestHandleMoveCopiesVectorWithoutReEmbedding(t *testing.T) {
	provider := &countingProvider{dim: 2}
	p, vs := newTestPipeline(provider)
	ctx := context.Background()

	file := store.File{ID: 1, RepositoryID: "repo", RelativePath: "old.go"}
	chunks := []chunk.Chunk{{RelativePath: "old.go", StartLine: 1, EndLine: 2, Text: "x", ChunkHash: "h1", Index: 0}}
	records, err := p.IndexChunks(ctx, "repo", file, chunks, nil)
	require.NoError(t, err)
	calls := provider.calls

	moved, err := p.HandleMove(ctx, "repo", "old.go", "new.go", map[int]store.ChunkRecord{0: records[0]})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, calls, provider.calls, "a content-unchanged move must not call the provider again")

	pt, ok, err := vs.Get(ctx, CollectionName("repo"), moved[0].VectorID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new.go", pt.Payload.RelativePath)

	_, ok, err = vs.Get(ctx, CollectionName("repo"), records[0].VectorID)
	require.NoError(t, err)
	assert.False(t, ok, "the old path's vector id should no longer resolve after the move")
}

func TestHandleDeleteRemovesFilesVectors(t *testing.T) {
	provider := &countingProvider{dim: 2}
	p, vs := newTestPipeline(provider)
	ctx := context.Background()

	file := store.File{ID: 1, RepositoryID: "repo", RelativePath: "a.go"}
	chunks := []chunk.Chunk{{RelativePath: "a.go", StartLine: 1, EndLine: 2, Text: "x", ChunkHash: "h1", Index: 0}}
	records, err := p.IndexChunks(ctx, "repo", file, chunks, nil)
	require.NoError(t, err)

	require.NoError(t, p.HandleDelete(ctx, "repo", "a.go"))

	_, ok, err := vs.Get(ctx, CollectionName("repo"), records[0].VectorID)
	require.NoError(t, err)
	assert.False(t, ok)
}
