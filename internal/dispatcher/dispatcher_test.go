package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindle-dev/codalex/internal/identity"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
)

// newTestDispatcher indexes a small fixture repository through the real
// engine/store so Lookup/Search exercise the same SQLite-backed fallback
// chains the engine tests do, rather than mocks of store.Store.
func newTestDispatcher(t *testing.T) (*Dispatcher, store.Store) {
	t.Helper()
	ctx := context.Background()
	dataDir := t.TempDir()
	st, err := store.Open(ctx, dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry, err := plugin.NewRegistry(plugin.DefaultFactories(), plugin.NewFallback())
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	root := t.TempDir()
	eng := index.New(index.Deps{
		Store:   st,
		Plugins: registry,
		Hashes:  identity.NewHashCache(64),
	}, index.Config{})

	writeFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n\nfunc Helper(value int) {}\n")
	_, err = eng.IndexRepository(ctx, "repo", root, index.IndexOptions{})
	require.NoError(t, err)

	return New(st, nil, nil, nil), st
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestLookupFallsThroughExactCaseInsensitivePrefixThenBM25Symbol(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	// Stage 1: exact match.
	res, err := d.Lookup(ctx, LookupRequest{RepositoryID: "repo", Name: "Hello"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "main.go", res.Hits[0].RelativePath)

	// Stage 2: case-insensitive (no symbol is named exactly "hello").
	res, err = d.Lookup(ctx, LookupRequest{RepositoryID: "repo", Name: "hello"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)

	// Stage 3: prefix match against "Helper".
	res, err = d.Lookup(ctx, LookupRequest{RepositoryID: "repo", Name: "Help"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)

	// Stage 4: no symbol is named or prefixed "int", but Helper's signature
	// ("value int") lands in fts_symbol, so only the BM25 fallback finds it.
	res, err = d.Lookup(ctx, LookupRequest{RepositoryID: "repo", Name: "int"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "main.go", res.Hits[0].RelativePath)
}

func TestLookupEmptyNameIsInvalidQuery(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Lookup(context.Background(), LookupRequest{RepositoryID: "repo", Name: "  "})
	assert.Error(t, err)
}

func TestFuseRRFOrdersByCombinedScoreThenPathThenLine(t *testing.T) {
	cfg := DefaultFusionConfig()
	// b.go ranks 2nd on the BM25 side and 1st on the vector side, so it
	// should fuse to a higher combined score than either single-source hit.
	bm25 := []store.Hit{
		{RelativePath: "a.go", Line: 1},
		{RelativePath: "b.go", Line: 1},
	}
	vector := []store.Hit{
		{RelativePath: "b.go", Line: 1},
		{RelativePath: "c.go", Line: 1},
	}

	fused := fuseRRF(bm25, vector, cfg)
	require.Len(t, fused, 3)

	expectedA := cfg.BM25Weight / float64(cfg.RRFConstant+1)
	expectedB := cfg.BM25Weight/float64(cfg.RRFConstant+2) + cfg.VectorWeight/float64(cfg.RRFConstant+1)
	expectedC := cfg.VectorWeight / float64(cfg.RRFConstant+2)
	require.Greater(t, expectedB, expectedA)
	require.Greater(t, expectedB, expectedC)

	byPath := make(map[string]store.Hit, len(fused))
	for _, h := range fused {
		byPath[h.RelativePath] = h
	}
	assert.InDelta(t, expectedA, byPath["a.go"].Score, 1e-9)
	assert.InDelta(t, expectedB, byPath["b.go"].Score, 1e-9)
	assert.InDelta(t, expectedC, byPath["c.go"].Score, 1e-9)
	assert.Equal(t, "rerank", byPath["b.go"].Source)

	// Highest combined score sorts first.
	assert.Equal(t, "b.go", fused[0].RelativePath)
	if expectedA > expectedC {
		assert.Equal(t, []string{"b.go", "a.go", "c.go"}, []string{fused[0].RelativePath, fused[1].RelativePath, fused[2].RelativePath})
	} else {
		assert.Equal(t, []string{"b.go", "c.go", "a.go"}, []string{fused[0].RelativePath, fused[1].RelativePath, fused[2].RelativePath})
	}
}

// slowFTSStore wraps a real store.Store and makes SearchFTS block until the
// caller's context is cancelled, then return ctx.Err() — simulating an outer
// query deadline killing BM25's own search call.
type slowFTSStore struct {
	store.Store
}

func (s *slowFTSStore) SearchFTS(ctx context.Context, repositoryID, query string, kind store.FTSKind, limit int, timeout time.Duration) ([]store.Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearchHybridDegradedAndBM25TimeoutYieldsPartialNotError(t *testing.T) {
	_, st := newTestDispatcher(t)
	d := New(&slowFTSStore{Store: st}, nil, nil, nil)

	res, err := d.Search(context.Background(), SearchRequest{
		RepositoryID: "repo",
		Query:        "Hello",
		Semantic:     true,
		Timeout:      10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Hits)
}

func TestSearchBM25FastPathTimeoutYieldsPartialNotError(t *testing.T) {
	_, st := newTestDispatcher(t)
	d := New(&slowFTSStore{Store: st}, nil, nil, nil)

	res, err := d.Search(context.Background(), SearchRequest{
		RepositoryID: "repo",
		Query:        "Hello",
		Semantic:     false,
		Timeout:      10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Partial)
}
