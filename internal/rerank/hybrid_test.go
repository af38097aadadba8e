package rerank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindle-dev/codalex/internal/store"
)

type fakeStrategy struct {
	delay time.Duration
	err   error
	hits  []store.Hit
}

func (f fakeStrategy) Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestHybridUsesPrimaryWhenItSucceeds(t *testing.T) {
	primary := fakeStrategy{hits: []store.Hit{{RelativePath: "primary.go"}}}
	h := NewHybrid(primary, 50*time.Millisecond)
	out, err := h.Rerank(context.Background(), "q", []store.Hit{{RelativePath: "a.go"}}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "primary.go", out[0].RelativePath)
}

func TestHybridFallsBackToTFIDFOnPrimaryError(t *testing.T) {
	primary := fakeStrategy{err: errors.New("boom")}
	h := NewHybrid(primary, 50*time.Millisecond)
	hits := []store.Hit{{RelativePath: "a.go", Snippet: "match"}}
	out, err := h.Rerank(context.Background(), "match", hits, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.go", out[0].RelativePath)
}

func TestHybridFallsBackToTFIDFOnTimeout(t *testing.T) {
	primary := fakeStrategy{delay: 100 * time.Millisecond, hits: []store.Hit{{RelativePath: "primary.go"}}}
	h := NewHybrid(primary, 10*time.Millisecond)
	hits := []store.Hit{{RelativePath: "a.go", Snippet: "match"}}
	out, err := h.Rerank(context.Background(), "match", hits, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.go", out[0].RelativePath)
}
