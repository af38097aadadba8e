// Package rerank implements the post-filter strategies of spec.md §4.6:
// a fast in-process TF-IDF reranker, a network-backed external reranker, and
// a hybrid strategy that tries a primary under budget and falls back to
// TF-IDF on timeout or error.
package rerank

import (
	"context"
	"time"

	"github.com/brindle-dev/codalex/internal/store"
)

// Strategy is the polymorphic capability set of spec.md §4.6.
type Strategy interface {
	Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error)
}

// DefaultBudget bounds a hybrid strategy's primary attempt before it falls
// back to TF-IDF (spec.md §4.6 "hybrid").
const DefaultBudget = 150 * time.Millisecond
