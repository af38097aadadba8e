package rerank

import (
	"context"
	"time"

	"github.com/brindle-dev/codalex/internal/store"
)

// Hybrid tries Primary under Budget and falls back to TFIDF on timeout or
// error (spec.md §4.6 "hybrid").
type Hybrid struct {
	Primary Strategy
	TFIDF   Strategy
	Budget  time.Duration
}

// NewHybrid builds a Hybrid reranker whose TFIDF is the package's TFIDF{};
// a non-positive budget becomes DefaultBudget.
func NewHybrid(primary Strategy, budget time.Duration) *Hybrid {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Hybrid{Primary: primary, TFIDF: TFIDF{}, Budget: budget}
}

func (h *Hybrid) Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, h.Budget)
	defer cancel()

	type result struct {
		hits []store.Hit
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.Primary.Rerank(budgetCtx, query, hits, topK)
		done <- result{hits: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.hits, nil
		}
		return h.TFIDF.Rerank(ctx, query, hits, topK)
	case <-budgetCtx.Done():
		return h.TFIDF.Rerank(ctx, query, hits, topK)
	}
}
