package rerank

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/brindle-dev/codalex/internal/store"
)

var tfidfTokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	return tfidfTokenPattern.FindAllString(strings.ToLower(s), -1)
}

// TFIDF is the always-available reranker of spec.md §4.6: it scores each
// hit's snippet against the query terms using classic TF-IDF, with the
// corpus being the hit set itself rather than the whole index (there is no
// other corpus available post-retrieval). Latency target: <5ms for 50
// hits, so this never allocates beyond one pass per hit.
type TFIDF struct{}

// Rerank reorders hits by TF-IDF relevance to query. Ties fall through to
// the original rank (stable sort), satisfying spec.md §4.6's determinism
// guarantee.
func (TFIDF) Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error) {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(hits) == 0 {
		return truncate(hits, topK), nil
	}

	docTerms := make([][]string, len(hits))
	df := make(map[string]int)
	for i, h := range hits {
		terms := tokenize(h.Snippet)
		docTerms[i] = terms
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	n := float64(len(hits))

	type scored struct {
		hit   store.Hit
		score float64
		rank  int
	}
	out := make([]scored, len(hits))
	for i, h := range hits {
		tf := make(map[string]int, len(docTerms[i]))
		for _, t := range docTerms[i] {
			tf[t]++
		}
		var score float64
		for _, qt := range queryTerms {
			count := tf[qt]
			if count == 0 {
				continue
			}
			idf := math.Log(1 + n/float64(df[qt]))
			score += float64(count) * idf
		}
		out[i] = scored{hit: h, score: score, rank: i}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].rank < out[j].rank
	})

	result := make([]store.Hit, len(out))
	for i, s := range out {
		h := s.hit
		h.Source = "rerank"
		result[i] = h
	}
	return truncate(result, topK), nil
}

func truncate(hits []store.Hit, topK int) []store.Hit {
	if topK <= 0 || len(hits) <= topK {
		return hits
	}
	return hits[:topK]
}
