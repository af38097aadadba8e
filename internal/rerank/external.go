package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brindle-dev/codalex/internal/store"
)

// DefaultExternalTimeout bounds one call to the external reranker
// collaborator (spec.md §4.6: "50-200ms. Requires network").
const DefaultExternalTimeout = 200 * time.Millisecond

// External calls an out-of-process reranking collaborator over HTTP,
// grounded on the same plain net/http request/response pattern used for
// the embedding provider (internal/vector.OllamaProvider) rather than a
// bespoke client library, since the pack reaches for net/http for every
// local-model HTTP collaborator.
type External struct {
	Endpoint string
	Client   *http.Client
}

// NewExternal builds an External reranker against endpoint.
func NewExternal(endpoint string) *External {
	return &External{Endpoint: endpoint, Client: &http.Client{Timeout: DefaultExternalTimeout}}
}

type externalRerankRequest struct {
	Query string            `json:"query"`
	Docs  []externalRerankDoc `json:"docs"`
}

type externalRerankDoc struct {
	ID      int    `json:"id"`
	Snippet string `json:"snippet"`
}

type externalRerankResponse struct {
	Order []int `json:"order"` // indices into the request's Docs, best first
}

// Rerank posts query and the hit snippets to Endpoint and reorders hits
// according to the returned index order. Any index outside [0,len(hits))
// is dropped rather than trusted.
func (e *External) Rerank(ctx context.Context, query string, hits []store.Hit, topK int) ([]store.Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	docs := make([]externalRerankDoc, len(hits))
	for i, h := range hits {
		docs[i] = externalRerankDoc{ID: i, Snippet: h.Snippet}
	}
	body, err := json.Marshal(externalRerankRequest{Query: query, Docs: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call external reranker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("external reranker returned status %d", resp.StatusCode)
	}

	var parsed externalRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]store.Hit, 0, len(parsed.Order))
	for _, idx := range parsed.Order {
		if idx < 0 || idx >= len(hits) {
			continue
		}
		h := hits[idx]
		h.Source = "rerank"
		out = append(out, h)
	}
	return truncate(out, topK), nil
}
