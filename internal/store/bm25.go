package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	bsearch "github.com/blevesearch/bleve/v2/search"
)

// Names for the custom analyzer chain registered below: a regex tokenizer
// that splits on identifier boundaries (so snake_case/camelCase pieces are
// still indexed as whole words), lowercased, with a small code-aware stop
// list.
const (
	codeTokenizerName = "codalex_code_tokenizer"
	codeStopFilter    = "codalex_code_stop"
	codeAnalyzerName  = "codalex_code_analyzer"
)

// identifierPattern matches runs of letters, digits and underscores; this
// keeps "HTTPHandler" and "get_user_by_id" as single indexed terms while
// still splitting on punctuation like "." and "(".
const identifierPattern = `[A-Za-z0-9_]+`

var codeStopWords = []string{"the", "a", "an", "is", "to", "of", "in", "and", "or"}

func init() {
	tokenMap := analysis.NewTokenMap()
	for _, w := range codeStopWords {
		tokenMap.AddToken(w)
	}
	_ = registry.RegisterTokenFilter(codeStopFilter, func(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
		return stop.NewStopTokensFilter(tokenMap), nil
	})
}

func newFTSMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenizer(codeTokenizerName, map[string]interface{}{
		"type":   regexp.Name,
		"regexp": identifierPattern,
	}); err != nil {
		return nil, fmt.Errorf("add custom tokenizer: %w", err)
	}

	if err := im.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilter,
		},
	}); err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = codeAnalyzerName
	return im, nil
}

// ftsDocument is the bleve document shape for both the code and symbol
// indices; the two live in separate bleve.Index values so that spec.md's
// fts_code and fts_symbol are genuinely independent documents per file.
type ftsDocument struct {
	Content string `json:"content"`
}

// ftsIndex wraps one bleve.Index (either the code or the symbol document
// set) with the document-id scheme "<fileID>", so that a File's postings
// can be deleted by id in lockstep with deleting its SQLite row (spec.md
// §3 "FTS Posting" invariant).
type ftsIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

func openFTSIndex(path string) (*ftsIndex, error) {
	m, err := newFTSMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open fts index at %s: %w", path, err)
	}
	return &ftsIndex{index: idx}, nil
}

func ftsDocID(fileID int64) string {
	return fmt.Sprintf("%d", fileID)
}

func (f *ftsIndex) replace(fileID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Index(ftsDocID(fileID), ftsDocument{Content: text})
}

func (f *ftsIndex) delete(fileID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Delete(ftsDocID(fileID))
}

// bm25Hit is a raw scored match before the caller joins it against SQLite
// for path/line metadata.
type bm25Hit struct {
	FileID       int64
	Score        float64
	MatchedTerms []string
}

func (f *ftsIndex) search(ctx context.Context, parsed parsedQuery, limit int) ([]bm25Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if parsed.empty() {
		return nil, nil
	}

	q := parsed.toBleveQuery()
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	result, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	hits := make([]bm25Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		var fileID int64
		if _, err := fmt.Sscanf(h.ID, "%d", &fileID); err != nil {
			continue
		}
		hits = append(hits, bm25Hit{
			FileID:       fileID,
			Score:        h.Score,
			MatchedTerms: matchedTerms(h),
		})
	}
	return hits, nil
}

func matchedTerms(hit *bsearch.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locs := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locs {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}

// allDocIDs lists every document id currently stored in the index, keyed by
// the numeric file id each document is named after. Used by the
// consistency checker, not by query paths.
func (f *ftsIndex) allDocIDs() (map[int64]bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make(map[int64]bool)
	docCount, err := f.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("fts doc count: %w", err)
	}
	if docCount == 0 {
		return ids, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	result, err := f.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("fts list ids: %w", err)
	}
	for _, h := range result.Hits {
		var fileID int64
		if _, err := fmt.Sscanf(h.ID, "%d", &fileID); err == nil {
			ids[fileID] = true
		}
	}
	return ids, nil
}

func (f *ftsIndex) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Close()
}
