package store

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

// parsedQuery is a bag of terms with optional quoted phrases and -term
// negation (spec.md §4.2, §9 "Open questions": the FTS query language stays
// a best-effort bag-of-terms rather than a formal boolean grammar).
// Anything else is accepted rather than rejected: stray operators stay as
// ordinary terms and an unbalanced quote runs to the end of the input, since
// queries only ever degrade, never error (spec.md §7).
type parsedQuery struct {
	must    []string // plain terms and phrase terms that must match
	mustNot []string // -term exclusions
}

func (p parsedQuery) empty() bool {
	return len(p.must) == 0 && len(p.mustNot) == 0
}

// parseQuery tokenizes raw into must/must-not terms. It recognizes:
//   - "quoted phrases"
//   - -term / -"quoted phrase" negation
//   - bare terms
//
// Any other character sequence (boolean operators, field qualifiers, etc.)
// is treated as ordinary text rather than erroring.
func parseQuery(raw string) parsedQuery {
	var out parsedQuery
	runes := []rune(strings.TrimSpace(raw))
	i := 0
	for i < len(runes) {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		if i >= len(runes) {
			break
		}

		negate := false
		if runes[i] == '-' && i+1 < len(runes) {
			negate = true
			i++
		}

		var term string
		if i < len(runes) && runes[i] == '"' {
			i++
			start := i
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			term = string(runes[start:i])
			if i < len(runes) {
				i++ // consume closing quote
			}
		} else {
			start := i
			for i < len(runes) && runes[i] != ' ' {
				i++
			}
			term = string(runes[start:i])
		}

		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if negate {
			out.mustNot = append(out.mustNot, term)
		} else {
			out.must = append(out.must, term)
		}
	}
	return out
}

// toBleveQuery renders the parsed query as a bleve conjunction/negation
// query tree over the "content" field.
func (p parsedQuery) toBleveQuery() bquery.Query {
	var musts []bquery.Query
	for _, t := range p.must {
		musts = append(musts, fieldQuery(t))
	}
	if len(musts) == 0 {
		// A query that is pure negation ("-foo") still needs a base set to
		// subtract from; match-all is the only sound choice.
		musts = append(musts, bleve.NewMatchAllQuery())
	}

	base := bquery.Query(bleve.NewConjunctionQuery(musts...))
	if len(p.mustNot) == 0 {
		return base
	}

	var nots []bquery.Query
	for _, t := range p.mustNot {
		nots = append(nots, fieldQuery(t))
	}
	boolQ := bleve.NewBooleanQuery()
	boolQ.AddMust(base)
	boolQ.AddMustNot(nots...)
	return boolQ
}

func fieldQuery(term string) bquery.Query {
	if strings.Contains(term, " ") {
		mp := bleve.NewMatchPhraseQuery(term)
		mp.SetField("content")
		return mp
	}
	m := bleve.NewMatchQuery(term)
	m.SetField("content")
	return m
}
