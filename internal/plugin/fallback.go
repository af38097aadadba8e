package plugin

import (
	"context"
	"regexp"

	"github.com/brindle-dev/codalex/internal/store"
)

// fallbackPlugin provides tokenization-based symbol extraction for any
// language not served by a dedicated tree-sitter plugin (spec.md §4.3): a
// small set of identifier-heuristic regexes covering the declaration
// keywords common to C-family and scripting languages. It always claims
// the file (Supports returns true unconditionally) since it is the last
// resort the registry falls back to, not a competitor for extensions.
type fallbackPlugin struct{}

// NewFallback constructs the generic fallback plugin.
func NewFallback() Plugin {
	return fallbackPlugin{}
}

var fallbackPatterns = []struct {
	kind store.SymbolKind
	re   *regexp.Regexp
}{
	{store.SymbolFunction, regexp.MustCompile(`(?m)^\s*(?:func|function|def|fn)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)},
	{store.SymbolClass, regexp.MustCompile(`(?m)^\s*(?:class|struct)\s+([A-Za-z_][A-Za-z0-9_]*)`)},
	{store.SymbolInterface, regexp.MustCompile(`(?m)^\s*interface\s+([A-Za-z_][A-Za-z0-9_]*)`)},
	{store.SymbolConstant, regexp.MustCompile(`(?m)^\s*const\s+([A-Za-z_][A-Za-z0-9_]*)`)},
	{store.SymbolVariable, regexp.MustCompile(`(?m)^\s*(?:var|let)\s+([A-Za-z_][A-Za-z0-9_]*)`)},
}

func (fallbackPlugin) LanguageTag() string { return "generic" }

func (fallbackPlugin) Supports(relativePath string) bool { return true }

func (fallbackPlugin) Parse(ctx context.Context, content []byte, relativePath string) (ParseResult, error) {
	var symbols []store.Symbol
	for _, pat := range fallbackPatterns {
		for _, loc := range pat.re.FindAllSubmatchIndex(content, -1) {
			name := string(content[loc[2]:loc[3]])
			line := 1 + lineOf(content, loc[0])
			symbols = append(symbols, store.Symbol{
				Name:      name,
				Kind:      pat.kind,
				StartLine: line,
				EndLine:   line,
			})
		}
	}
	// Heuristic extraction never "fails" on well-formed text; it simply
	// finds fewer symbols. BestEffort is always true here since there is
	// no real parse to validate against.
	return ParseResult{Symbols: symbols, BestEffort: true}, nil
}

func lineOf(content []byte, byteOffset int) int {
	n := 0
	for i := 0; i < byteOffset && i < len(content); i++ {
		if content[i] == '\n' {
			n++
		}
	}
	return n
}
