package plugin

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/brindle-dev/codalex/internal/store"
)

// nodeConfig maps a language's grammar node types onto the symbol kinds
// spec.md §3 names, generalized to store.SymbolKind.
type nodeConfig struct {
	functionTypes  []string
	methodTypes    []string
	classTypes     []string
	interfaceTypes []string
	typeDefTypes   []string
	constantTypes  []string
	variableTypes  []string
}

func (c nodeConfig) kindFor(nodeType string) (store.SymbolKind, bool) {
	for _, t := range c.functionTypes {
		if t == nodeType {
			return store.SymbolFunction, true
		}
	}
	for _, t := range c.methodTypes {
		if t == nodeType {
			return store.SymbolMethod, true
		}
	}
	for _, t := range c.classTypes {
		if t == nodeType {
			return store.SymbolClass, true
		}
	}
	for _, t := range c.interfaceTypes {
		if t == nodeType {
			return store.SymbolInterface, true
		}
	}
	for _, t := range c.typeDefTypes {
		if t == nodeType {
			return store.SymbolTypeAlias, true
		}
	}
	for _, t := range c.constantTypes {
		if t == nodeType {
			return store.SymbolConstant, true
		}
	}
	for _, t := range c.variableTypes {
		if t == nodeType {
			return store.SymbolVariable, true
		}
	}
	return "", false
}

// treeSitterPlugin is a Plugin backed by one tree-sitter grammar. One
// instance holds exactly one *sitter.Parser; the registry is responsible
// for not sharing an instance across concurrent Parse calls.
type treeSitterPlugin struct {
	tag        string
	extensions map[string]bool
	language   *sitter.Language
	config     nodeConfig
	nameExtractor func(nodeType string, n *sitter.Node, source []byte) string

	parser *sitter.Parser
}

func newTreeSitterPlugin(tag string, extensions []string, lang *sitter.Language, cfg nodeConfig, nameFn func(string, *sitter.Node, []byte) string) *treeSitterPlugin {
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[normalizeExt(e)] = true
	}
	return &treeSitterPlugin{
		tag:           tag,
		extensions:    extSet,
		language:      lang,
		config:        cfg,
		nameExtractor: nameFn,
		parser:        sitter.NewParser(),
	}
}

func (p *treeSitterPlugin) LanguageTag() string { return p.tag }

func (p *treeSitterPlugin) Supports(relativePath string) bool {
	ext := normalizeExt(extOf(relativePath))
	return p.extensions[ext]
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

// Parse walks the tree-sitter AST and emits one Symbol per node whose type
// appears in the language's nodeConfig, walking and classifying nodes in
// one pass. A node with a HasError descendant does not abort the whole
// parse; it is still classified and BestEffort is set, per spec.md §4.3 ("a
// best_effort=true flag is set if errors were recovered").
func (p *treeSitterPlugin) Parse(ctx context.Context, content []byte, relativePath string) (ParseResult, error) {
	p.parser.SetLanguage(p.language)
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return ParseResult{}, fmt.Errorf("parse %s: %w", relativePath, err)
	}
	if tree == nil {
		return ParseResult{}, fmt.Errorf("parse %s: nil tree", relativePath)
	}
	defer tree.Close()

	root := tree.RootNode()
	var symbols []store.Symbol
	bestEffort := root.HasError()

	walk(root, func(n *sitter.Node) bool {
		if n.HasError() {
			bestEffort = true
		}
		kind, ok := p.config.kindFor(n.Type())
		if !ok {
			return true
		}
		name := p.nameExtractor(n.Type(), n, content)
		if name == "" {
			return true
		}
		symbols = append(symbols, store.Symbol{
			Name:      name,
			Kind:      kind,
			Signature: firstLine(content, n),
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			StartCol:  int(n.StartPoint().Column),
			EndCol:    int(n.EndPoint().Column),
		})
		return true
	})

	return ParseResult{Symbols: symbols, BestEffort: bestEffort}, nil
}

func (p *treeSitterPlugin) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// firstLine extracts a signature-like single line of source for n, cut at
// the first opening brace so the snippet reads like a declaration rather
// than a full body.
func firstLine(source []byte, n *sitter.Node) string {
	start, end := n.StartByte(), n.EndByte()
	if start >= end || int(end) > len(source) {
		return ""
	}
	content := string(source[start:end])
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, '{'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return line
}

// firstChildName returns the content of the first child of type childType,
// the pattern every language-specific name extractor repeats for
// Go/TS/JS/Python.
func firstChildName(n *sitter.Node, source []byte, childType string) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == childType {
			return string(source[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// nestedChildName looks one level deeper: first child of outerType, then
// its first child of innerType. Used for Go const/var specs and JS/TS
// variable_declarator nesting.
func nestedChildName(n *sitter.Node, source []byte, outerType, innerType string) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		outer := n.Child(i)
		if outer.Type() != outerType {
			continue
		}
		if name := firstChildName(outer, source, innerType); name != "" {
			return name
		}
	}
	return ""
}
