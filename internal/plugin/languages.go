package plugin

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// approxGrammarMemory is a rough per-instance cost estimate used by the
// registry's memory-budget eviction; tree-sitter grammars are small
// (typically a few MiB of generated tables) relative to the 1 GiB default
// budget, so this is deliberately conservative rather than precise.
const approxGrammarMemory = 8 << 20

// DefaultFactories returns the tree-sitter-backed plugin factories for
// Go, TypeScript, TSX, JavaScript, JSX, and Python.
func DefaultFactories() []Factory {
	return []Factory{
		goFactory(),
		typeScriptFactory(),
		tsxFactory(),
		javaScriptFactory(),
		jsxFactory(),
		pythonFactory(),
	}
}

func goFactory() Factory {
	cfg := nodeConfig{
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_declaration"},
		typeDefTypes:  []string{"type_declaration"},
		constantTypes: []string{"const_declaration"},
		variableTypes: []string{"var_declaration"},
	}
	nameFn := func(nodeType string, n *sitter.Node, source []byte) string {
		switch nodeType {
		case "function_declaration":
			return firstChildName(n, source, "identifier")
		case "method_declaration":
			return firstChildName(n, source, "field_identifier")
		case "type_declaration":
			for i := 0; i < int(n.ChildCount()); i++ {
				if spec := n.Child(i); spec.Type() == "type_spec" {
					if name := firstChildName(spec, source, "type_identifier"); name != "" {
						return name
					}
				}
			}
			return ""
		case "const_declaration":
			return nestedChildName(n, source, "const_spec", "identifier")
		case "var_declaration":
			return nestedChildName(n, source, "var_spec", "identifier")
		default:
			return firstChildName(n, source, "identifier")
		}
	}
	return Factory{
		Extensions:        []string{".go"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("go", []string{".go"}, golang.GetLanguage(), cfg, nameFn), nil
		},
	}
}

func jsLikeNameFn(nodeType string, n *sitter.Node, source []byte) string {
	if nodeType == "lexical_declaration" || nodeType == "variable_declaration" {
		return nestedChildName(n, source, "variable_declarator", "identifier")
	}
	if name := firstChildName(n, source, "identifier"); name != "" {
		return name
	}
	return firstChildName(n, source, "type_identifier")
}

func typeScriptFactory() Factory {
	cfg := nodeConfig{
		functionTypes:  []string{"function_declaration"},
		methodTypes:    []string{"method_definition"},
		classTypes:     []string{"class_declaration"},
		interfaceTypes: []string{"interface_declaration"},
		typeDefTypes:   []string{"type_alias_declaration"},
		constantTypes:  []string{"lexical_declaration"},
		variableTypes:  []string{"variable_declaration"},
	}
	return Factory{
		Extensions:        []string{".ts"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("typescript", []string{".ts"}, typescript.GetLanguage(), cfg, jsLikeNameFn), nil
		},
	}
}

func tsxFactory() Factory {
	cfg := nodeConfig{
		functionTypes:  []string{"function_declaration"},
		methodTypes:    []string{"method_definition"},
		classTypes:     []string{"class_declaration"},
		interfaceTypes: []string{"interface_declaration"},
		typeDefTypes:   []string{"type_alias_declaration"},
		constantTypes:  []string{"lexical_declaration"},
		variableTypes:  []string{"variable_declaration"},
	}
	return Factory{
		Extensions:        []string{".tsx"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("tsx", []string{".tsx"}, tsx.GetLanguage(), cfg, jsLikeNameFn), nil
		},
	}
}

func javaScriptFactory() Factory {
	cfg := nodeConfig{
		functionTypes: []string{"function_declaration", "function"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		constantTypes: []string{"lexical_declaration"},
		variableTypes: []string{"variable_declaration"},
	}
	return Factory{
		Extensions:        []string{".js", ".mjs"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("javascript", []string{".js", ".mjs"}, javascript.GetLanguage(), cfg, jsLikeNameFn), nil
		},
	}
}

func jsxFactory() Factory {
	cfg := nodeConfig{
		functionTypes: []string{"function_declaration", "function"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		constantTypes: []string{"lexical_declaration"},
		variableTypes: []string{"variable_declaration"},
	}
	return Factory{
		Extensions:        []string{".jsx"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("jsx", []string{".jsx"}, javascript.GetLanguage(), cfg, jsLikeNameFn), nil
		},
	}
}

func pythonFactory() Factory {
	cfg := nodeConfig{
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_definition"},
	}
	nameFn := func(nodeType string, n *sitter.Node, source []byte) string {
		return firstChildName(n, source, "identifier")
	}
	return Factory{
		Extensions:        []string{".py"},
		Priority:          10,
		ApproxMemoryBytes: approxGrammarMemory,
		New: func() (Plugin, error) {
			return newTreeSitterPlugin("python", []string{".py"}, python.GetLanguage(), cfg, nameFn), nil
		},
	}
}
