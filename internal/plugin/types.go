// Package plugin implements the per-language parser registry (spec.md §4.3):
// lazy-loaded, memory-bounded, fault-isolated parsers that turn file bytes
// into Symbols, plus a generic fallback for languages with no dedicated
// parser.
package plugin

import (
	"context"
	"time"

	"github.com/brindle-dev/codalex/internal/store"
)

// ParseResult is what a Plugin returns for one file. BestEffort is set when
// the parser recovered from syntax errors rather than failing outright;
// only total parser failure should be surfaced as an error from Parse.
type ParseResult struct {
	Symbols    []store.Symbol
	BestEffort bool
}

// Plugin is the polymorphic capability set of spec.md §4.3: a stable
// language tag, an extension/name-based applicability check, and a parse
// step that never blocks indefinitely (the registry enforces the timeout,
// not the plugin itself).
type Plugin interface {
	Supports(relativePath string) bool
	Parse(ctx context.Context, content []byte, relativePath string) (ParseResult, error)
	LanguageTag() string
}

// Factory lazily constructs a Plugin. Construction can be expensive (a
// tree-sitter grammar allocation, for tree-sitter-backed plugins), which is
// why the registry defers it until first use and evicts idle instances.
type Factory struct {
	// Extensions this plugin handles, most-specific-first is not required;
	// the registry resolves conflicts by Priority, then registration order.
	Extensions []string
	Priority   int
	New        func() (Plugin, error)
	// ApproxMemoryBytes estimates the resident cost of one loaded instance,
	// used by the registry's memory-budget eviction (spec.md §4.3, default
	// 1 GiB registry-wide budget).
	ApproxMemoryBytes int64
}

// loadState tracks lazy instantiation, LRU ordering and the load-timeout
// cooldown for one registered language slot.
type loadState struct {
	factory         Factory
	instance        Plugin
	lastUsed        time.Time
	unavailableUntil time.Time
}
