package facade

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brindle-dev/codalex/internal/dispatcher"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/pkg/version"
)

// Server binds a Facade's five operations onto the MCP SDK's tool
// registry (spec.md §6.1). The JSON-RPC transport itself is out of
// scope (spec.md §1); Server only owns tool definitions and schemas.
type Server struct {
	facade *Facade
	mcp    *mcp.Server
}

// SymbolLookupInput is the symbol_lookup tool's input schema.
type SymbolLookupInput struct {
	Name string `json:"name" jsonschema:"the exact or partial symbol name to look up"`
	Kind string `json:"kind,omitempty" jsonschema:"restrict to a symbol kind, default any"`
}

// SymbolLookupOutput is the symbol_lookup tool's output schema.
type SymbolLookupOutput struct {
	Hits    []HitOutput `json:"hits"`
	Partial bool        `json:"partial"`
}

// SearchCodeInput is the search_code tool's input schema.
type SearchCodeInput struct {
	Query    string `json:"query" jsonschema:"the search query"`
	Semantic bool   `json:"semantic,omitempty" jsonschema:"also search the vector store and fuse results, default false"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Rerank   string `json:"rerank,omitempty" jsonschema:"off, tfidf, external or hybrid, default off"`
}

// SearchCodeOutput is the search_code tool's output schema.
type SearchCodeOutput struct {
	Hits     []HitOutput `json:"hits"`
	Degraded bool        `json:"degraded"`
	Partial  bool        `json:"partial"`
}

// HitOutput is one search/lookup match.
type HitOutput struct {
	RelativePath string  `json:"file_path"`
	Line         int     `json:"line"`
	EndLine      int     `json:"end_line,omitempty"`
	Snippet      string  `json:"snippet,omitempty"`
	Kind         string  `json:"kind,omitempty"`
	Signature    string  `json:"signature,omitempty"`
	Score        float64 `json:"score"`
	Source       string  `json:"source,omitempty"`
}

// GetStatusInput is the get_status tool's (empty) input schema.
type GetStatusInput struct{}

// GetStatusOutput is the get_status tool's output schema.
type GetStatusOutput struct {
	Repositories []RepositoryStatusOutput `json:"repositories"`
	VectorStore  VectorStoreStatusOutput  `json:"vector_store"`
	Plugins      []PluginStatusOutput     `json:"plugins"`
}

// RepositoryStatusOutput is one repository's get_status entry.
type RepositoryStatusOutput struct {
	ID            string `json:"id"`
	Files         int    `json:"files"`
	Symbols       int    `json:"symbols"`
	LastIndexedNs int64  `json:"last_indexed_ns"`
}

// VectorStoreStatusOutput reports semantic-search usability.
type VectorStoreStatusOutput struct {
	Enabled   bool   `json:"enabled"`
	Reachable bool   `json:"reachable"`
	ModelID   string `json:"model_id,omitempty"`
}

// PluginStatusOutput is one language's get_status/list_plugins entry.
type PluginStatusOutput struct {
	Language   string   `json:"language"`
	Extensions []string `json:"extensions"`
	State      string   `json:"state"`
}

// ListPluginsInput is the list_plugins tool's (empty) input schema.
type ListPluginsInput struct{}

// ListPluginsOutput is the list_plugins tool's output schema.
type ListPluginsOutput struct {
	Plugins []PluginStatusOutput `json:"plugins"`
}

// ReindexInput is the reindex tool's input schema.
type ReindexInput struct {
	Path  string `json:"path,omitempty" jsonschema:"restrict reindexing to this repository-relative path"`
	Force bool   `json:"force,omitempty" jsonschema:"re-parse every file even if content_hash is unchanged"`
}

// ReindexOutput is the reindex tool's output schema.
type ReindexOutput struct {
	Indexed   int                 `json:"indexed"`
	Unchanged int                 `json:"unchanged"`
	Skipped   int                 `json:"skipped"`
	Errored   int                 `json:"errored"`
	Errors    []ReindexErrorOutput `json:"errors,omitempty"`
}

// ReindexErrorOutput is one failed file's reindex entry.
type ReindexErrorOutput struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// NewServer wraps f in an MCP server exposing the five tools of spec.md
// §6.1.
func NewServer(f *Facade) *Server {
	s := &Server{facade: f}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "codalex", Version: version.Version}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, e.g. to call Run with a
// transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol_lookup",
		Description: "Find a symbol's definition by name across the indexed repository. Prefer this over search_code when you already know the symbol's name.",
	}, s.symbolLookup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Lexical (BM25) and, optionally, semantic code search. Set semantic=true to also search by meaning and fuse with keyword results.",
	}, s.searchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_status",
		Description: "Report indexed repositories, vector store reachability, and plugin state. Use before searching to confirm the index is ready.",
	}, s.getStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_plugins",
		Description: "List every registered language plugin, its extensions, and its current lifecycle state.",
	}, s.listPlugins)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Re-scan the repository (or one path within it) and bring the index up to date with disk.",
	}, s.reindex)
}

func (s *Server) symbolLookup(ctx context.Context, _ *mcp.CallToolRequest, in SymbolLookupInput) (*mcp.CallToolResult, SymbolLookupOutput, error) {
	if in.Name == "" {
		return nil, SymbolLookupOutput{}, errors.New("name is required")
	}
	kind := store.SymbolKind(in.Kind)
	if kind == "" {
		kind = store.SymbolKindAnyWild
	}
	res, err := s.facade.SymbolLookup(ctx, in.Name, kind, 0)
	if err != nil {
		return nil, SymbolLookupOutput{}, err
	}
	return nil, SymbolLookupOutput{Hits: toHitOutputs(res.Hits), Partial: res.Partial}, nil
}

func (s *Server) searchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	if in.Query == "" {
		return nil, SearchCodeOutput{}, errors.New("query is required")
	}
	rerank := dispatcher.RerankMode(in.Rerank)
	res, err := s.facade.SearchCode(ctx, in.Query, in.Semantic, in.Limit, rerank)
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}
	return nil, SearchCodeOutput{Hits: toHitOutputs(res.Hits), Degraded: res.Degraded, Partial: res.Partial}, nil
}

func (s *Server) getStatus(ctx context.Context, _ *mcp.CallToolRequest, _ GetStatusInput) (*mcp.CallToolResult, GetStatusOutput, error) {
	res, err := s.facade.GetStatus(ctx)
	if err != nil {
		return nil, GetStatusOutput{}, err
	}
	out := GetStatusOutput{
		Repositories: make([]RepositoryStatusOutput, len(res.Repositories)),
		VectorStore: VectorStoreStatusOutput{
			Enabled:   res.VectorStore.Enabled,
			Reachable: res.VectorStore.Reachable,
			ModelID:   res.VectorStore.ModelID,
		},
		Plugins: toPluginStatusOutputs(res.Plugins),
	}
	for i, r := range res.Repositories {
		out.Repositories[i] = RepositoryStatusOutput{
			ID: r.ID, Files: r.Files, Symbols: r.Symbols, LastIndexedNs: r.LastIndexedNs,
		}
	}
	return nil, out, nil
}

func (s *Server) listPlugins(ctx context.Context, _ *mcp.CallToolRequest, _ ListPluginsInput) (*mcp.CallToolResult, ListPluginsOutput, error) {
	plugins, err := s.facade.ListPlugins(ctx)
	if err != nil {
		return nil, ListPluginsOutput{}, err
	}
	return nil, ListPluginsOutput{Plugins: toPluginStatusOutputs(plugins)}, nil
}

func (s *Server) reindex(ctx context.Context, _ *mcp.CallToolRequest, in ReindexInput) (*mcp.CallToolResult, ReindexOutput, error) {
	res, err := s.facade.Reindex(ctx, in.Path, in.Force)
	if err != nil {
		return nil, ReindexOutput{}, err
	}
	out := ReindexOutput{
		Indexed:   res.Indexed,
		Unchanged: res.Unchanged,
		Skipped:   res.Skipped,
		Errored:   res.Errored,
		Errors:    make([]ReindexErrorOutput, len(res.Errors)),
	}
	for i, e := range res.Errors {
		out.Errors[i] = ReindexErrorOutput{Path: e.Path, Reason: e.Reason}
	}
	return nil, out, nil
}

func toHitOutputs(hits []store.Hit) []HitOutput {
	out := make([]HitOutput, len(hits))
	for i, h := range hits {
		out[i] = HitOutput{
			RelativePath: h.RelativePath,
			Line:         h.Line,
			EndLine:      h.EndLine,
			Snippet:      h.Snippet,
			Kind:         h.Kind,
			Signature:    h.Signature,
			Score:        h.Score,
			Source:       h.Source,
		}
	}
	return out
}

func toPluginStatusOutputs(plugins []PluginStatus) []PluginStatusOutput {
	out := make([]PluginStatusOutput, len(plugins))
	for i, p := range plugins {
		out[i] = PluginStatusOutput{Language: p.Language, Extensions: p.Extensions, State: string(p.State)}
	}
	return out
}

// Serve starts the MCP server over stdio.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
