package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/dispatcher"
	"github.com/brindle-dev/codalex/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		semantic bool
		rerank   string
		limit    int
		symbol   bool
		kind     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index: lexical by default, symbol_lookup with --symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if symbol {
				k := store.SymbolKind(kind)
				if k == "" {
					k = store.SymbolKindAnyWild
				}
				res, err := a.Facade.SymbolLookup(cmd.Context(), args[0], k, limit)
				if err != nil {
					return err
				}
				printHits(cmd, res.Hits, res.Partial, false)
				return nil
			}

			res, err := a.Facade.SearchCode(cmd.Context(), args[0], semantic, limit, dispatcher.RerankMode(rerank))
			if err != nil {
				return err
			}
			printHits(cmd, res.Hits, res.Partial, res.Degraded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&semantic, "semantic", false, "Also search the vector store and fuse results")
	cmd.Flags().StringVar(&rerank, "rerank", "", "off, tfidf, external or hybrid")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default 20)")
	cmd.Flags().BoolVar(&symbol, "symbol", false, "Look up a symbol by name instead of searching code")
	cmd.Flags().StringVar(&kind, "kind", "", "Restrict symbol lookup to this kind")
	return cmd
}

func printHits(cmd *cobra.Command, hits []store.Hit, partial, degraded bool) {
	for _, h := range hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d  %.3f  %s\n", h.RelativePath, h.Line, h.Score, h.Snippet)
	}
	if partial {
		fmt.Fprintln(cmd.OutOrStdout(), "(partial: query timed out before exhausting all sources)")
	}
	if degraded {
		fmt.Fprintln(cmd.OutOrStdout(), "(degraded: semantic search unavailable, lexical results only)")
	}
}
