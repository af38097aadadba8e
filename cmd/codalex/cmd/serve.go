package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/facade"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the five tool operations over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return facade.NewServer(a.Facade).Serve(cmd.Context())
		},
	}
}
