package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/index"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var paths []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index (or reconcile) the repository against disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.Index.IndexRepository(cmd.Context(), a.RepositoryID, a.RepoRoot, index.IndexOptions{
				Force: force,
				Paths: paths,
			})
			if err != nil {
				return fmt.Errorf("index repository: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed=%d unchanged=%d skipped=%d errored=%d\n",
				result.Indexed, result.Unchanged, result.Skipped, result.Errored)
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s (%s)\n", e.RelativePath, e.Reason, e.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-parse every file even if its content hash is unchanged")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Restrict indexing to these repository-relative paths")
	return cmd
}
