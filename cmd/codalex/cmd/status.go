package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report indexed repositories, vector store reachability, and plugin state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.Facade.GetStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range res.Repositories {
				fmt.Fprintf(out, "repository %s: files=%d symbols=%d last_indexed_ns=%d\n", r.ID, r.Files, r.Symbols, r.LastIndexedNs)
			}
			fmt.Fprintf(out, "vector_store: enabled=%v reachable=%v model_id=%s\n",
				res.VectorStore.Enabled, res.VectorStore.Reachable, res.VectorStore.ModelID)
			for _, p := range res.Plugins {
				fmt.Fprintf(out, "plugin %s: extensions=%v state=%s\n", p.Language, p.Extensions, p.State)
			}
			return nil
		},
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List every registered language plugin and its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			plugins, err := a.Facade.ListPlugins(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range plugins {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: extensions=%v state=%s unavailable_until_ns=%d\n",
					p.Language, p.Extensions, p.State, p.UnavailableUntilNs)
			}
			return nil
		},
	}
}
