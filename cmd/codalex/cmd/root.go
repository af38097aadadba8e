// Package cmd provides the CLI commands for codalex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/facade"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/logging"
	"github.com/brindle-dev/codalex/pkg/version"
)

// Debug logging flag. Profiling flags (CPU/heap/trace) are intentionally
// absent: internal/profiling does not exist in this module and nothing
// calls for them as a CLI surface.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codalex CLI.
func NewRootCmd() *cobra.Command {
	var force bool

	root := &cobra.Command{
		Use:   "codalex",
		Short: "Local-first code intelligence engine",
		Long: `codalex indexes a repository for symbol lookup, lexical (BM25) and
semantic code search, and exposes them over MCP so an AI coding
assistant can query them directly.

Just run 'codalex' in your project directory to get started: it finds
the repository root, indexes it if needed, and serves over stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), force)
		},
	}

	root.SetVersionTemplate("codalex version {{.Version}}\n")
	root.Flags().BoolVar(&force, "reindex", false, "Force reindex even if an index already exists")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codalex/logs/")

	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newServeCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newPluginsCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// servesOverStdio reports whether cmd ends up calling facade.Server.Serve,
// which claims stdout exclusively for MCP JSON-RPC: the bare "codalex"
// smart-default path and the explicit "serve" subcommand both do.
func servesOverStdio(cmd *cobra.Command) bool {
	return cmd.Name() == "serve" || cmd.Name() == "codalex"
}

func startLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	if servesOverStdio(cmd) {
		cleanup, err := logging.SetupMCPModeWithLevel("debug")
		if err != nil {
			return fmt.Errorf("setup mcp-mode debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.Info("debug logging enabled (mcp mode)", slog.String("log_file", logging.DefaultLogPath()))
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the "it just works" flow: find the project
// root, index it if missing or if force is set, then serve over stdio.
func runSmartDefault(ctx context.Context, force bool) error {
	a, err := openApp(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Store.RepositoryStats(ctx, a.RepositoryID)
	if err != nil {
		return fmt.Errorf("repository stats: %w", err)
	}

	if force || stats.Files == 0 {
		slog.Info("indexing repository", slog.String("root", a.RepoRoot))
		result, err := a.Index.IndexRepository(ctx, a.RepositoryID, a.RepoRoot, index.IndexOptions{Force: force})
		if err != nil {
			return fmt.Errorf("index repository: %w", err)
		}
		slog.Info("index complete",
			slog.Int("indexed", result.Indexed),
			slog.Int("unchanged", result.Unchanged),
			slog.Int("skipped", result.Skipped),
			slog.Int("errored", result.Errored))
	}

	return facade.NewServer(a.Facade).Serve(ctx)
}
