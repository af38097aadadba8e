package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		grep    string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the server's debug log (requires a prior --debug run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := logging.FindLogFileBySource(logging.LogSourceGo, "")
			if err != nil {
				return err
			}

			var pattern *regexp.Regexp
			if grep != "" {
				pattern, err = regexp.Compile(grep)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
			}

			viewer := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				NoColor: noColor,
			}, cmd.OutOrStdout())

			entries, err := viewer.TailMultiple(paths, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)

			if !follow {
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			entryCh := make(chan logging.LogEntry, 64)
			go func() {
				for entry := range entryCh {
					viewer.Print([]logging.LogEntry{entry})
				}
			}()
			return viewer.FollowMultiple(ctx, paths, entryCh)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep watching the log file for new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Filter by minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&grep, "grep", "", "Filter by regex pattern against the raw log line")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI color in output")
	return cmd
}
