package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brindle-dev/codalex/internal/config"
)

func newConfigCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the user configuration file",
	}

	root.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Back up the user config file, keeping the newest few backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.BackupUserConfig()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no user config to back up")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "backups",
		Short: "List config backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range backups {
				fmt.Fprintln(out, b)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config from a backup file, backing up the current one first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.RestoreUserConfig(args[0])
		},
	})

	return root
}
