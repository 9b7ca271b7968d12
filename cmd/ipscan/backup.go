package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/HerbHall/ipscan/internal/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the database and config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = fmt.Sprintf("ipscan-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
			}
			if err := backup.Backup(cmd.Context(), a.settings.Store.Path, a.configPath, output); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: ipscan-backup-{timestamp}.tar.gz)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		dir   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "restore ARCHIVE",
		Short: "Restore a backup archive",
		Long: `Extract a backup archive. The database is restored as ipscan.db; point
store.path at it or rename it before starting the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = filepath.Dir(a.settings.Store.Path)
			}
			written, err := backup.Restore(cmd.Context(), args[0], dir, force)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "target directory (default: directory of store.path)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
