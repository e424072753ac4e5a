package main

import (
	"github.com/spf13/cobra"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/backup"
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup [PATH]",
	Short: "Backup the database file",
	Long: `Copy the database file to PATH, or to a timestamped file next to it.

Examples:
  # Backup to stordb.sqlite3.backup_20240101_120000
  stordb backup

  # Backup to a chosen file
  stordb backup /mnt/usb/stordb.sqlite3`,
	Args: cobra.MaximumNArgs(1),
	RunE: executeBackup,
}

func executeBackup(cmd *cobra.Command, args []string) error {
	opts := backup.BackupOptions{Audit: auditLog}
	if len(args) == 1 {
		opts.Dest = args[0]
	}
	auditLog.LogAction("backup_requested", audit.String("dest", opts.Dest))

	dest, err := backup.Backup(cfg.DBPath, opts)
	if err != nil {
		return err
	}
	return cli.PrintStatus(cmd.OutOrStdout(), "Database backed up to %s.", dest)
}

var restoreCmd = &cobra.Command{
	Use:   "restore PATH",
	Short: "Restore the database from a backup file",
	Long: `Replace the database file with the backup at PATH. The backup must
be a SQLite database. The current database is overwritten; take a backup
first if it may still be needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		auditLog.LogAction("restore_requested", audit.String("source", src))

		if err := backup.Restore(src, cfg.DBPath, backup.RestoreOptions{Audit: auditLog}); err != nil {
			return err
		}
		return cli.PrintStatus(cmd.OutOrStdout(), "Database restored from %s to %s.", src, cfg.DBPath)
	},
}
