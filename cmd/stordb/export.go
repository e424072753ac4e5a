package main

import (
	"github.com/spf13/cobra"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/codec"
)

func init() {
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export all secrets to a JSON file",
	Long: `Export every record, secret values included, to a JSON file.

WARNING: the file contains every secret in cleartext. Use
"stordb vault export" for an encrypted copy, and remove the JSON file
once it is no longer needed.`,
	Args: cobra.ExactArgs(1),
	RunE: executeExport,
}

func executeExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	auditLog.LogAction("export_requested", audit.String("path", path))

	n, err := codec.New(st, auditLog).ExportAllToFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	warn(cmd, "%s contains every secret in cleartext. Encrypt or delete it promptly.", path)
	return cli.PrintStatus(cmd.OutOrStdout(), "Exported %d records to %s.", n, path)
}
