package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/codec"
)

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importDBCmd)
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import devices/secrets from a JSON file",
	Long: `Import devices from a JSON array. Every record must carry the
mac_address, device_name and owner keys. Records are added one by one;
a record the store rejects is reported and skipped. A FILE of "-" reads
the records from standard input.

Example file:
  [
    {"mac_address": "aa:bb:cc:dd:ee:ff", "device_name": "printer", "owner": "alice"}
  ]`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	auditLog.LogAction("import_requested", audit.String("path", path))

	c := codec.New(st, auditLog)
	var result *codec.ImportResult
	var err error
	if path == stdinPath {
		path = "standard input"
		result, err = importStdin(cmd, c)
	} else {
		result, err = c.ImportFromFile(cmd.Context(), path)
	}
	if err != nil {
		return err
	}
	reportFailures(cmd, result)
	return cli.PrintStatus(cmd.OutOrStdout(), "Imported %d of %d records from %s.", result.Added, result.Total, path)
}

// stdinPath selects standard input as the import source.
const stdinPath = "-"

func importStdin(cmd *cobra.Command, c *codec.Codec) (*codec.ImportResult, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read standard input: %w", err)
	}
	return c.Import(cmd.Context(), data)
}

var importDBCmd = &cobra.Command{
	Use:   "import-db FILE",
	Short: "Replace the database contents with a JSON file",
	Long: `Replace every record with the contents of a JSON export. The file is
validated before anything is deleted; the new records are then inserted in
a single transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		auditLog.LogAction("import_db_requested", audit.String("path", path))

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		result, err := replaceAll(cmd.Context(), path, data)
		if err != nil {
			return err
		}
		reportFailures(cmd, result)
		return cli.PrintStatus(cmd.OutOrStdout(), "Imported %d of %d records from %s.", result.Added, result.Total, path)
	},
}

// replaceAll validates data, then clears the store and loads data into it.
// Invalid input leaves the store untouched.
func replaceAll(ctx context.Context, source string, data []byte) (*codec.ImportResult, error) {
	if _, err := codec.Decode(data); err != nil {
		auditLog.LogError(audit.OpImportDB, err, audit.String("path", source))
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	if _, err := st.Clear(ctx); err != nil {
		return nil, err
	}
	return codec.New(st, auditLog).ImportOverwrite(ctx, source, data)
}

func reportFailures(cmd *cobra.Command, result *codec.ImportResult) {
	for _, f := range result.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: Could not import record %d (device_name=%s, owner=%s): %v\n",
			f.Index, f.DeviceName, f.Owner, f.Err)
	}
}
