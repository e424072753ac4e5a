package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/internal/config"
	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/store"
)

var (
	configFile string
	cfg        *config.Config
	zlog       *zap.Logger
	auditLog   *audit.Logger
	st         *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "stordb",
	Short: "stordb is a local hardware and secrets database",
	Long: `stordb keeps device records (MAC address, device name, owner and an
optional secret) in a local SQLite file, with JSON import/export, encrypted
Ansible Vault export and a redacted audit log.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before every subcommand. It loads the config
	// and builds the audit logger and store that the commands share.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cmd, configFile)
		if err != nil {
			return err
		}
		cfg = c

		zlog, err = audit.NewZapLogger(cfg.SinkConfig())
		if err != nil {
			return err
		}
		auditLog = audit.NewLogger(zlog)
		st = store.New(cfg.DBPath, auditLog)

		auditLog.LogAction("cli_start", audit.String("command", cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlog != nil {
			_ = zlog.Sync()
		}
	},
}

// Flags for add
var (
	addType        string
	addSecret      string
	addSecretStdin bool
)

// Flags for lookup
var (
	lookupMAC    string
	lookupDevice string
	lookupOwner  string
	lookupReveal bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./stordb.yaml or user config dir)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default: stordb.sqlite3)")
	rootCmd.PersistentFlags().Bool("debug", false, "Write the audit log to stderr at debug level")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(lookupFieldCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	addCmd.Flags().StringVar(&addType, "type", store.DefaultSecretType, "Secret type")
	addCmd.Flags().StringVar(&addSecret, "secret", "", "Secret value (visible in shell history, prefer --secret-stdin)")
	addCmd.Flags().BoolVar(&addSecretStdin, "secret-stdin", false, "Read the secret value from standard input")
	addCmd.MarkFlagsMutuallyExclusive("secret", "secret-stdin")

	lookupCmd.Flags().StringVar(&lookupMAC, "mac", "", "Lookup device by MAC address")
	lookupCmd.Flags().StringVar(&lookupDevice, "device", "", "Lookup device(s) by device name")
	lookupCmd.Flags().StringVar(&lookupOwner, "owner", "", "Lookup device(s) by owner")
	lookupCmd.Flags().BoolVar(&lookupReveal, "reveal", false, "Show secret values")
	lookupFieldCmd.Flags().BoolVar(&lookupReveal, "reveal", false, "Show secret values")
}

// initCmd creates the secrets table
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		auditLog.LogAction("init_requested", audit.String("path", st.Path()))
		if err := st.Init(cmd.Context()); err != nil {
			return err
		}
		return cli.PrintStatus(cmd.OutOrStdout(), "Database initialized.")
	},
}

// addCmd adds one record
var addCmd = &cobra.Command{
	Use:   "add MAC NAME OWNER [NOTES]",
	Short: "Add a new device",
	Long: `Add a new device record. The secret value, if any, is given with
--secret or read from standard input with --secret-stdin.

Examples:
  stordb add aa:bb:cc:dd:ee:ff printer alice "2nd floor"
  printf '%s' "$WIFI_KEY" | stordb add aa:bb:cc:dd:ee:01 ap-1 bob --type wpa --secret-stdin`,
	Args: cobra.RangeArgs(3, 4),
	RunE: executeAdd,
}

func executeAdd(cmd *cobra.Command, args []string) error {
	rec := store.NewRecord{
		MACAddress:  args[0],
		DeviceName:  args[1],
		Owner:       args[2],
		SecretType:  addType,
		SecretValue: addSecret,
	}
	if len(args) == 4 {
		rec.Notes = args[3]
	}
	if addSecretStdin {
		value, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		rec.SecretValue = value
	}

	auditLog.LogAction("add_requested",
		audit.String("device_name", rec.DeviceName),
		audit.String("owner", rec.Owner),
	)
	id, err := st.Add(cmd.Context(), rec)
	if err != nil {
		return err
	}
	return cli.PrintJSON(cmd.OutOrStdout(), cli.Status{Status: fmt.Sprintf("Added device %s.", rec.DeviceName), ID: id})
}

// readSecret reads the whole input, dropping one trailing newline.
func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read secret value: %w", err)
	}
	value := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// lookupCmd finds records by MAC, device name or owner
var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Lookup devices by MAC, device name or owner",
	Long: `Lookup devices. Flags may be combined; matches are merged and each
record is printed once. Secret values are masked unless --reveal is set.`,
	Args: cobra.NoArgs,
	RunE: executeLookup,
}

func executeLookup(cmd *cobra.Command, args []string) error {
	if lookupMAC == "" && lookupDevice == "" && lookupOwner == "" {
		return fmt.Errorf("at least one of --mac, --device or --owner is required")
	}
	auditLog.LogAction("lookup_requested")

	ctx := cmd.Context()
	var results []store.Record
	if lookupMAC != "" {
		rec, err := st.LookupByMAC(ctx, lookupMAC)
		if err != nil {
			return err
		}
		if rec != nil {
			results = append(results, *rec)
		}
	}
	if lookupOwner != "" {
		recs, err := st.LookupByField(ctx, string(store.FieldOwner), lookupOwner)
		if err != nil {
			return err
		}
		results = append(results, recs...)
	}
	if lookupDevice != "" {
		recs, err := st.LookupByField(ctx, string(store.FieldDeviceName), lookupDevice)
		if err != nil {
			return err
		}
		results = append(results, recs...)
	}

	return cli.PrintRecords(cmd.OutOrStdout(), cli.DedupByID(results), lookupReveal)
}

// lookupFieldCmd finds records by any column
var lookupFieldCmd = &cobra.Command{
	Use:   "lookup-field FIELD VALUE",
	Short: "Lookup devices by any field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		auditLog.LogAction("lookup_field_requested", audit.String("field", args[0]))
		recs, err := st.LookupByField(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return cli.PrintRecords(cmd.OutOrStdout(), recs, lookupReveal)
	},
}

// updateCmd changes fields of one record
var updateCmd = &cobra.Command{
	Use:   "update ID FIELD=VALUE...",
	Short: "Update device fields",
	Long: `Update one or more fields of a device in a single statement.

Examples:
  stordb update 3 owner=bob
  stordb update 3 notes="rack 4" secret_value=n3wK3y`,
	Args: cobra.MinimumNArgs(2),
	RunE: executeUpdate,
}

func executeUpdate(cmd *cobra.Command, args []string) error {
	id, err := cli.ParseID(args[0])
	if err != nil {
		return err
	}
	changes, err := cli.ParseAssignments(args[1:])
	if err != nil {
		return err
	}

	auditLog.LogAction("update_requested", audit.Int64("id", id), audit.String("fields", strings.Join(cli.MapKeys(changes), ",")))
	if err := st.Update(cmd.Context(), id, changes); err != nil {
		return err
	}

	parts := make([]string, 0, len(changes))
	for _, field := range cli.MapKeys(changes) {
		value := changes[field]
		if audit.IsSensitive(field) {
			value = audit.Redacted
		}
		parts = append(parts, fmt.Sprintf("%s -> %s", field, value))
	}
	return cli.PrintStatus(cmd.OutOrStdout(), "Updated device %d: %s", id, strings.Join(parts, ", "))
}

// deleteCmd removes one record
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete device by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cli.ParseID(args[0])
		if err != nil {
			return err
		}
		auditLog.LogAction("delete_requested", audit.Int64("id", id))
		if err := st.Delete(cmd.Context(), id); err != nil {
			return err
		}
		return cli.PrintStatus(cmd.OutOrStdout(), "Deleted device with ID %d.", id)
	},
}

// warn prints a notice to stderr without failing the command.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
}

