package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/codec"
	"github.com/vrwmiller/stordb/pkg/crypto"
	"github.com/vrwmiller/stordb/pkg/vault"
)

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultExportCmd)
	vaultCmd.AddCommand(vaultImportCmd)

	vaultCmd.PersistentFlags().String("cipher", "", "Vault cipher: ansible, sealed or tool (default: ansible)")
	_ = vaultCmd.RegisterFlagCompletionFunc("cipher", completeCipher)
}

// vaultCmd is the parent command for encrypted export and import
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Encrypted export and import",
	Long: `Export the database into an encrypted vault file and restore it again.

The passphrase is read from $VAULT_PASSWORD (see vault.password_env) or
prompted for on the terminal. Ciphers:
  ansible  Ansible Vault 1.1 format, readable by "ansible-vault view" (default)
  sealed   stordb format using Argon2id and AES-256-GCM
  tool     runs the external ansible-vault binary (see vault.tool)`,
}

var vaultExportCmd = &cobra.Command{
	Use:   "export [PATH]",
	Short: "Export all secrets to an encrypted vault file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  executeVaultExport,
}

func executeVaultExport(cmd *cobra.Command, args []string) error {
	path := vaultPath(args)
	auditLog.LogAction("vault_export_requested", audit.String("path", path), audit.String("cipher", cfg.Vault.Cipher))

	bridge, err := newBridge(cmd, true)
	if err != nil {
		return err
	}

	data, n, err := codec.New(st, auditLog).Export(cmd.Context())
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(data)

	if err := bridge.Encrypt(data, path); err != nil {
		return toolFailure(cmd, "encryption", err)
	}
	return cli.PrintStatus(cmd.OutOrStdout(), "Exported and encrypted %d records to %s.", n, path)
}

var vaultImportCmd = &cobra.Command{
	Use:   "import [PATH]",
	Short: "Replace the database contents with an encrypted vault file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  executeVaultImport,
}

func executeVaultImport(cmd *cobra.Command, args []string) error {
	path := vaultPath(args)
	auditLog.LogAction("vault_import_requested", audit.String("path", path), audit.String("cipher", cfg.Vault.Cipher))

	bridge, err := newBridge(cmd, false)
	if err != nil {
		return err
	}

	data, err := bridge.Decrypt(path)
	if err != nil {
		return toolFailure(cmd, "decryption", err)
	}
	defer crypto.SecureWipe(data)

	result, err := replaceAll(cmd.Context(), path, data)
	if err != nil {
		return err
	}
	reportFailures(cmd, result)
	return cli.PrintStatus(cmd.OutOrStdout(), "Decrypted and imported %d of %d records from %s.", result.Added, result.Total, path)
}

func vaultPath(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Vault.Path
}

func newBridge(cmd *cobra.Command, export bool) (*vault.Bridge, error) {
	c, err := vault.NewCipher(cfg.Vault.Cipher, cfg.Vault.Tool)
	if err != nil {
		return nil, err
	}
	return vault.NewBridge(c, passphraseProvider(cmd, export), auditLog), nil
}

// passphraseProvider asks twice for an export passphrase and warns when a
// typed one is weak.
func passphraseProvider(cmd *cobra.Command, export bool) vault.PassphraseProvider {
	p := &vault.EnvPrompt{
		Env:     cfg.Vault.PasswordEnv,
		Confirm: export,
		Out:     cmd.ErrOrStderr(),
	}
	if !export {
		return p
	}
	return vault.PassphraseFunc(func() (vault.Passphrase, error) {
		pass, err := p.Passphrase()
		if err != nil {
			return pass, err
		}
		if pass.Source == vault.SourcePrompt {
			if s := vault.CheckStrength(pass.Value); s < vault.StrengthGood {
				warn(cmd, "passphrase strength is %s; consider 14 or more characters.", s)
			}
		}
		return pass, nil
	})
}

// toolFailure prints a failed external tool run and returns nil. Every
// other error is returned as is.
func toolFailure(cmd *cobra.Command, what string, err error) error {
	if !vault.IsToolError(err) {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: Vault %s failed. See log for details (session %s).\n", what, auditLog.SessionID())
	return nil
}
