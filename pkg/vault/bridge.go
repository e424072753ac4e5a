// Package vault encrypts and decrypts opaque blobs, typically the JSON
// export of the record store, under a caller-supplied passphrase.
//
// The cryptographic transform is a Cipher capability and the passphrase
// comes from a PassphraseProvider, so both can be replaced in tests. Every
// failure surfaces as *VaultError.
package vault

import (
	"fmt"
	"os"

	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/crypto"
)

// Constants
const (
	DefaultPath = "vault.ansible"
	FileMode    = 0600
)

// Bridge moves blobs between memory and encrypted vault files.
type Bridge struct {
	cipher     Cipher
	passphrase PassphraseProvider
	audit      *audit.Logger
}

// NewBridge creates a Bridge. A nil cipher selects AnsibleCipher and a nil
// provider selects EnvPrompt.
func NewBridge(c Cipher, p PassphraseProvider, logger *audit.Logger) *Bridge {
	if c == nil {
		c = AnsibleCipher{}
	}
	if p == nil {
		p = &EnvPrompt{}
	}
	if logger == nil {
		logger = audit.Nop()
	}
	return &Bridge{cipher: c, passphrase: p, audit: logger}
}

// Encrypt encrypts plaintext and writes the result to path. The file is
// only created once encryption has succeeded.
func (b *Bridge) Encrypt(plaintext []byte, path string) (err error) {
	fields := []audit.Field{audit.String("path", path), audit.Int("length", len(plaintext))}
	b.audit.LogAction(audit.OpVaultEncrypt, fields...)

	var pass Passphrase
	defer func() {
		if err != nil {
			b.audit.LogError(audit.OpVaultEncrypt, err, append(fields, audit.Secret("passphrase", string(pass.Value)))...)
		}
		crypto.SecureWipe(pass.Value)
	}()
	defer recoverVault("encrypt", path, &err)

	pass, err = b.resolve(path)
	if err != nil {
		return &VaultError{Op: "encrypt", Path: path, Err: err}
	}

	ciphertext, err := b.cipher.Encrypt(plaintext, pass.Value)
	if err != nil {
		return &VaultError{Op: "encrypt", Path: path, Err: err}
	}

	if err := os.WriteFile(path, ciphertext, FileMode); err != nil {
		return &VaultError{Op: "encrypt", Path: path, Err: fmt.Errorf("failed to write vault file: %w", err)}
	}

	b.audit.LogSuccess(audit.OpVaultEncrypt, append(fields, audit.Int("ciphertext_length", len(ciphertext)))...)
	return nil
}

// Decrypt reads path and returns the decrypted blob. A wrong passphrase,
// a corrupt file and any fault inside the cipher are all reported as
// *VaultError.
func (b *Bridge) Decrypt(path string) (plaintext []byte, err error) {
	b.audit.LogAction(audit.OpVaultDecrypt, audit.String("path", path))

	var pass Passphrase
	defer func() {
		if err != nil {
			plaintext = nil
			b.audit.LogError(audit.OpVaultDecrypt, err,
				audit.String("path", path),
				audit.Secret("passphrase", string(pass.Value)),
			)
		}
		crypto.SecureWipe(pass.Value)
	}()
	defer recoverVault("decrypt", path, &err)

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, &VaultError{Op: "decrypt", Path: path, Err: err}
	}

	pass, err = b.resolve(path)
	if err != nil {
		return nil, &VaultError{Op: "decrypt", Path: path, Err: err}
	}

	plaintext, err = b.cipher.Decrypt(ciphertext, pass.Value)
	if err != nil {
		return nil, &VaultError{Op: "decrypt", Path: path, Err: err}
	}

	b.audit.LogSuccess(audit.OpVaultDecrypt, audit.String("path", path), audit.Int("length", len(plaintext)))
	return plaintext, nil
}

func (b *Bridge) resolve(path string) (Passphrase, error) {
	pass, err := b.passphrase.Passphrase()
	if err != nil {
		return Passphrase{}, err
	}
	if len(pass.Value) == 0 {
		return Passphrase{}, ErrEmptyPassphrase
	}
	b.audit.LogSuccess(audit.OpVaultPassphrase, audit.String("path", path), audit.String("source", pass.Source))
	return pass, nil
}

// recoverVault turns a panic inside a cipher into a VaultError.
func recoverVault(op, path string, err *error) {
	if r := recover(); r != nil {
		*err = &VaultError{Op: op, Path: path, Err: fmt.Errorf("internal error: %v", r)}
	}
}
