package vault

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrEmptyPassphrase     = errors.New("vault: passphrase is empty")
	ErrPassphraseMismatch  = errors.New("vault: passphrases do not match")
	ErrNoTerminal          = errors.New("vault: no terminal available to prompt for a passphrase")
	ErrUnsupportedFormat   = errors.New("vault: unsupported vault format")
	ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")
)

// VaultError wraps every failure of a vault encrypt or decrypt so callers
// handle a single error kind.
type VaultError struct {
	Op   string
	Path string
	Err  error
}

func (e *VaultError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("vault: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vault: %s %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// ToolError reports a non-zero exit of the external vault tool.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("vault: %s exited with status %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("vault: %s exited with status %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// IsToolError reports whether err came from a failed external tool run.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}
