package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultTool is the external vault binary used by ToolCipher.
const DefaultTool = "ansible-vault"

// Runner executes name with args, feeding stdin, and returns stdout.
// A non-zero exit is reported as *ToolError.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// ToolCipher delegates to the ansible-vault CLI. The passphrase is passed on
// stdin, never on the command line.
type ToolCipher struct {
	Tool string
	Run  Runner
}

// NewToolCipher returns a ToolCipher running tool, or DefaultTool when empty.
func NewToolCipher(tool string) *ToolCipher {
	if tool == "" {
		tool = DefaultTool
	}
	return &ToolCipher{Tool: tool, Run: ExecRunner}
}

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ToolError{
				Tool:     name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return nil, fmt.Errorf("vault: failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Encrypt implements Cipher. The plaintext is staged in a private temporary
// directory that is removed before returning.
func (c *ToolCipher) Encrypt(plaintext, passphrase []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "stordb-vault-*")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "plaintext")
	out := filepath.Join(dir, "ciphertext")
	if err := os.WriteFile(in, plaintext, FileMode); err != nil {
		return nil, fmt.Errorf("vault: failed to stage plaintext: %w", err)
	}

	if _, err := c.run(passphrase, "encrypt", in, "--output", out, "--vault-password-file", "-"); err != nil {
		return nil, err
	}

	ciphertext, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s output: %w", c.Tool, err)
	}
	return ciphertext, nil
}

// Decrypt implements Cipher.
func (c *ToolCipher) Decrypt(ciphertext, passphrase []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "stordb-vault-*")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "ciphertext")
	if err := os.WriteFile(in, ciphertext, FileMode); err != nil {
		return nil, fmt.Errorf("vault: failed to stage ciphertext: %w", err)
	}

	return c.run(passphrase, "view", in, "--vault-password-file", "-")
}

func (c *ToolCipher) run(passphrase []byte, args ...string) ([]byte, error) {
	run := c.Run
	if run == nil {
		run = ExecRunner
	}
	return run(context.Background(), passphrase, c.Tool, args...)
}
