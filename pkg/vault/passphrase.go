package vault

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// DefaultPassphraseEnv is checked before prompting.
const DefaultPassphraseEnv = "VAULT_PASSWORD"

// Passphrase sources
const (
	SourceEnvironment = "environment"
	SourcePrompt      = "prompt"
	SourceStatic      = "static"
)

// Passphrase is a resolved vault passphrase and where it came from.
type Passphrase struct {
	Value  []byte
	Source string
}

// PassphraseProvider resolves the passphrase for one vault operation.
type PassphraseProvider interface {
	Passphrase() (Passphrase, error)
}

// PassphraseFunc adapts a function to PassphraseProvider.
type PassphraseFunc func() (Passphrase, error)

// Passphrase calls f.
func (f PassphraseFunc) Passphrase() (Passphrase, error) {
	return f()
}

// Static always returns the same passphrase.
type Static []byte

// Passphrase returns a copy of s so callers may wipe it.
func (s Static) Passphrase() (Passphrase, error) {
	if len(s) == 0 {
		return Passphrase{}, ErrEmptyPassphrase
	}
	return Passphrase{Value: append([]byte(nil), s...), Source: SourceStatic}, nil
}

// EnvPrompt reads the passphrase from an environment variable, falling back
// to a no-echo terminal prompt when the variable is unset or empty.
type EnvPrompt struct {
	// Env is the variable name. Defaults to DefaultPassphraseEnv.
	Env string
	// Prompt is written to Out before reading.
	Prompt string
	// Confirm asks twice and requires both entries to match.
	Confirm bool
	// Out receives prompts. Defaults to os.Stderr.
	Out io.Writer

	// lookupEnv and readPassword are swapped out in tests.
	lookupEnv    func(string) (string, bool)
	readPassword func() ([]byte, error)
}

// Passphrase resolves the passphrase.
func (p *EnvPrompt) Passphrase() (Passphrase, error) {
	env := p.Env
	if env == "" {
		env = DefaultPassphraseEnv
	}
	lookup := p.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(env); ok && v != "" {
		return Passphrase{Value: []byte(v), Source: SourceEnvironment}, nil
	}

	value, err := p.prompt()
	if err != nil {
		return Passphrase{}, err
	}
	return Passphrase{Value: value, Source: SourcePrompt}, nil
}

func (p *EnvPrompt) prompt() ([]byte, error) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	read := p.readPassword
	if read == nil {
		read = readTerminal
	}
	label := p.Prompt
	if label == "" {
		label = "Vault password: "
	}

	fmt.Fprint(out, label)
	first, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, ErrEmptyPassphrase
	}

	if p.Confirm {
		fmt.Fprint(out, "Confirm vault password: ")
		second, err := read()
		fmt.Fprintln(out)
		if err != nil {
			return nil, err
		}
		if string(first) != string(second) {
			return nil, ErrPassphraseMismatch
		}
	}
	return first, nil
}

func readTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNoTerminal
	}
	pw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read passphrase: %w", err)
	}
	return pw, nil
}
