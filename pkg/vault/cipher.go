package vault

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vrwmiller/stordb/pkg/crypto"
)

// Cipher is the encryption capability behind a Bridge.
type Cipher interface {
	Encrypt(plaintext, passphrase []byte) ([]byte, error)
	Decrypt(ciphertext, passphrase []byte) ([]byte, error)
}

// Cipher names accepted by NewCipher
const (
	CipherAnsible = "ansible"
	CipherSealed  = "sealed"
	CipherTool    = "tool"
)

// NewCipher returns the named cipher. tool is the external binary used by
// CipherTool.
func NewCipher(name, tool string) (Cipher, error) {
	switch strings.ToLower(name) {
	case "", CipherAnsible:
		return AnsibleCipher{}, nil
	case CipherSealed:
		return SealedCipher{}, nil
	case CipherTool:
		return NewToolCipher(tool), nil
	default:
		return nil, fmt.Errorf("vault: unknown cipher %q (want %s, %s or %s)", name, CipherAnsible, CipherSealed, CipherTool)
	}
}

const lineWidth = 80

// Header values of the two native formats
const (
	ansibleMagic   = "$ANSIBLE_VAULT"
	ansibleVersion = "1.1"
	ansibleCipher  = "AES256"

	sealedMagic   = "$STORDB_VAULT"
	sealedVersion = "1.0"
	sealedCipher  = "AES256GCM"
)

// AnsibleCipher reads and writes the Ansible Vault 1.1 format, so vault
// files can be opened with ansible-vault.
type AnsibleCipher struct{}

// Encrypt implements Cipher.
func (AnsibleCipher) Encrypt(plaintext, passphrase []byte) ([]byte, error) {
	salt, err := crypto.RandomBytes(crypto.CTRSaltLength)
	if err != nil {
		return nil, err
	}

	keys := crypto.DeriveCTRKeys(passphrase, salt)
	defer keys.Wipe()

	ciphertext, tag, err := crypto.EncryptCTR(keys, plaintext)
	if err != nil {
		return nil, err
	}

	inner := strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, "\n")
	return seal([]string{ansibleMagic, ansibleVersion, ansibleCipher}, []byte(inner)), nil
}

// Decrypt implements Cipher. Version 1.2 files, which add a vault id label
// to the header, are accepted as well.
func (AnsibleCipher) Decrypt(data, passphrase []byte) ([]byte, error) {
	header, body, err := unseal(data)
	if err != nil {
		return nil, err
	}
	if len(header) < 3 || header[0] != ansibleMagic || header[2] != ansibleCipher ||
		(header[1] != "1.1" && header[1] != "1.2") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.Join(header, ";"))
	}

	parts := strings.Split(string(body), "\n")
	if len(parts) != 3 {
		return nil, ErrMalformedCiphertext
	}
	decoded := make([][]byte, 3)
	for i, p := range parts {
		if decoded[i], err = hex.DecodeString(strings.TrimSpace(p)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
		}
	}
	salt, tag, ciphertext := decoded[0], decoded[1], decoded[2]

	keys := crypto.DeriveCTRKeys(passphrase, salt)
	defer keys.Wipe()
	return crypto.DecryptCTR(keys, ciphertext, tag)
}

// SealedCipher is stordb's own format: Argon2id key derivation and
// AES-256-GCM, hex encoded under a $STORDB_VAULT header.
type SealedCipher struct{}

// Encrypt implements Cipher.
func (SealedCipher) Encrypt(plaintext, passphrase []byte) ([]byte, error) {
	salt, err := crypto.RandomBytes(crypto.SaltLength)
	if err != nil {
		return nil, err
	}

	key := crypto.DeriveKey(passphrase, salt)
	defer crypto.SecureWipe(key)

	sealed, err := crypto.Seal(key, plaintext)
	if err != nil {
		return nil, err
	}
	return seal([]string{sealedMagic, sealedVersion, sealedCipher}, append(salt, sealed...)), nil
}

// Decrypt implements Cipher.
func (SealedCipher) Decrypt(data, passphrase []byte) ([]byte, error) {
	header, body, err := unseal(data)
	if err != nil {
		return nil, err
	}
	if len(header) != 3 || header[0] != sealedMagic || header[1] != sealedVersion || header[2] != sealedCipher {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.Join(header, ";"))
	}
	if len(body) < crypto.SaltLength {
		return nil, ErrMalformedCiphertext
	}

	key := crypto.DeriveKey(passphrase, body[:crypto.SaltLength])
	defer crypto.SecureWipe(key)
	return crypto.Open(key, body[crypto.SaltLength:])
}

// seal writes the header line followed by the hex encoded body wrapped at
// lineWidth columns.
func seal(header []string, body []byte) []byte {
	encoded := hex.EncodeToString(body)

	var b bytes.Buffer
	b.WriteString(strings.Join(header, ";"))
	b.WriteByte('\n')
	for len(encoded) > lineWidth {
		b.WriteString(encoded[:lineWidth])
		b.WriteByte('\n')
		encoded = encoded[lineWidth:]
	}
	b.WriteString(encoded)
	b.WriteByte('\n')
	return b.Bytes()
}

// unseal splits a vault file into header fields and the decoded body.
func unseal(data []byte) ([]string, []byte, error) {
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	headerLine, rest, ok := strings.Cut(text, "\n")
	if !ok || !strings.HasPrefix(headerLine, "$") {
		return nil, nil, ErrUnsupportedFormat
	}

	header := strings.Split(strings.TrimSpace(headerLine), ";")
	body, err := hex.DecodeString(strings.Join(strings.Fields(rest), ""))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return header, body, nil
}
