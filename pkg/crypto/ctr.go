package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters of the Ansible Vault 1.1 scheme.
const (
	PBKDF2Iterations = 10000
	CTRSaltLength    = 32
	hmacKeyLength    = 32
	ivLength         = aes.BlockSize
)

var (
	// ErrInvalidPadding indicates PKCS#7 padding could not be removed.
	ErrInvalidPadding = errors.New("crypto: invalid padding")

	// ErrHMACMismatch indicates the ciphertext tag did not verify.
	ErrHMACMismatch = errors.New("crypto: HMAC verification failed")
)

// CTRKeys is the key material derived for one AES-CTR encryption.
type CTRKeys struct {
	Cipher []byte
	HMAC   []byte
	IV     []byte
}

// Wipe zeroes the key material.
func (k *CTRKeys) Wipe() {
	SecureWipe(k.Cipher)
	SecureWipe(k.HMAC)
	SecureWipe(k.IV)
}

// DeriveCTRKeys derives the cipher key, HMAC key, and IV from a passphrase
// with PBKDF2-SHA256.
func DeriveCTRKeys(passphrase, salt []byte) *CTRKeys {
	material := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, KeyLength+hmacKeyLength+ivLength, sha256.New)
	return &CTRKeys{
		Cipher: material[:KeyLength],
		HMAC:   material[KeyLength : KeyLength+hmacKeyLength],
		IV:     material[KeyLength+hmacKeyLength:],
	}
}

// EncryptCTR pads plaintext and encrypts it with AES-256-CTR, returning the
// ciphertext and its HMAC-SHA256 tag.
func EncryptCTR(keys *CTRKeys, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(keys.Cipher)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	padded := Pad(plaintext, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCTR(block, keys.IV).XORKeyStream(ciphertext, padded)

	return ciphertext, Sign(keys.HMAC, ciphertext), nil
}

// DecryptCTR verifies tag, then decrypts and unpads ciphertext.
func DecryptCTR(keys *CTRKeys, ciphertext, tag []byte) ([]byte, error) {
	if !Verify(keys.HMAC, ciphertext, tag) {
		return nil, ErrHMACMismatch
	}

	block, err := aes.NewCipher(keys.Cipher)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCTR(block, keys.IV).XORKeyStream(padded, ciphertext)
	return Unpad(padded, aes.BlockSize)
}

// Sign returns the HMAC-SHA256 of data.
func Sign(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify checks an HMAC-SHA256 tag in constant time.
func Verify(key, data, tag []byte) bool {
	return hmac.Equal(Sign(key, data), tag)
}

// Pad applies PKCS#7 padding. A full block is added when data is already
// aligned.
func Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// Unpad removes PKCS#7 padding.
func Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
