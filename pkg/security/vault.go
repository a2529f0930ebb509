package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrVaultCiphertext signals a truncated or tampered sealed code.
var ErrVaultCiphertext = fmt.Errorf("invalid sealed code")

// CodeVault encrypts raw delivery codes at rest so the record can be shown
// back to the issuing buyer without the raw value ever becoming a lookup key.
type CodeVault struct {
	key []byte
}

// NewCodeVault accepts a 32-byte key encoded as hex or base64.
func NewCodeVault(encodedKey string) (*CodeVault, error) {
	key, err := decodeVaultKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &CodeVault{key: key}, nil
}

// Seal encrypts the raw code and prepends the nonce.
func (v *CodeVault) Seal(rawCode string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(rawCode), nil), nil
}

// Open decrypts a sealed code produced by Seal.
func (v *CodeVault) Open(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrVaultCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrVaultCiphertext
	}
	return string(plain), nil
}

func decodeVaultKey(encoded string) ([]byte, error) {
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	return nil, fmt.Errorf("vault key must decode to %d bytes", chacha20poly1305.KeySize)
}
