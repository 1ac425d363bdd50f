// Package secret seals marketplace tokens before they are written to the credential store.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks values produced by Seal. Values without it are returned unchanged by Open
// so rows written before encryption was enabled stay readable.
const sealedPrefix = "v1:"

var (
	// ErrInvalidKey is returned when the key is not chacha20poly1305.KeySize bytes
	ErrInvalidKey = errors.New("secret: key must be 32 bytes")
	// ErrMalformed is returned when a sealed value cannot be decoded or authenticated
	ErrMalformed = errors.New("secret: malformed sealed value")
)

// TokenCipher seals and opens token strings with XChaCha20-Poly1305.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a raw 32 byte key
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// NewTokenCipherFromBase64 creates a cipher from a base64 encoded key.
// An empty key returns a nil cipher, which stores tokens in plaintext.
func NewTokenCipherFromBase64(encoded string) (*TokenCipher, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return NewTokenCipher(key)
}

// Seal encrypts plaintext. The empty string and a nil cipher pass through.
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if c == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal
func (c *TokenCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if c == nil {
		return "", fmt.Errorf("%w: no key configured", ErrMalformed)
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < c.aead.NonceSize() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}
