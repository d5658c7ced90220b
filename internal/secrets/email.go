// Package secrets encrypts editor email addresses for storage. Adverts keep
// the address only to answer "who touched this last"; it stays ciphertext at
// rest and is decrypted on demand for display.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Placeholder is rendered whenever the stored value is absent or can no
// longer be decrypted (key rotation, deleted account).
const Placeholder = "Deleted user"

type EmailCipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewEmailCipher builds a cipher over a 32-byte key.
func NewEmailCipher(key []byte) (*EmailCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("email cipher key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init email cipher: %w", err)
	}
	return &EmailCipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns
// base64(nonce || ciphertext). An empty plaintext encrypts to an empty
// string so absent editors stay absent.
func (c *EmailCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *EmailCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// DecryptOrPlaceholder never fails: absent or broken values render as the
// placeholder instead of surfacing an error to the viewer.
func (c *EmailCipher) DecryptOrPlaceholder(ciphertext string) string {
	if strings.TrimSpace(ciphertext) == "" {
		return Placeholder
	}
	plain, err := c.Decrypt(ciphertext)
	if err != nil || plain == "" {
		return Placeholder
	}
	return plain
}
