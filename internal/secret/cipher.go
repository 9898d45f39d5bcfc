// Package secret seals stored connection passwords at rest.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "enc:v1:"

var (
	ErrNoKey      = errors.New("sealed secret found but no encryption key is configured")
	ErrInvalidKey = errors.New("encryption key must be 32 bytes, hex or base64 encoded")
	ErrCorrupt    = errors.New("sealed secret is corrupt or was sealed with a different key")
)

// Cipher seals and opens secrets with XChaCha20-Poly1305. A nil *Cipher is
// valid and stores secrets unchanged.
type Cipher struct {
	key []byte
}

// ParseKey decodes a 32-byte key given as hex or standard base64.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if b, err := hex.DecodeString(encoded); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// NewCipher returns nil when encoded is empty.
func NewCipher(encoded string) (*Cipher, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := ParseKey(encoded)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key}, nil
}

// GenerateKey returns a fresh hex-encoded key.
func GenerateKey() (string, error) {
	b := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func (c *Cipher) Seal(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open returns unsealed values unchanged so plaintext rows written before a
// key was configured stay readable.
func (c *Cipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoKey
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrCorrupt
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCorrupt
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plaintext), nil
}
