package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
)

// Vault encrypts values at rest using AES-256-GCM
type Vault struct {
	gcm    cipher.AEAD
	logger *slog.Logger
}

// New creates a vault from a 32-byte key
func New(key string, logger *slog.Logger) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{gcm: gcm, logger: logger.With("component", "vault")}, nil
}

// Encrypt encrypts plaintext. Empty input stays empty.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := v.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt.
// When decryption fails the input is returned unchanged: values written
// before encryption was enabled and corrupt ciphertext are not told apart.
func (v *Vault) Decrypt(encrypted string) string {
	if encrypted == "" {
		return ""
	}

	plaintext, err := v.open(encrypted)
	if err != nil {
		v.logger.Warn("decrypt failed, returning input unchanged", "error", err)
		return encrypted
	}
	return plaintext
}

func (v *Vault) open(encrypted string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}

	if len(data) < v.gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:v.gcm.NonceSize()], data[v.gcm.NonceSize():]
	plaintext, err := v.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
