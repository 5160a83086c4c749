// Package credentials provides the engine's credential accessor contract
// (GetDecryptedByID / GetDecryptedByName) plus a default in-process
// store whose values are encrypted at rest.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Encryptor seals/opens credential secrets with AES-256-GCM, deriving its
// key from a passphrase via PBKDF2; a raw key cannot be supplied.
type Encryptor struct {
	key []byte
}

// EncryptorConfig controls key derivation.
type EncryptorConfig struct {
	Passphrase string
	Salt       string
	Iterations int
}

// DefaultEncryptorConfig returns sane PBKDF2 defaults.
func DefaultEncryptorConfig() EncryptorConfig {
	return EncryptorConfig{Salt: "workflow-engine-default-salt", Iterations: 100000}
}

// NewEncryptor derives a 32-byte AES-256 key from cfg.
func NewEncryptor(cfg EncryptorConfig) (*Encryptor, error) {
	salt := []byte(cfg.Salt)
	if len(salt) == 0 {
		salt = []byte("workflow-engine-default-salt")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100000
	}
	key := pbkdf2.Key([]byte(cfg.Passphrase), salt, iterations, 32, sha256.New)
	return &Encryptor{key: key}, nil
}

// EncryptString encrypts plaintext, returning a base64-encoded ciphertext.
func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func (e *Encryptor) DecryptString(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
