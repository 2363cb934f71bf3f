// internal/crypto/crypto.go
//
// This package provides cryptographic functionality for sshmux.
// Host secrets (passwords and private key material) are encrypted
// with AES-256-GCM before they are written to the host catalog file.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// KEY_SIZE defines the size of the encryption key in bytes.
	// 32 bytes are used for AES-256 encryption.
	KEY_SIZE = 32
)

// Cipher represents an AES-256-GCM cipher with a specific key.
type Cipher struct {
	key []byte
}

// NewCipher creates a new Cipher instance using the provided master password.
// It ensures the password is exactly KEY_SIZE bytes long by padding or truncating.
func NewCipher(password string) *Cipher {
	if len(password) < KEY_SIZE {
		key := make([]byte, KEY_SIZE)
		copy(key, []byte(password))
		return &Cipher{key: key}
	}
	return &Cipher{key: []byte(password)[:KEY_SIZE]}
}

// Encrypt encrypts the given plaintext using AES-256-GCM.
// The nonce is prepended to the ciphertext and the whole blob is hex-encoded.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %v", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %v", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %v", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, []byte(plaintext), nil)

	combined := make([]byte, len(nonce)+len(ciphertext))
	copy(combined, nonce)
	copy(combined[len(nonce):], ciphertext)

	return hex.EncodeToString(combined), nil
}

// GenerateKeyFromPassword derives the fixed-size encryption key for a
// master password.
func GenerateKeyFromPassword(password string) []byte {
	cipher := NewCipher(password)
	return cipher.key
}

// Decrypt decrypts the given hex-encoded ciphertext using AES-256-GCM.
func (c *Cipher) Decrypt(encryptedHex string) (string, error) {
	combined, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %v", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %v", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %v", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(combined) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce := combined[:nonceSize]
	ciphertext := combined[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %v", err)
	}

	return string(plaintext), nil
}
