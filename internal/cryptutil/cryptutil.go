// Package cryptutil encrypts and decrypts IMAP/SMTP credentials at rest
// using AES-256-GCM, keyed from the process's password encryption key.
//
// This mirrors the cipher the teacher lineage already uses for local
// credential storage; only the OS-keyring storage layer is dropped in favor
// of a database column, not the cipher itself.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Credentials is the plaintext shape encrypted into Account.EncryptedCreds.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Cipher encrypts and decrypts Credentials with a single process-wide key.
type Cipher struct {
	key [32]byte
}

// NewCipher derives a 256-bit AES key from the supplied secret via SHA-256.
// The secret is the PASSWORD_ENCRYPTION_KEY environment value and may be of
// any length.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("cryptutil: empty encryption secret")
	}
	return &Cipher{key: sha256.Sum256([]byte(secret))}, nil
}

// Encrypt serializes and seals Credentials, returning nonce||ciphertext.
func (c *Cipher) Encrypt(creds Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: marshal credentials: %w", err)
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptutil: generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt and unmarshals it back into
// Credentials.
func (c *Cipher) Decrypt(blob []byte) (Credentials, error) {
	var creds Credentials

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return creds, fmt.Errorf("cryptutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return creds, fmt.Errorf("cryptutil: new gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return creds, errors.New("cryptutil: ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return creds, fmt.Errorf("cryptutil: decrypt: %w", err)
	}

	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("cryptutil: unmarshal credentials: %w", err)
	}
	return creds, nil
}
