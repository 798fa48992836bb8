package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"pgscope/internal/core"
)

// Vault encrypts instance passwords at rest with AES-256-GCM. The key
// is derived from the configured passphrase with PBKDF2 so the same
// passphrase always opens previously stored credentials.
type Vault struct {
	key []byte
}

// The salt is a fixed application constant: key derivation has to be
// reproducible across restarts for stored ciphertexts to stay readable.
var vaultSalt = []byte("pgscope.credential-vault.v1")

const vaultKDFIterations = 4096

// NewVault derives the encryption key from the passphrase.
func NewVault(passphrase string) (*Vault, error) {
	if len(passphrase) < 16 {
		return nil, errors.New("vault passphrase must be at least 16 characters")
	}
	return &Vault{key: pbkdf2.Key([]byte(passphrase), vaultSalt, vaultKDFIterations, 32, sha256.New)}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Every failure mode —
// bad base64, truncated data, wrong key — comes back as
// core.ErrInvalidCredential so callers can treat them uniformly.
func (v *Vault) Decrypt(cryptoText string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidCredential, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", core.ErrInvalidCredential)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidCredential, err)
	}

	return string(plaintext), nil
}
