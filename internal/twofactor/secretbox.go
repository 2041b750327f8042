package twofactor

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// secretBoxSalt is the fixed HKDF salt for deriving the at-rest encryption
// key from the application master secret. It is part of the storage format:
// changing it invalidates every encrypted secret.
const secretBoxSalt = "attestia/twofactor/secretbox/v1"

// SecretBox encrypts two-factor secrets at rest with an AEAD cipher keyed
// from the shared application secret.
type SecretBox struct {
	key []byte
}

// NewSecretBox derives the box key from the master secret.
func NewSecretBox(masterSecret string) (*SecretBox, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("master secret is required")
	}
	r := hkdf.New(sha256.New, []byte(masterSecret), []byte(secretBoxSalt), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive secret-box key: %w", err)
	}
	return &SecretBox{key: key}, nil
}

// Encrypt seals plaintext; the random nonce is prepended to the ciphertext.
func (b *SecretBox) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (b *SecretBox) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open secret box: %w", err)
	}
	return plaintext, nil
}
