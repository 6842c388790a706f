// Package secrets implements encryption-at-rest for channel credentials.
// Secret values (SMTP passwords, bot tokens, webhook URLs) are stored as
// base64-encoded AES-256-GCM ciphertext and decrypted just-in-time at
// dispatch. The 32-byte key is derived from a master passphrase and salt
// using Argon2id.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"certsentry/internal/types"
)

// Argon2id parameters for key derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	keyLen       = 32 // AES-256
	nonceLen     = 12 // AES-GCM standard nonce size
)

// ErrCiphertextTooShort is returned when the decoded ciphertext cannot even
// hold a nonce.
var ErrCiphertextTooShort = errors.New("secrets: ciphertext too short")

// Cipher performs AES-256-GCM encryption and decryption of channel secrets.
// It implements types.SecretCipher.
type Cipher struct {
	key []byte
}

// Compile-time assertion that Cipher implements types.SecretCipher.
var _ types.SecretCipher = (*Cipher)(nil)

// NewCipher derives the encryption key from the master passphrase and salt
// using Argon2id and returns a ready Cipher.
func NewCipher(passphrase types.SecretString, salt []byte) (*Cipher, error) {
	if passphrase.Unmask() == "" {
		return nil, errors.New("secrets: passphrase is empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("secrets: salt is empty")
	}
	key := argon2.IDKey([]byte(passphrase.Unmask()), salt, argonTime, argonMemory, argonThreads, keyLen)
	return &Cipher{key: key}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext+tag).
// Only the CRUD layer and tests encrypt; the scheduling core decrypts.
func (c *Cipher) Encrypt(plaintext types.SecretString) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: create GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext.Unmask()), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext+tag) and returns the plaintext as
// a redact-safe SecretString.
func (c *Cipher) Decrypt(ciphertext string) (types.SecretString, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}
	if len(data) < nonceLen {
		return "", ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: create GCM: %w", err)
	}

	plain, err := gcm.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}

	return types.SecretString(plain), nil
}

// GenerateSalt returns a cryptographically random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secrets: generate salt: %w", err)
	}
	return salt, nil
}
