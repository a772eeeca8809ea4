package credential

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

// pbkdf2Salt is fixed so the same passphrase always derives the same key,
// matching the reference implementation's encryption module. Rotating the
// passphrase requires re-encrypting every stored credential.
var pbkdf2Salt = []byte("nexusgate-credential-salt-v1")

const pbkdf2Iterations = 100_000

// Cipher encrypts and decrypts credential key material at rest using
// AES-256-GCM with a key derived from the operator-supplied passphrase.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256-GCM cipher from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), pbkdf2Salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initializing GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns a base64-encoded nonce||ciphertext suitable for storage.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plaintext), nil
}

// Mask returns a display-safe form of a secret: all but the last
// visibleChars characters replaced with asterisks. A secret of
// visibleChars characters or fewer is returned as "***".
func Mask(secret string, visibleChars int) string {
	if len(secret) <= visibleChars {
		return "***"
	}
	hidden := len(secret) - visibleChars
	masked := make([]byte, hidden)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + secret[len(secret)-visibleChars:]
}
