// Package crypto provides field-level encryption for sensitive record text.
// Fields are sealed with XChaCha20-Poly1305 under a per-owner key derived
// via HKDF-SHA256 from a root key, which is itself stretched from the
// configured secret with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Prefix marks an encrypted field value.
const Prefix = "enc:v1:"

const (
	keyLen = 32

	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

var rootSalt = []byte("medadhere/field-cipher/v1")

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the secret is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// FieldCipher encrypts and decrypts individual string fields.
type FieldCipher struct {
	root []byte
}

// NewFieldCipher derives the root key from secret.
func NewFieldCipher(secret string) (*FieldCipher, error) {
	if secret == "" {
		return nil, ErrInvalidKey
	}
	return &FieldCipher{
		root: argon2.IDKey([]byte(secret), rootSalt, argonTime, argonMemory, argonThreads, keyLen),
	}, nil
}

// ownerKey derives the per-owner key via HKDF-SHA256.
func (c *FieldCipher) ownerKey(ownerID string) ([]byte, error) {
	r := hkdf.New(sha256.New, c.root, nil, []byte("owner:"+ownerID))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// aad binds a ciphertext to its owner and field name.
func aad(ownerID, field string) []byte {
	return []byte(ownerID + "\x00" + field)
}

// Encrypt seals plaintext for ownerID's field. Empty strings stay empty.
func (c *FieldCipher) Encrypt(ownerID, field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := c.ownerKey(ownerID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), aad(ownerID, field))...)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Values without Prefix are
// returned unchanged so records written before encryption stay readable.
func (c *FieldCipher) Decrypt(ownerID, field, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil || len(blob) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidCiphertext
	}

	key, err := c.ownerKey(ownerID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ct, aad(ownerID, field))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the cipher prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
