// Package crypto seals and opens credential field payloads. Credentials are
// stored as an AEAD ciphertext of the JSON-encoded field map; the nonce is
// prepended to the sealed blob.
package crypto

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tokenwarden/tokenwarden/internal/models"
)

// Codec encrypts and decrypts credential fields with XChaCha20-Poly1305.
type Codec struct {
	key []byte
}

// NewCodec creates a codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// NewCodecFromHex creates a codec from a hex-encoded 32-byte key, the form
// the key takes in configuration.
func NewCodecFromHex(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	return NewCodec(key)
}

// Encrypt seals the field map into an opaque blob.
func (c *Codec) Encrypt(fields models.Fields) ([]byte, error) {
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential fields: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := crand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed blob back into a field map.
func (c *Codec) Decrypt(blob []byte) (models.Fields, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short: %d bytes", len(blob))
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed blob: %w", err)
	}

	var fields models.Fields
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode credential fields: %w", err)
	}
	return fields, nil
}

// GenerateKey returns a fresh random key in hex form, suitable for config.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := crand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
