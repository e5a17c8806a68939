// Package cryptoutil seals webhook signing secrets at rest.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sealer encrypts short secrets bound to an owning record. The binding string is used as
// GCM additional data, so a ciphertext copied onto another row fails to open.
type Sealer interface {
	Seal(plaintext []byte, binding string) (string, error)
	Open(ciphertext, binding string) ([]byte, error)
}

const (
	prefixGCM  = "gcm1:"
	prefixNoop = "noop:"
	keyLen     = 32
)

var (
	// ErrKeyLength is returned when the configured key does not decode to 32 bytes.
	ErrKeyLength = errors.New("encryption key must decode to 32 bytes")
	// ErrUnknownFormat is returned for ciphertexts without a recognised prefix.
	ErrUnknownFormat = errors.New("unknown ciphertext format")
)

// ParseKey accepts a 32-byte key encoded as hex (64 chars) or standard base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == hex.EncodedLen(keyLen) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != keyLen {
		return nil, ErrKeyLength
	}
	return b, nil
}

// GCMSealer implements Sealer with AES-256-GCM.
type GCMSealer struct {
	aead cipher.AEAD
}

// NewGCMSealer constructs a sealer from a 32-byte key.
func NewGCMSealer(key []byte) (*GCMSealer, error) {
	if len(key) != keyLen {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &GCMSealer{aead: aead}, nil
}

// Seal encrypts plaintext with a random nonce and returns prefix||base64(nonce||ciphertext).
func (s *GCMSealer) Seal(plaintext []byte, binding string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, []byte(binding))
	return prefixGCM + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Noop-sealed values are accepted so rows written before a key was
// configured stay readable.
func (s *GCMSealer) Open(ciphertext, binding string) ([]byte, error) {
	if strings.HasPrefix(ciphertext, prefixNoop) {
		return NoopSealer{}.Open(ciphertext, binding)
	}
	if !strings.HasPrefix(ciphertext, prefixGCM) {
		return nil, ErrUnknownFormat
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext[len(prefixGCM):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return nil, errors.New("ciphertext too short")
	}
	pt, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(binding))
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return pt, nil
}

// NoopSealer stores plaintext behind a marker prefix. Intended for tests and local development.
type NoopSealer struct{}

func (NoopSealer) Seal(plaintext []byte, _ string) (string, error) {
	return prefixNoop + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopSealer) Open(ciphertext, _ string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, prefixNoop) {
		return nil, ErrUnknownFormat
	}
	return base64.StdEncoding.DecodeString(ciphertext[len(prefixNoop):])
}

var (
	_ Sealer = (*GCMSealer)(nil)
	_ Sealer = NoopSealer{}
)
