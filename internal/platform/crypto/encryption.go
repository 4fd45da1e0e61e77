// Package crypto seals payslip archives at rest with XChaCha20-Poly1305.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrMalformed    = errors.New("sealed payload malformed")
	ErrUnconfigured = errors.New("payslip encryption key not configured")
)

// Sealed payloads are version || nonce || ciphertext.
const sealVersion byte = 1

type Sealer struct {
	aead cipher.AEAD
}

// New decodes a 32 byte key given as hex or base64. An empty key returns an
// unconfigured sealer.
func New(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("PAYSLIP_ENCRYPTION_KEY must be %d bytes after decoding, got %d", chacha20poly1305.KeySize, len(decoded))
	}
	aead, err := chacha20poly1305.NewX(decoded)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Configured() bool {
	return s != nil && s.aead != nil
}

// Seal encrypts plain and binds it to label, typically the record ID, so a
// sealed file cannot be passed off as another record's payslip.
func (s *Sealer) Seal(plain, label []byte) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrUnconfigured
	}
	nonceSize := s.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plain)+s.aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return s.aead.Seal(out, out[1:], plain, label), nil
}

func (s *Sealer) Open(sealed, label []byte) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrUnconfigured
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < 1+nonceSize+s.aead.Overhead() || sealed[0] != sealVersion {
		return nil, ErrMalformed
	}
	nonce, body := sealed[1:1+nonceSize], sealed[1+nonceSize:]
	plain, err := s.aead.Open(nil, nonce, body, label)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return plain, nil
}

func decodeKey(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if decoded, err := hex.DecodeString(raw); err == nil {
		return decoded
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(raw); err == nil {
			return decoded
		}
	}
	return []byte(raw)
}
