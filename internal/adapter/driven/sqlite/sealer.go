package sqlite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// KeySize is the required length of the at-rest encryption key.
const KeySize = 32

// sealer encrypts column values with AES-256-GCM. A nil key disables it and
// every operation returns driven.ErrEncryptionKeyNotSet.
type sealer struct {
	key []byte
}

func newSealer(key []byte) (sealer, error) {
	if key != nil && len(key) != KeySize {
		return sealer{}, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return sealer{key: key}, nil
}

func (s sealer) gcm() (cipher.AEAD, error) {
	if s.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// seal returns base64(nonce || ciphertext || tag).
func (s sealer) seal(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s sealer) open(encoded string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}

// sealAll encrypts values in order, stopping at the first failure.
func (s sealer) sealAll(values ...string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		sealed, err := s.seal(v)
		if err != nil {
			return nil, err
		}
		out[i] = sealed
	}
	return out, nil
}
