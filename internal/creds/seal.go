// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 Fedclient Authors

package creds

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
)

// sealPrefix marks sealed values so plaintext records written before a
// passphrase was configured still load.
const sealPrefix = "sealed:"

var errSealCorrupt = errors.New("sealed value corrupt")

// Sealer encrypts persisted secrets at rest. A nil Sealer passes
// values through unchanged.
type Sealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewSealer derives an XChaCha20-Poly1305 key from the configured
// passphrase. An empty passphrase yields a nil Sealer (no sealing).
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, nil
	}
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte("fedclient-credential-seal"), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init seal cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts a secret for storage. Empty values stay empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return sealPrefix + base64.RawStdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Open decrypts a stored secret. Unsealed values pass through so a
// store written without a passphrase keeps working after one is set.
func (s *Sealer) Open(stored string) (string, error) {
	if s == nil || stored == "" || !strings.HasPrefix(stored, sealPrefix) {
		return stored, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errSealCorrupt, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", errSealCorrupt
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errSealCorrupt, err)
	}
	return string(plain), nil
}
