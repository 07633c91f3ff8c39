// Package cryptox seals backup payloads under an ephemeral key.
package cryptox

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyLength is the size of an ephemeral backup key in bytes.
const KeyLength = 32

const (
	nonceSize = 12
	hkdfInfo  = "wpplink backup v1"
)

var (
	ErrKeyLength       = errors.New("cryptox: invalid key length")
	ErrPayloadTooShort = errors.New("cryptox: payload too short")
)

// GenerateKey returns KeyLength fresh random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DeriveStreamKey expands an ephemeral backup key into the AES-256 key used
// for the payload.
func DeriveStreamKey(key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrKeyLength
	}
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(hkdfInfo)), out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return out, nil
}

// Seal compresses plaintext and encrypts it with AES-GCM. The result is
// nonce || ciphertext.
func Seal(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plaintext); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, buf.Bytes(), nil), nil
}

// Open reverses Seal.
func Open(payload, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(payload) < nonceSize+aead.Overhead() {
		return nil, ErrPayloadTooShort
	}

	compressed, err := aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer func() { _ = zr.Close() }()

	plaintext, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	streamKey, err := DeriveStreamKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(streamKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
