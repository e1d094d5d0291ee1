package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Supported AEAD algorithms. Both take a 256-bit key and a 96-bit nonce.
const (
	AlgAES256GCM        = "AES-256-GCM"
	AlgChaCha20Poly1305 = "CHACHA20-POLY1305"
)

const (
	// KeySize is the symmetric key length for every supported AEAD.
	KeySize = 32
	// NonceSize is the nonce length for every supported AEAD.
	NonceSize = 12
)

var (
	ErrUnsupportedAlgorithm = errors.New("cryptox: unsupported AEAD algorithm")
	ErrInvalidKeySize       = errors.New("cryptox: invalid key size")
	ErrInvalidNonce         = errors.New("cryptox: invalid nonce")
	ErrOpen                 = errors.New("cryptox: message authentication failed")
)

// NewAEAD builds the cipher for alg keyed with a 32-byte key.
func NewAEAD(alg string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	switch alg {
	case AlgAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case AlgChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// SupportedAlgorithm reports whether alg can be passed to NewAEAD.
func SupportedAlgorithm(alg string) bool {
	return alg == AlgAES256GCM || alg == AlgChaCha20Poly1305
}

// GenerateKey returns fresh 256-bit key material.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// DeriveKey expands master into a KeySize subkey bound to salt and info
// (HKDF-SHA256). Distinct info strings give independent keys from the same
// master.
func DeriveKey(master, salt []byte, info string) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrInvalidKeySize
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is returned
// separately from the ciphertext (which carries the 16-byte tag).
func Seal(aead cipher.AEAD, plaintext, additionalData []byte) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open authenticates and decrypts ciphertext. Any failure, including a
// tampered tag or associated data, is reported as ErrOpen.
func Open(aead cipher.AEAD, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidNonce
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrOpen)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// Zero overwrites b. Used when key material leaves the retained set.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
