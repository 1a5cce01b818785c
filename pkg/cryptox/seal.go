package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Sealed blob layout: [magic][16-byte salt][12-byte nonce][ciphertext+tag]
var sealMagic = []byte("afs1")

const (
	saltLength = 16
	keyLength  = 32

	// Key derivation runs once per salt, not per seal, so moderate
	// parameters are fine here.
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

var (
	// ErrNotSealed reports data that was not produced by a Sealer.
	ErrNotSealed = errors.New("cryptox: data is not sealed")
	// ErrUnseal reports a wrong secret or tampered ciphertext.
	ErrUnseal = errors.New("cryptox: unseal failed")
)

// Sealer encrypts small blobs at rest with AES-256-GCM under a key derived
// from a passphrase with Argon2id.
type Sealer struct {
	secret []byte

	mu   sync.Mutex
	salt []byte
	keys map[string]cipher.AEAD
}

// NewSealer creates a Sealer for secret. A fresh salt is chosen per Sealer;
// blobs sealed under other salts can still be opened.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("cryptox: empty sealing secret")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &Sealer{
		secret: []byte(secret),
		salt:   salt,
		keys:   make(map[string]cipher.AEAD),
	}, nil
}

// aead returns the cipher for salt, deriving and caching it on first use.
func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gcm, ok := s.keys[string(salt)]; ok {
		return gcm, nil
	}

	key := argon2.IDKey(s.secret, salt, kdfTime, kdfMemory, kdfThreads, keyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s.keys[string(salt)] = gcm
	return gcm, nil
}

// Seal encrypts and authenticates plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.aead(s.salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+saltLength+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, sealMagic), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}

	rest := sealed[len(sealMagic):]
	if len(rest) < saltLength {
		return nil, ErrNotSealed
	}
	salt, rest := rest[:saltLength], rest[saltLength:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	if len(rest) < gcm.NonceSize() {
		return nil, ErrNotSealed
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed blob header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}
