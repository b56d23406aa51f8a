// Package signature provides Ed25519 object signing with a certificate
// chain of trust. Certificates form root → intermediate → leaf chains;
// verifying a signature checks the cryptographic signature and walks the
// chain, rejecting revoked or expired links. Signature timestamps are
// anchored in the audit log rather than an external timestamping authority.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Algorithm identifies a signing algorithm. Ed25519 is the only supported
// algorithm.
type Algorithm string

// AlgorithmEd25519 is the Ed25519 signature scheme.
const AlgorithmEd25519 Algorithm = "ed25519"

// KeyPair holds an Ed25519 key pair with a precomputed hex-encoded public
// key.
type KeyPair struct {
	PrivateKey   ed25519.PrivateKey
	PublicKey    ed25519.PublicKey
	PublicKeyHex string
}

// GenerateKeyPair generates a new Ed25519 key pair from cryptographically
// secure randomness.
func GenerateKeyPair(algorithm Algorithm) (*KeyPair, error) {
	if algorithm != AlgorithmEd25519 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	return &KeyPair{
		PrivateKey:   priv,
		PublicKey:    pub,
		PublicKeyHex: hex.EncodeToString(pub),
	}, nil
}

// Verify checks an Ed25519 signature against a message and public key.
// Returns false for any malformed input.
func Verify(message, sig []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, sig)
}

// KeyStore holds private keys for callers that want the manager to keep
// them. The manager itself never persists private material; callers may
// hold keys directly and skip the store entirely.
type KeyStore interface {
	PutKey(keyID string, key ed25519.PrivateKey) error
	GetKey(keyID string) (ed25519.PrivateKey, error)
	DeleteKey(keyID string) error
}

// InMemoryKeyStore is a map-backed KeyStore. Thread-safe via RWMutex.
type InMemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{keys: make(map[string]ed25519.PrivateKey)}
}

// PutKey stores a private key under an ID.
func (s *InMemoryKeyStore) PutKey(keyID string, key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	keyCopy := make(ed25519.PrivateKey, len(key))
	copy(keyCopy, key)

	s.mu.Lock()
	s.keys[keyID] = keyCopy
	s.mu.Unlock()
	return nil
}

// GetKey retrieves a private key by ID.
func (s *InMemoryKeyStore) GetKey(keyID string) (ed25519.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	keyCopy := make(ed25519.PrivateKey, len(key))
	copy(keyCopy, key)
	return keyCopy, nil
}

// DeleteKey removes a private key.
func (s *InMemoryKeyStore) DeleteKey(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[keyID]; !ok {
		return ErrKeyNotFound
	}
	delete(s.keys, keyID)
	return nil
}
