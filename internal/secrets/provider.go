// Package secrets provides per-issuer HMAC signing keys to the ledger.
//
// The ledger core never stores keys; it asks a Provider at signing time and
// providers return fresh copies so callers cannot alias internal state.
package secrets

import (
	"context"
	"crypto/sha256"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

// Provider resolves the HMAC key for an issuer. A missing key is a
// CodeCrypto error: an invoice must never be issued without a valid chain
// link, so there is no fallback key.
type Provider interface {
	HMACKey(ctx context.Context, issuerID domain.IssuerID) ([]byte, error)
}

// Static holds explicit per-issuer keys. Used in tests and deployments where
// keys are provisioned out of band.
type Static struct {
	mu   sync.RWMutex
	keys map[domain.IssuerID][]byte
}

func NewStatic() *Static {
	return &Static{keys: make(map[domain.IssuerID][]byte)}
}

// SetKey registers a key for an issuer. The key is copied.
func (s *Static) SetKey(issuerID domain.IssuerID, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(key))
	copy(cp, key)
	s.keys[issuerID] = cp
}

func (s *Static) HMACKey(_ context.Context, issuerID domain.IssuerID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[issuerID]
	if !ok || len(key) == 0 {
		return nil, dErrors.Newf(dErrors.CodeCrypto, "no signing key for issuer %s", issuerID)
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return cp, nil
}

// keySize is the derived HMAC-SHA256 key length.
const keySize = 32

// HKDF derives per-issuer keys from a single master secret, with the issuer
// ID as the derivation info. Rotating the master secret rotates every issuer
// key; individual issuers cannot be rotated independently, which is the
// trade-off for not persisting any key material.
type HKDF struct {
	master []byte
}

// NewHKDF constructs the provider. The master secret must be non-empty.
func NewHKDF(master []byte) (*HKDF, error) {
	if len(master) == 0 {
		return nil, dErrors.New(dErrors.CodeCrypto, "master secret is empty")
	}
	cp := make([]byte, len(master))
	copy(cp, master)
	return &HKDF{master: cp}, nil
}

func (p *HKDF) HMACKey(_ context.Context, issuerID domain.IssuerID) ([]byte, error) {
	if issuerID.IsZero() {
		return nil, dErrors.New(dErrors.CodeCrypto, "issuer id is required for key derivation")
	}
	r := hkdf.New(sha256.New, p.master, nil, []byte("facturo:hmac:"+issuerID.String()))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "key derivation failed")
	}
	return key, nil
}
