// Package issuer provides an in-memory issuer directory. Issuer master data
// is owned by the embedding application; this directory is the adapter used
// by tests and by applications without their own issuer store.
package issuer

import (
	"context"
	"sync"

	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	issuers map[domain.IssuerID]domain.Issuer
}

func NewInMemory() *InMemory {
	return &InMemory{issuers: make(map[domain.IssuerID]domain.Issuer)}
}

func (s *InMemory) Register(_ context.Context, issuer domain.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issuers[issuer.ID]; ok {
		return sentinel.ErrConflict
	}
	s.issuers[issuer.ID] = issuer
	return nil
}

func (s *InMemory) FindIssuer(_ context.Context, id domain.IssuerID) (*domain.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuer, ok := s.issuers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &issuer, nil
}
