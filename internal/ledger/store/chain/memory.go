// Package chain persists per-issuer chain links with compare-and-swap append
// semantics: Append commits only when the caller's view of the tail is still
// current. A stale expectation returns sentinel.ErrConflict so the emission
// service retries with a fresh tail instead of forking the chain.
package chain

import (
	"context"
	"sync"

	"facturo/internal/ledger/models"
	"facturo/internal/sigchain"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// InMemory keeps each issuer's chain as an ordered slice.
type InMemory struct {
	mu     sync.RWMutex
	chains map[domain.IssuerID][]models.ChainLink
}

func NewInMemory() *InMemory {
	return &InMemory{chains: make(map[domain.IssuerID][]models.ChainLink)}
}

// Tail returns the issuer's most recent link, or ErrNotFound when the chain
// is empty (the caller treats that as genesis).
func (s *InMemory) Tail(_ context.Context, issuerID domain.IssuerID) (*models.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := s.chains[issuerID]
	if len(links) == 0 {
		return nil, sentinel.ErrNotFound
	}
	cp := links[len(links)-1]
	return &cp, nil
}

// Append adds link to the issuer's chain if expectedPrev still matches the
// current tail's chained digest (sigchain.Genesis for an empty chain).
func (s *InMemory) Append(_ context.Context, link models.ChainLink, expectedPrev sigchain.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := s.chains[link.IssuerID]

	current := sigchain.Genesis
	if len(links) > 0 {
		current = links[len(links)-1].ChainedDigest
	}
	if current != expectedPrev {
		return sentinel.ErrConflict
	}
	if want := int64(len(links)) + 1; link.Seq != want {
		return sentinel.ErrConflict
	}
	s.chains[link.IssuerID] = append(links, link)
	return nil
}

// List returns links with fromSeq <= Seq <= toSeq in chain order. A toSeq of
// zero means "to the end".
func (s *InMemory) List(_ context.Context, issuerID domain.IssuerID, fromSeq, toSeq int64) ([]models.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChainLink
	for _, link := range s.chains[issuerID] {
		if link.Seq < fromSeq {
			continue
		}
		if toSeq > 0 && link.Seq > toSeq {
			break
		}
		out = append(out, link)
	}
	return out, nil
}
