// Package invoice provides invoice persistence: an InMemory store for tests
// and small deployments, and a Postgres store for production.
//
// Both implement the same contract: Create, FindByID, Execute (atomic
// validate-then-mutate under the store's lock), and Delete (drafts only).
// Stores return sentinel errors; services translate them into domain errors.
package invoice

import (
	"context"
	"sync"

	"facturo/internal/invoice/models"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// InMemory stores invoices in a mutex-guarded map.
type InMemory struct {
	mu       sync.RWMutex
	invoices map[domain.InvoiceID]*models.Invoice
}

func NewInMemory() *InMemory {
	return &InMemory{invoices: make(map[domain.InvoiceID]*models.Invoice)}
}

func (s *InMemory) Create(_ context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.InvoiceID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

// Execute runs validate then mutate on the stored invoice while holding the
// store lock, so no concurrent transition can interleave between guard and
// mutation. The mutated copy is persisted only if validate returns nil.
func (s *InMemory) Execute(_ context.Context, id domain.InvoiceID,
	validate func(*models.Invoice) error, mutate func(*models.Invoice)) (*models.Invoice, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inv
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.invoices[id] = &cp
	out := cp
	return &out, nil
}

// Delete removes a draft. Non-draft invoices are part of the legal record;
// the store refuses with ErrInvalidState regardless of what the caller
// already checked.
func (s *InMemory) Delete(_ context.Context, id domain.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if inv.State != models.StateDraft {
		return sentinel.ErrInvalidState
	}
	delete(s.invoices, id)
	return nil
}
