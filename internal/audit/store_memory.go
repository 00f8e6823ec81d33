package audit

import (
	"context"
	"sync"

	"facturo/pkg/domain"
)

// InMemory is an append-only in-process audit sink.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemory) ListByIssuer(_ context.Context, issuerID domain.IssuerID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.IssuerID == issuerID {
			out = append(out, e)
		}
	}
	return out, nil
}
