package audit

import (
	"context"
	"time"

	"facturo/pkg/domain"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIssuer(ctx context.Context, issuerID domain.IssuerID) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, issuerID domain.IssuerID) ([]Event, error) {
	return p.store.ListByIssuer(ctx, issuerID)
}
