package series

import (
	"context"

	"facturo/internal/numbering/models"
	"facturo/pkg/domain"
)

// Metadata is the series-definition side of the store contract.
type Metadata interface {
	Create(ctx context.Context, sr *models.Series) error
	FindByID(ctx context.Context, id domain.SeriesID) (*models.Series, error)
	DefaultFor(ctx context.Context, issuerID domain.IssuerID) (*models.Series, error)
}

// Counter is the hot-path counter side of the store contract.
type Counter interface {
	SeedCounter(ctx context.Context, id domain.SeriesID, last int64) error
	ReadLast(ctx context.Context, id domain.SeriesID) (int64, error)
	WriteLast(ctx context.Context, id domain.SeriesID, next, expectedPrev int64) error
}

// Hybrid splits a series store across two backends: metadata in a durable
// store, the counter in a shared CAS store such as Redis. Create seeds the
// counter after storing the metadata so a series is never usable before its
// counter exists.
type Hybrid struct {
	Meta     Metadata
	Counters Counter
}

func NewHybrid(meta Metadata, counters Counter) *Hybrid {
	return &Hybrid{Meta: meta, Counters: counters}
}

func (h *Hybrid) Create(ctx context.Context, sr *models.Series) error {
	if err := h.Meta.Create(ctx, sr); err != nil {
		return err
	}
	return h.Counters.SeedCounter(ctx, sr.ID, sr.LastNumber)
}

func (h *Hybrid) FindByID(ctx context.Context, id domain.SeriesID) (*models.Series, error) {
	return h.Meta.FindByID(ctx, id)
}

func (h *Hybrid) DefaultFor(ctx context.Context, issuerID domain.IssuerID) (*models.Series, error) {
	return h.Meta.DefaultFor(ctx, issuerID)
}

func (h *Hybrid) ReadLast(ctx context.Context, id domain.SeriesID) (int64, error) {
	return h.Counters.ReadLast(ctx, id)
}

func (h *Hybrid) WriteLast(ctx context.Context, id domain.SeriesID, next, expectedPrev int64) error {
	return h.Counters.WriteLast(ctx, id, next, expectedPrev)
}
