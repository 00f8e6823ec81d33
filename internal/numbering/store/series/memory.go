// Package series provides numbering-series persistence with compare-and-swap
// counter semantics: ReadLast returns the current counter, WriteLast commits
// the increment only when the expected previous value still holds. Stores
// return sentinel.ErrConflict on a stale expectation; the emission service
// owns the retry policy.
//
// Implementations: InMemory (tests, single process), Postgres (production),
// Redis (deployments that keep hot counters in Redis).
package series

import (
	"context"
	"strings"
	"sync"

	"facturo/internal/numbering/models"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// InMemory keeps series and counters in mutex-guarded maps.
type InMemory struct {
	mu     sync.RWMutex
	series map[domain.SeriesID]*models.Series
}

func NewInMemory() *InMemory {
	return &InMemory{series: make(map[domain.SeriesID]*models.Series)}
}

func (s *InMemory) Create(_ context.Context, sr *models.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[sr.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.series {
		if existing.IssuerID == sr.IssuerID && sr.Default && existing.Default {
			return sentinel.ErrConflict
		}
		if existing.IssuerID == sr.IssuerID &&
			strings.EqualFold(existing.Prefix, sr.Prefix) &&
			existing.FiscalYear == sr.FiscalYear {
			return sentinel.ErrConflict
		}
	}
	cp := *sr
	s.series[sr.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.SeriesID) (*models.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *sr
	return &cp, nil
}

// DefaultFor returns the issuer's default series.
func (s *InMemory) DefaultFor(_ context.Context, issuerID domain.IssuerID) (*models.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sr := range s.series {
		if sr.IssuerID == issuerID && sr.Default {
			cp := *sr
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ReadLast(_ context.Context, id domain.SeriesID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return sr.LastNumber, nil
}

// WriteLast commits next only when the stored counter still equals
// expectedPrev. A stale expectation returns ErrConflict and leaves the
// counter untouched; the counter is never skipped or reused.
func (s *InMemory) WriteLast(_ context.Context, id domain.SeriesID, next, expectedPrev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if sr.LastNumber != expectedPrev {
		return sentinel.ErrConflict
	}
	sr.LastNumber = next
	return nil
}
