// Package models defines the numbering series: a named, year-scoped sequence
// that assigns gapless invoice numbers within one issuer.
package models

import (
	"fmt"
	"strings"

	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

// NumberPadWidth is the zero-pad width for rendered invoice numbers:
// prefix FA, number 7 -> FA007. Numbers that outgrow the width render at
// their natural length (FA1234).
const NumberPadWidth = 3

// Series is a per-issuer monotonic counter.
//
// Invariants:
//   - LastNumber starts at 0 and only ever increases by exactly 1 per
//     successful emission; never reused, never decremented
//   - LastNumber is mutated exclusively through the emission operation
//     (store WriteLast with compare-and-swap)
//   - at most one default series per issuer (store-enforced)
type Series struct {
	ID         domain.SeriesID `json:"id"`
	IssuerID   domain.IssuerID `json:"issuer_id"`
	Prefix     string          `json:"prefix"`
	FiscalYear int             `json:"fiscal_year"`
	LastNumber int64           `json:"last_number"`
	Default    bool            `json:"default"`
}

// NewSeries constructs a validated series with the counter at zero.
func NewSeries(id domain.SeriesID, issuerID domain.IssuerID, prefix string, fiscalYear int, isDefault bool) (*Series, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "series id is required")
	}
	if issuerID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer id is required")
	}
	if prefix == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "series prefix is required")
	}
	if len(prefix) > 8 {
		return nil, dErrors.New(dErrors.CodeValidation, "series prefix must be 8 characters or less")
	}
	if fiscalYear < 2000 || fiscalYear > 2200 {
		return nil, dErrors.New(dErrors.CodeValidation, "fiscal year is out of range")
	}
	return &Series{
		ID:         id,
		IssuerID:   issuerID,
		Prefix:     prefix,
		FiscalYear: fiscalYear,
		Default:    isDefault,
	}, nil
}

// Format renders the human-readable invoice number for n.
func (s *Series) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, NumberPadWidth, n)
}
