package domain

import (
	"strings"

	dErrors "facturo/pkg/domain-errors"
)

// Issuer is the invoicing entity: the holder of a signing key and the owner
// of one ordered chain of emitted invoices.
//
// Invariants:
//   - TaxID is checksum-valid (enforced by ParseTaxID at construction)
//   - Name is non-empty and at most 256 characters
//   - Once any invoice chain exists for the issuer, the record is immutable;
//     the core exposes no mutation path after construction
type Issuer struct {
	ID    IssuerID `json:"id"`
	TaxID TaxID    `json:"tax_id"`
	Name  string   `json:"name"`
}

// NewIssuer constructs a validated issuer.
func NewIssuer(id IssuerID, taxID TaxID, name string) (*Issuer, error) {
	name = strings.TrimSpace(name)
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer id is required")
	}
	if taxID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer tax id is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer name cannot be empty")
	}
	if len(name) > 256 {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer name must be 256 characters or less")
	}
	return &Issuer{ID: id, TaxID: taxID, Name: name}, nil
}
