// Package domain defines the typed identifiers and validated value objects
// shared across the ledger core.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-type assignment (an IssuerID can never be passed where an InvoiceID
// is expected). Parse functions enforce the trust-boundary invariant that
// IDs are valid, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "facturo/pkg/domain-errors"
)

// IssuerID identifies an invoicing entity (holder of a signing key).
type IssuerID uuid.UUID

// SeriesID identifies a numbering series within an issuer.
type SeriesID uuid.UUID

// InvoiceID identifies an invoice, assigned at draft creation.
type InvoiceID uuid.UUID

func (id IssuerID) String() string  { return uuid.UUID(id).String() }
func (id SeriesID) String() string  { return uuid.UUID(id).String() }
func (id InvoiceID) String() string { return uuid.UUID(id).String() }

func (id IssuerID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SeriesID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id InvoiceID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical UUID strings in JSON and logs.

func (id IssuerID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id SeriesID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id InvoiceID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *IssuerID) UnmarshalText(b []byte) error {
	parsed, err := ParseIssuerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SeriesID) UnmarshalText(b []byte) error {
	parsed, err := ParseSeriesID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *InvoiceID) UnmarshalText(b []byte) error {
	parsed, err := ParseInvoiceID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewIssuerID generates a fresh issuer identifier.
func NewIssuerID() IssuerID { return IssuerID(uuid.New()) }

// NewSeriesID generates a fresh series identifier.
func NewSeriesID() SeriesID { return SeriesID(uuid.New()) }

// NewInvoiceID generates a fresh invoice identifier.
func NewInvoiceID() InvoiceID { return InvoiceID(uuid.New()) }

// ParseIssuerID parses and validates an issuer ID string.
func ParseIssuerID(s string) (IssuerID, error) {
	u, err := parseUUID(s)
	return IssuerID(u), err
}

// ParseSeriesID parses and validates a series ID string.
func ParseSeriesID(s string) (SeriesID, error) {
	u, err := parseUUID(s)
	return SeriesID(u), err
}

// ParseInvoiceID parses and validates an invoice ID string.
func ParseInvoiceID(s string) (InvoiceID, error) {
	u, err := parseUUID(s)
	return InvoiceID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
