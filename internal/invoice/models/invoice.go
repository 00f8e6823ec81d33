package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

// roundingTolerance admits at most one cent of upstream line-level rounding
// between the stated tax amount and base * rate.
var roundingTolerance = decimal.New(1, -2) // 0.01

// Invoice is the central aggregate.
//
// Invariants:
//   - Number is non-nil if and only if State != draft
//   - Base, TaxRate, TaxAmount, Total are non-negative
//   - Total == Base + TaxAmount exactly at scale 2
//   - content fields (issuer, recipient, date, amounts, description) are
//     frozen once the invoice leaves draft; ApplyIssue is the freeze point
//   - only drafts may be deleted
//
// Monetary fields are decimals, never floats: the content digest serializes
// them at fixed scale, and float jitter would silently change the digest.
type Invoice struct {
	ID             domain.InvoiceID `json:"id"`
	IssuerID       domain.IssuerID  `json:"issuer_id"`
	SeriesID       domain.SeriesID  `json:"series_id"`
	Number         *int64           `json:"number,omitempty"`
	NumberText     string           `json:"number_text,omitempty"`
	RecipientTaxID domain.TaxID     `json:"recipient_tax_id"`
	RecipientName  string           `json:"recipient_name"`
	IssueDate      time.Time        `json:"issue_date"`
	Base           decimal.Decimal  `json:"base"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	Total          decimal.Decimal  `json:"total"`
	Description    string           `json:"description"`
	State          LifecycleState   `json:"state"`
	VoidReason     string           `json:"void_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewDraft constructs a draft invoice. Only structural requirements are
// checked here; full emission requirements are deferred to CanIssue so a
// draft can be captured incrementally.
func NewDraft(id domain.InvoiceID, issuerID domain.IssuerID, seriesID domain.SeriesID, now time.Time) (*Invoice, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invoice id is required")
	}
	if issuerID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer id is required")
	}
	if seriesID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "series id is required")
	}
	return &Invoice{
		ID:        id,
		IssuerID:  issuerID,
		SeriesID:  seriesID,
		State:     StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsDraft reports whether the invoice content is still mutable.
func (inv *Invoice) IsDraft() bool { return inv.State == StateDraft }

// CanIssue is the emission guard: all required fields present and the
// monetary breakdown internally consistent. Returns CodeValidation with an
// actionable message naming the first failing field.
func (inv *Invoice) CanIssue() error {
	if !inv.State.CanTransitionTo(StateIssued) {
		return transitionError(inv.State, StateIssued)
	}
	if inv.RecipientTaxID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "recipient tax id is required")
	}
	if strings.TrimSpace(inv.RecipientName) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient name is required")
	}
	if inv.IssueDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "issue date is required")
	}
	return inv.validateAmounts()
}

func (inv *Invoice) validateAmounts() error {
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"taxable base", inv.Base},
		{"tax rate", inv.TaxRate},
		{"tax amount", inv.TaxAmount},
		{"total", inv.Total},
	} {
		if f.value.IsNegative() {
			return dErrors.Newf(dErrors.CodeValidation, "%s cannot be negative", f.name)
		}
	}
	if !inv.Total.Round(2).Equal(inv.Base.Round(2).Add(inv.TaxAmount.Round(2))) {
		return dErrors.New(dErrors.CodeValidation, "total must equal taxable base plus tax amount")
	}
	expectedTax := inv.Base.Mul(inv.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
	if inv.TaxAmount.Sub(expectedTax).Abs().GreaterThan(roundingTolerance) {
		return dErrors.New(dErrors.CodeValidation, "tax amount is inconsistent with taxable base and tax rate")
	}
	return nil
}

// ApplyIssue freezes the invoice at its assigned number. Call CanIssue first;
// the emission service runs both inside the store's Execute callback so the
// guard and the mutation are atomic.
func (inv *Invoice) ApplyIssue(number int64, numberText string, now time.Time) {
	inv.Number = &number
	inv.NumberText = numberText
	inv.State = StateIssued
	inv.UpdatedAt = now
}

// CanMarkPaid checks the issued -> paid transition (informational, no guard
// beyond the table).
func (inv *Invoice) CanMarkPaid() error {
	if !inv.State.CanTransitionTo(StatePaid) {
		return transitionError(inv.State, StatePaid)
	}
	return nil
}

// ApplyMarkPaid transitions to paid. No content change.
func (inv *Invoice) ApplyMarkPaid(now time.Time) {
	inv.State = StatePaid
	inv.UpdatedAt = now
}

// CanVoid checks the issued/paid -> voided transition. A reason is required
// because voiding is a legally relevant act that lands in the audit trail.
func (inv *Invoice) CanVoid(reason string) error {
	if !inv.State.CanTransitionTo(StateVoided) {
		return transitionError(inv.State, StateVoided)
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "void reason is required")
	}
	return nil
}

// ApplyVoid transitions to voided. The chain link of the invoice is not
// touched: the ledger is append-only and voiding is state plus audit only.
func (inv *Invoice) ApplyVoid(reason string, now time.Time) {
	inv.State = StateVoided
	inv.VoidReason = strings.TrimSpace(reason)
	inv.UpdatedAt = now
}

// CanDelete reports whether deletion is permitted. Only drafts: issued,
// paid and voided invoices are part of the legal record forever.
func (inv *Invoice) CanDelete() error {
	if inv.State != StateDraft {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"only draft invoices may be deleted, invoice is %s", inv.State)
	}
	return nil
}
