package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"facturo/internal/audit"
	invoicemodels "facturo/internal/invoice/models"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
	"facturo/pkg/platform/sentinel"
	"facturo/pkg/requestcontext"
)

// DraftContent is the mutable content of a draft invoice.
type DraftContent struct {
	RecipientTaxID domain.TaxID
	RecipientName  string
	IssueDate      time.Time
	Base           decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	Description    string
}

func (c DraftContent) applyTo(inv *invoicemodels.Invoice, now time.Time) {
	inv.RecipientTaxID = c.RecipientTaxID
	inv.RecipientName = c.RecipientName
	inv.IssueDate = c.IssueDate
	inv.Base = c.Base
	inv.TaxRate = c.TaxRate
	inv.TaxAmount = c.TaxAmount
	inv.Total = c.Total
	inv.Description = c.Description
	inv.UpdatedAt = now
}

// CreateDraft captures a new draft invoice. Drafts carry no number and may
// be incomplete; full emission requirements are checked at Emit time.
func (l *Ledger) CreateDraft(ctx context.Context, issuerID domain.IssuerID,
	seriesID domain.SeriesID, content DraftContent) (*invoicemodels.Invoice, error) {

	if _, err := l.issuers.FindIssuer(ctx, issuerID); err != nil {
		return nil, translateLookup(err, "issuer")
	}
	sr, err := l.series.FindByID(ctx, seriesID)
	if err != nil {
		return nil, translateLookup(err, "numbering series")
	}
	if sr.IssuerID != issuerID {
		return nil, dErrors.New(dErrors.CodeValidation, "numbering series belongs to a different issuer")
	}

	now := requestcontext.Now(ctx)
	inv, err := invoicemodels.NewDraft(domain.NewInvoiceID(), issuerID, seriesID, now)
	if err != nil {
		return nil, err
	}
	content.applyTo(inv, now)

	if err := l.invoices.Create(ctx, inv); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store draft")
	}
	l.logger.Info("draft created", "invoice_id", inv.ID, "issuer_id", issuerID)
	return inv, nil
}

// UpdateDraft replaces the content of a draft. Invoices that have left draft
// state are frozen and rejected.
func (l *Ledger) UpdateDraft(ctx context.Context, id domain.InvoiceID,
	content DraftContent) (*invoicemodels.Invoice, error) {

	now := requestcontext.Now(ctx)
	inv, err := l.invoices.Execute(ctx, id,
		func(cur *invoicemodels.Invoice) error {
			if !cur.IsDraft() {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"invoice %s is %s, only drafts can be edited", cur.NumberText, cur.State)
			}
			return nil
		},
		func(cur *invoicemodels.Invoice) { content.applyTo(cur, now) })
	if err != nil {
		return nil, translateExecute(err)
	}
	return inv, nil
}

// MarkPaid records payment on an issued invoice.
func (l *Ledger) MarkPaid(ctx context.Context, id domain.InvoiceID) (*invoicemodels.Invoice, error) {
	now := requestcontext.Now(ctx)
	inv, err := l.invoices.Execute(ctx, id,
		func(cur *invoicemodels.Invoice) error { return cur.CanMarkPaid() },
		func(cur *invoicemodels.Invoice) { cur.ApplyMarkPaid(now) })
	if err != nil {
		return nil, translateExecute(err)
	}

	if l.metrics != nil {
		l.metrics.PaidTotal.Inc()
	}
	l.audit.emit(ctx, l, audit.Event{
		Timestamp:  now,
		IssuerID:   inv.IssuerID,
		InvoiceID:  inv.ID,
		Action:     audit.ActionPaid,
		NumberText: inv.NumberText,
		RequestID:  requestcontext.RequestID(ctx),
	})
	l.logger.Info("invoice paid", "invoice_id", inv.ID, "number", inv.NumberText)
	return inv, nil
}

// Void cancels an issued or paid invoice. The invoice keeps its number and
// its chain link untouched: voiding is a lifecycle fact, not an erasure, and
// the chain stays verifiable end to end.
func (l *Ledger) Void(ctx context.Context, id domain.InvoiceID, reason string) (*invoicemodels.Invoice, error) {
	now := requestcontext.Now(ctx)
	inv, err := l.invoices.Execute(ctx, id,
		func(cur *invoicemodels.Invoice) error { return cur.CanVoid(reason) },
		func(cur *invoicemodels.Invoice) { cur.ApplyVoid(reason, now) })
	if err != nil {
		return nil, translateExecute(err)
	}

	if l.metrics != nil {
		l.metrics.VoidedTotal.Inc()
	}
	l.audit.emit(ctx, l, audit.Event{
		Timestamp:  now,
		IssuerID:   inv.IssuerID,
		InvoiceID:  inv.ID,
		Action:     audit.ActionVoided,
		NumberText: inv.NumberText,
		Reason:     reason,
		RequestID:  requestcontext.RequestID(ctx),
	})
	l.logger.Info("invoice voided", "invoice_id", inv.ID, "number", inv.NumberText, "reason", reason)
	return inv, nil
}

// DeleteDraft removes a draft. Numbered invoices are never deleted.
func (l *Ledger) DeleteDraft(ctx context.Context, id domain.InvoiceID) error {
	inv, err := l.invoices.FindByID(ctx, id)
	if err != nil {
		return translateLookup(err, "invoice")
	}
	if err := inv.CanDelete(); err != nil {
		return err
	}
	if err := l.invoices.Delete(ctx, id); err != nil {
		return translateExecute(err)
	}
	l.logger.Info("draft deleted", "invoice_id", id)
	return nil
}

// Invoice returns the invoice by id.
func (l *Ledger) Invoice(ctx context.Context, id domain.InvoiceID) (*invoicemodels.Invoice, error) {
	inv, err := l.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookup(err, "invoice")
	}
	return inv, nil
}

// translateExecute maps store errors from Execute/Delete onto the domain
// taxonomy. Validation failures from the domain model pass through as-is.
func translateExecute(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "invoice not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "invoice was modified concurrently, please retry")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidTransition, "invoice state does not allow this operation")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "invoice operation failed")
}
