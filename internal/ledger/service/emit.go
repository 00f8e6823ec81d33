package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"facturo/internal/audit"
	invoicemodels "facturo/internal/invoice/models"
	ledgermodels "facturo/internal/ledger/models"
	seriesmodels "facturo/internal/numbering/models"
	"facturo/internal/sigchain"
	"facturo/internal/verification"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
	"facturo/pkg/platform/sentinel"
	"facturo/pkg/requestcontext"
)

// Emit performs the emission: the irreversible draft -> issued transition,
// including gapless number assignment, chain-link creation, signature, and
// verification record assembly.
//
// Concurrency: the whole operation runs under the per-issuer lock, so within
// one process no two emissions for the same issuer can read the same chain
// tail. The CAS semantics of the series and chain stores are the backstop
// for multi-process deployments; a CAS conflict restarts the cycle with
// freshly read state, bounded by maxRetries.
//
// Ordering within one cycle: the series counter is reserved first, then the
// chain link is appended, then the invoice row is transitioned. Any append
// failure after the counter reservation compensates the counter back so the
// sequence stays gapless. The invoice transition comes last because the
// chain is the legal record: an invoice row lagging its link is recoverable
// by re-driving the transition from the link, while a numbered invoice
// without a link would break the audit guarantee for every later invoice.
func (l *Ledger) Emit(ctx context.Context, invoiceID domain.InvoiceID) (*EmissionResult, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.emit")
	defer span.End()
	start := time.Now()

	result, err := l.emit(ctx, invoiceID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if l.metrics != nil {
			l.metrics.EmissionFailures.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("invoice.number", result.Invoice.NumberText),
		attribute.Int64("chain.seq", result.Link.Seq),
	)
	if l.metrics != nil {
		l.metrics.EmissionsTotal.Inc()
		l.metrics.ObserveEmission(start)
	}
	l.audit.emit(ctx, l, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		IssuerID:   result.Invoice.IssuerID,
		InvoiceID:  result.Invoice.ID,
		Action:     audit.ActionIssued,
		NumberText: result.Invoice.NumberText,
		RequestID:  requestcontext.RequestID(ctx),
	})
	l.logger.Info("invoice emitted",
		"invoice_id", result.Invoice.ID,
		"number", result.Invoice.NumberText,
		"seq", result.Link.Seq)
	return result, nil
}

func (l *Ledger) emit(ctx context.Context, invoiceID domain.InvoiceID) (*EmissionResult, error) {
	if invoiceID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invoice id is required")
	}

	inv, err := l.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, translateLookup(err, "invoice")
	}
	// Early guard outside the lock: reject obviously unissuable drafts
	// before serializing on the issuer.
	if err := inv.CanIssue(); err != nil {
		return nil, err
	}

	issuer, err := l.issuers.FindIssuer(ctx, inv.IssuerID)
	if err != nil {
		return nil, translateLookup(err, "issuer")
	}
	sr, err := l.series.FindByID(ctx, inv.SeriesID)
	if err != nil {
		return nil, translateLookup(err, "numbering series")
	}
	if sr.IssuerID != inv.IssuerID {
		return nil, dErrors.New(dErrors.CodeValidation, "numbering series belongs to a different issuer")
	}

	// Resolve the key before any write: a key failure must leave the
	// counter and the chain untouched.
	key, err := l.keys.HMACKey(ctx, inv.IssuerID)
	if err != nil {
		l.logger.Error("signing key unavailable", "issuer_id", inv.IssuerID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not issue invoice")
	}

	unlock := l.locks.lock(inv.IssuerID)
	defer unlock()

	now := requestcontext.Now(ctx)
	var conflicts int
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		result, err := l.emitOnce(ctx, inv.ID, issuer, sr, key, now)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		conflicts++
		if l.metrics != nil {
			l.metrics.EmissionConflicts.Inc()
		}
		l.logger.Warn("emission conflict, retrying with fresh state",
			"invoice_id", inv.ID, "attempt", attempt+1)
	}
	return nil, dErrors.Newf(dErrors.CodeConflict,
		"could not issue invoice after %d attempts, please retry", conflicts)
}

// emitOnce runs one read-compute-commit cycle. Any sentinel.ErrConflict
// return means nothing from this cycle remains committed and the caller may
// retry with fresh reads.
func (l *Ledger) emitOnce(ctx context.Context, invoiceID domain.InvoiceID,
	issuer *domain.Issuer, sr *seriesmodels.Series, key []byte, now time.Time) (*EmissionResult, error) {

	// Re-read under the lock: the pre-lock copy may predate a concurrent
	// emission of the same invoice, and a repeated emission must fail here,
	// before any number or link is written.
	inv, err := l.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, translateLookup(err, "invoice")
	}
	if err := inv.CanIssue(); err != nil {
		return nil, err
	}

	last, err := l.series.ReadLast(ctx, inv.SeriesID)
	if err != nil {
		return nil, translateLookup(err, "series counter")
	}
	next := last + 1
	numberText := sr.Format(next)

	prev := sigchain.Genesis
	var seq int64 = 1
	tail, err := l.chain.Tail(ctx, inv.IssuerID)
	switch {
	case err == nil:
		prev = tail.ChainedDigest
		seq = tail.Seq + 1
	case errors.Is(err, sentinel.ErrNotFound):
		// First emission for this issuer; chain starts at genesis.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain tail")
	}

	work := *inv
	work.ApplyIssue(next, numberText, now)

	content := sigchain.ContentDigest(sigchain.ContentFields{
		IssuerTaxID:    issuer.TaxID,
		NumberText:     numberText,
		IssueDate:      work.IssueDate,
		RecipientTaxID: work.RecipientTaxID,
		RecipientName:  work.RecipientName,
		Base:           work.Base,
		TaxRate:        work.TaxRate,
		TaxAmount:      work.TaxAmount,
		Description:    work.Description,
	})
	chained := sigchain.Chain(prev, content)
	signature, err := sigchain.Sign(chained, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not sign chain link")
	}

	link := ledgermodels.ChainLink{
		IssuerID:      inv.IssuerID,
		InvoiceID:     inv.ID,
		Seq:           seq,
		NumberText:    numberText,
		ContentDigest: content,
		ChainedDigest: chained,
		CreatedAt:     now,
		Signature:     signature,
	}
	record, err := verification.Assemble(link, &work, issuer, l.verifyURL)
	if err != nil {
		return nil, err
	}
	link.Payload = record.Payload

	// Commit phase: reserve the number, append the link, transition the
	// invoice.
	if err := l.series.WriteLast(ctx, inv.SeriesID, next, last); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, sentinel.ErrConflict
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance series counter")
	}

	if err := l.chain.Append(ctx, link, prev); err != nil {
		// Give the reserved number back so the sequence stays gapless,
		// whatever made the append fail. The counter CAS guards the
		// compensation too: if it fails, another writer advanced past us
		// and the series needs operator attention.
		if cerr := l.series.WriteLast(ctx, inv.SeriesID, last, next); cerr != nil {
			l.logger.Error("failed to compensate series counter after chain append failure",
				"series_id", inv.SeriesID, "reserved", next, "append_error", err, "error", cerr)
			return nil, dErrors.New(dErrors.CodeInternal,
				"series counter diverged during emission, manual review required")
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, sentinel.ErrConflict
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append chain link")
	}

	issued, err := l.invoices.Execute(ctx, inv.ID,
		func(cur *invoicemodels.Invoice) error { return cur.CanIssue() },
		func(cur *invoicemodels.Invoice) { cur.ApplyIssue(next, numberText, now) })
	if err != nil {
		// The link is already part of the legal record. The invoice row can
		// be re-driven from the link; losing the link cannot be repaired.
		l.logger.Error("invoice transition failed after chain append",
			"invoice_id", inv.ID, "number", numberText, "seq", seq, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal,
			"invoice issued on chain but row transition failed, manual review required")
	}

	return &EmissionResult{Invoice: issued, Link: link, Record: record}, nil
}

func translateLookup(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read "+what)
}
