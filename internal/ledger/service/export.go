package service

import (
	"context"
	"errors"

	ledgermodels "facturo/internal/ledger/models"
	"facturo/internal/sigchain"
	"facturo/internal/verification"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
	"facturo/pkg/platform/sentinel"
)

// ExportChain returns the issuer's chain links between fromSeq and toSeq
// inclusive, in sequence order. toSeq of zero means to the current tail. An
// issuer with no emissions yields an empty slice.
func (l *Ledger) ExportChain(ctx context.Context, issuerID domain.IssuerID,
	fromSeq, toSeq int64) ([]ledgermodels.ChainLink, error) {

	if issuerID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer id is required")
	}
	if fromSeq < 1 {
		fromSeq = 1
	}
	if toSeq != 0 && toSeq < fromSeq {
		return nil, dErrors.New(dErrors.CodeBadRequest, "export range is inverted")
	}

	links, err := l.chain.List(ctx, issuerID, fromSeq, toSeq)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list chain links")
	}
	return links, nil
}

// ChainBreak describes the first failed check found by VerifyChain.
type ChainBreak struct {
	Seq        int64
	NumberText string
	Reason     string
}

// VerifyChain re-derives every chained digest and signature for the issuer's
// full chain and reports the first break, or nil when the chain is intact.
// It verifies linkage and authenticity from the stored links alone; matching
// links back to invoice rows is the caller's concern.
func (l *Ledger) VerifyChain(ctx context.Context, issuerID domain.IssuerID) (*ChainBreak, error) {
	links, err := l.ExportChain(ctx, issuerID, 1, 0)
	if err != nil {
		return nil, err
	}

	key, err := l.keys.HMACKey(ctx, issuerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not verify chain")
	}

	prev := sigchain.Genesis
	var wantSeq int64 = 1
	for _, link := range links {
		if link.Seq != wantSeq {
			return &ChainBreak{Seq: link.Seq, NumberText: link.NumberText,
				Reason: "sequence gap"}, nil
		}
		if got := sigchain.Chain(prev, link.ContentDigest); got != link.ChainedDigest {
			return &ChainBreak{Seq: link.Seq, NumberText: link.NumberText,
				Reason: "chained digest mismatch"}, nil
		}
		if !sigchain.VerifySignature(link.ChainedDigest, link.Signature, key) {
			return &ChainBreak{Seq: link.Seq, NumberText: link.NumberText,
				Reason: "signature mismatch"}, nil
		}
		prev = link.ChainedDigest
		wantSeq++
	}
	return nil, nil
}

// VerificationRecord re-assembles the verification record for an issued
// invoice from its stored chain link.
func (l *Ledger) VerificationRecord(ctx context.Context, invoiceID domain.InvoiceID) (verification.Record, error) {
	inv, err := l.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return verification.Record{}, translateLookup(err, "invoice")
	}
	issuer, err := l.issuers.FindIssuer(ctx, inv.IssuerID)
	if err != nil {
		return verification.Record{}, translateLookup(err, "issuer")
	}

	link, err := l.findLink(ctx, inv.IssuerID, invoiceID)
	if err != nil {
		return verification.Record{}, err
	}
	return verification.Assemble(link, inv, issuer, l.verifyURL)
}

func (l *Ledger) findLink(ctx context.Context, issuerID domain.IssuerID,
	invoiceID domain.InvoiceID) (ledgermodels.ChainLink, error) {

	links, err := l.chain.List(ctx, issuerID, 1, 0)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ledgermodels.ChainLink{}, dErrors.New(dErrors.CodeNotFound, "chain link not found")
		}
		return ledgermodels.ChainLink{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list chain links")
	}
	for _, link := range links {
		if link.InvoiceID == invoiceID {
			return link, nil
		}
	}
	return ledgermodels.ChainLink{}, dErrors.New(dErrors.CodeNotFound, "chain link not found")
}
