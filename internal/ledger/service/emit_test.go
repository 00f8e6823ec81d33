package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	ledgermodels "facturo/internal/ledger/models"
	seriesmodels "facturo/internal/numbering/models"
	"facturo/internal/sigchain"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
	"facturo/pkg/platform/sentinel"
)

// TestEmit_ChainsTwoInvoices walks two emissions end to end and checks every
// chain property: numbering, sequence, digest linkage, signature, and the
// verification payload shape.
func (s *LedgerSuite) TestEmit_ChainsTwoInvoices() {
	first := s.createDraft()

	content := s.issuableContent()
	content.Base = decimal.RequireFromString("50.00")
	content.TaxAmount = decimal.RequireFromString("10.50")
	content.Total = decimal.RequireFromString("60.50")
	second, err := s.ledger.CreateDraft(s.ctx, s.issuer.ID, s.seriesID, content)
	s.Require().NoError(err)

	resA, err := s.ledger.Emit(s.ctx, first.ID)
	s.Require().NoError(err)
	resB, err := s.ledger.Emit(s.ctx, second.ID)
	s.Require().NoError(err)

	s.Equal("FA001", resA.Invoice.NumberText)
	s.Equal("FA002", resB.Invoice.NumberText)
	s.Equal(int64(1), resA.Link.Seq)
	s.Equal(int64(2), resB.Link.Seq)

	s.Equal(sigchain.Chain(sigchain.Genesis, resA.Link.ContentDigest), resA.Link.ChainedDigest)
	s.Equal(sigchain.Chain(resA.Link.ChainedDigest, resB.Link.ContentDigest), resB.Link.ChainedDigest)
	s.NotEqual(resA.Link.ChainedDigest, resB.Link.ChainedDigest)
	s.Equal("60.50", resB.Invoice.Total.StringFixed(2))

	key, err := s.keys.HMACKey(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.True(sigchain.VerifySignature(resA.Link.ChainedDigest, resA.Link.Signature, key))
	s.True(sigchain.VerifySignature(resB.Link.ChainedDigest, resB.Link.Signature, key))

	wantPayload := fmt.Sprintf("FV1|B12345674|FA001|2026-03-14|121.00|%s",
		resA.Link.ChainedDigest.Truncate(16))
	s.Equal(wantPayload, resA.Record.Payload)
	s.Contains(resA.Record.Locator, "n=FA001")

	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Nil(breakAt)
}

func (s *LedgerSuite) TestEmit_VoidingLeavesChainUntouched() {
	first := s.createDraft()
	second := s.createDraft()

	resA, err := s.ledger.Emit(s.ctx, first.ID)
	s.Require().NoError(err)
	_, err = s.ledger.Emit(s.ctx, second.ID)
	s.Require().NoError(err)

	before, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 1, 0)
	s.Require().NoError(err)

	_, err = s.ledger.Void(s.ctx, resA.Invoice.ID, "customer cancelled")
	s.Require().NoError(err)

	after, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 1, 0)
	s.Require().NoError(err)
	s.Equal(before, after)

	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Nil(breakAt)
}

func (s *LedgerSuite) TestEmit_ValidationLeavesNothingBehind() {
	content := s.issuableContent()
	content.RecipientName = ""
	inv, err := s.ledger.CreateDraft(s.ctx, s.issuer.ID, s.seriesID, content)
	s.Require().NoError(err)

	_, err = s.ledger.Emit(s.ctx, inv.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Zero(last)

	links, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 1, 0)
	s.Require().NoError(err)
	s.Empty(links)

	found, err := s.ledger.Invoice(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.True(found.IsDraft())
}

func (s *LedgerSuite) TestEmit_InconsistentAmounts() {
	content := s.issuableContent()
	content.Total = content.Total.Add(content.Base) // total != base + tax
	inv, err := s.ledger.CreateDraft(s.ctx, s.issuer.ID, s.seriesID, content)
	s.Require().NoError(err)

	_, err = s.ledger.Emit(s.ctx, inv.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerSuite) TestEmit_AlreadyIssued() {
	inv := s.createDraft()
	_, err := s.ledger.Emit(s.ctx, inv.ID)
	s.Require().NoError(err)

	_, err = s.ledger.Emit(s.ctx, inv.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	// The failed re-emission must not have consumed a number.
	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Equal(int64(1), last)
}

func (s *LedgerSuite) TestEmit_MissingSigningKey() {
	other, err := domain.NewIssuer(domain.NewIssuerID(), domain.MustTaxID("Q1234567D"), "Sin Clave")
	s.Require().NoError(err)
	s.Require().NoError(s.issuers.Register(s.ctx, *other))

	series2, err := seriesmodels.NewSeries(domain.NewSeriesID(), other.ID, "FC", 2026, true)
	s.Require().NoError(err)
	s.Require().NoError(s.series.Create(s.ctx, series2))

	inv, err := s.ledger.CreateDraft(s.ctx, other.ID, series2.ID, s.issuableContent())
	s.Require().NoError(err)

	_, err = s.ledger.Emit(s.ctx, inv.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCrypto))

	last, err := s.series.ReadLast(s.ctx, series2.ID)
	s.Require().NoError(err)
	s.Zero(last)
}

// flakyChainStore wraps a ChainStore and fails Append a fixed number of
// times before delegating.
type flakyChainStore struct {
	ChainStore
	failures int
	err      error
	calls    int
}

func (f *flakyChainStore) Append(ctx context.Context, link ledgermodels.ChainLink, expectedPrev sigchain.Digest) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.ChainStore.Append(ctx, link, expectedPrev)
}

// TestEmit_RetriesAfterChainConflict simulates a cross-process race: the
// first append loses the tail CAS, the retry cycle re-reads fresh state and
// succeeds, and the counter ends up gapless.
func (s *LedgerSuite) TestEmit_RetriesAfterChainConflict() {
	flaky := &flakyChainStore{ChainStore: s.chain, failures: 1, err: sentinel.ErrConflict}
	ledger := New(s.invoices, s.series, flaky, s.issuers, s.keys)

	res, err := ledger.Emit(s.ctx, s.createDraft().ID)
	s.Require().NoError(err)
	s.Equal("FA001", res.Invoice.NumberText)
	s.Equal(2, flaky.calls)

	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Equal(int64(1), last)
}

func (s *LedgerSuite) TestEmit_ConflictRetriesExhausted() {
	flaky := &flakyChainStore{ChainStore: s.chain, failures: 100, err: sentinel.ErrConflict}
	ledger := New(s.invoices, s.series, flaky, s.issuers, s.keys, WithMaxRetries(3))

	inv := s.createDraft()
	_, err := ledger.Emit(s.ctx, inv.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(3, flaky.calls)

	// Every reserved number was compensated back; the invoice stays a draft.
	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Zero(last)

	found, err := s.invoices.FindByID(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.True(found.IsDraft())
}

// TestEmit_CompensatesCounterOnAppendFailure covers a non-conflict append
// failure: the reserved number must be given back so no number is burned
// without a chain link, and the next emission starts the sequence cleanly.
func (s *LedgerSuite) TestEmit_CompensatesCounterOnAppendFailure() {
	flaky := &flakyChainStore{ChainStore: s.chain, failures: 1, err: errors.New("connection reset")}
	ledger := New(s.invoices, s.series, flaky, s.issuers, s.keys)

	first := s.createDraft()
	_, err := ledger.Emit(s.ctx, first.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Zero(last)

	links, err := s.chain.List(s.ctx, s.issuer.ID, 1, 0)
	s.Require().NoError(err)
	s.Empty(links)

	found, err := s.invoices.FindByID(s.ctx, first.ID)
	s.Require().NoError(err)
	s.True(found.IsDraft())

	// The failed attempt must not have consumed a number.
	res, err := ledger.Emit(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal("FA001", res.Invoice.NumberText)
	s.Equal(int64(1), res.Link.Seq)
}

// TestEmit_ConcurrentEmissions issues many drafts in parallel and checks the
// gapless guarantee: numbers come out as exactly 1..n with no duplicates,
// and the chain verifies end to end.
func (s *LedgerSuite) TestEmit_ConcurrentEmissions() {
	const n = 25

	ids := make([]domain.InvoiceID, n)
	for i := range ids {
		ids[i] = s.createDraft().ID
	}

	var mu sync.Mutex
	numbers := make(map[string]struct{}, n)

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			res, err := s.ledger.Emit(s.ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			numbers[res.Invoice.NumberText] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Len(numbers, n)
	for i := 1; i <= n; i++ {
		s.Contains(numbers, fmt.Sprintf("FA%03d", i))
	}

	last, err := s.series.ReadLast(s.ctx, s.seriesID)
	s.Require().NoError(err)
	s.Equal(int64(n), last)

	links, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 1, 0)
	s.Require().NoError(err)
	s.Len(links, n)

	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Nil(breakAt)
}
