package service

import (
	"strings"

	ledgermodels "facturo/internal/ledger/models"
	"facturo/internal/sigchain"
	"facturo/internal/verification"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

func (s *LedgerSuite) emitN(n int) []*EmissionResult {
	results := make([]*EmissionResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := s.ledger.Emit(s.ctx, s.createDraft().ID)
		s.Require().NoError(err)
		results = append(results, res)
	}
	return results
}

func (s *LedgerSuite) TestExportChain() {
	s.emitN(5)

	s.Run("full chain", func() {
		links, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 1, 0)
		s.Require().NoError(err)
		s.Len(links, 5)
		s.Equal(int64(1), links[0].Seq)
		s.Equal(int64(5), links[4].Seq)
	})

	s.Run("bounded range", func() {
		links, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 2, 4)
		s.Require().NoError(err)
		s.Len(links, 3)
		s.Equal(int64(2), links[0].Seq)
		s.Equal("FA004", links[2].NumberText)
	})

	s.Run("inverted range", func() {
		_, err := s.ledger.ExportChain(s.ctx, s.issuer.ID, 4, 2)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("issuer with no emissions", func() {
		links, err := s.ledger.ExportChain(s.ctx, domain.NewIssuerID(), 1, 0)
		s.Require().NoError(err)
		s.Empty(links)
	})
}

func (s *LedgerSuite) TestVerifyChain_DetectsForgedLink() {
	results := s.emitN(2)
	tail := results[1].Link

	// Append a link whose digests chain correctly but whose signature was
	// produced with the wrong key.
	content := sigchain.ContentDigest(sigchain.ContentFields{
		IssuerTaxID: s.issuer.TaxID,
		NumberText:  "FA003",
	})
	chained := sigchain.Chain(tail.ChainedDigest, content)
	forgedSig, err := sigchain.Sign(chained, []byte("attacker-key"))
	s.Require().NoError(err)

	forged := ledgermodels.ChainLink{
		IssuerID:      s.issuer.ID,
		InvoiceID:     domain.NewInvoiceID(),
		Seq:           3,
		NumberText:    "FA003",
		ContentDigest: content,
		ChainedDigest: chained,
		Signature:     forgedSig,
		CreatedAt:     s.now,
	}
	s.Require().NoError(s.chain.Append(s.ctx, forged, tail.ChainedDigest))

	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Require().NotNil(breakAt)
	s.Equal(int64(3), breakAt.Seq)
	s.Equal("signature mismatch", breakAt.Reason)
}

func (s *LedgerSuite) TestVerifyChain_DetectsBrokenLinkage() {
	results := s.emitN(1)
	tail := results[0].Link

	// A link chained from a fabricated predecessor digest instead of the
	// real tail digest.
	content := sigchain.ContentDigest(sigchain.ContentFields{NumberText: "FA002"})
	wrongPrev := sigchain.Chain(sigchain.Genesis, content)
	chained := sigchain.Chain(wrongPrev, content)

	key, err := s.keys.HMACKey(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	sig, err := sigchain.Sign(chained, key)
	s.Require().NoError(err)

	bad := ledgermodels.ChainLink{
		IssuerID:      s.issuer.ID,
		InvoiceID:     domain.NewInvoiceID(),
		Seq:           2,
		NumberText:    "FA002",
		ContentDigest: content,
		ChainedDigest: chained,
		Signature:     sig,
		CreatedAt:     s.now,
	}
	s.Require().NoError(s.chain.Append(s.ctx, bad, tail.ChainedDigest))

	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Require().NotNil(breakAt)
	s.Equal(int64(2), breakAt.Seq)
	s.Equal("chained digest mismatch", breakAt.Reason)
}

func (s *LedgerSuite) TestVerifyChain_EmptyChainIsIntact() {
	breakAt, err := s.ledger.VerifyChain(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Nil(breakAt)
}

func (s *LedgerSuite) TestVerificationRecord() {
	results := s.emitN(2)
	want := results[0]

	record, err := s.ledger.VerificationRecord(s.ctx, want.Invoice.ID)
	s.Require().NoError(err)
	s.Equal(want.Record.Payload, record.Payload)
	s.Equal(want.Record.Locator, record.Locator)
	s.Equal(want.Record.Document, record.Document)

	out, err := verification.MarshalDocument(record.Document)
	s.Require().NoError(err)
	s.True(strings.Contains(string(out), "<InvoiceRecord version=\"1.0\">"))
	s.True(strings.Contains(string(out), "<Number>FA001</Number>"))

	s.Run("draft has no record", func() {
		draft := s.createDraft()
		_, err := s.ledger.VerificationRecord(s.ctx, draft.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
