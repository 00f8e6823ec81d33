package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	invoicemodels "facturo/internal/invoice/models"
	invoicestore "facturo/internal/invoice/store/invoice"
	chainstore "facturo/internal/ledger/store/chain"
	issuerstore "facturo/internal/ledger/store/issuer"
	seriesmodels "facturo/internal/numbering/models"
	seriesstore "facturo/internal/numbering/store/series"
	"facturo/internal/secrets"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
	"facturo/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite

	invoices *invoicestore.InMemory
	series   *seriesstore.InMemory
	chain    *chainstore.InMemory
	issuers  *issuerstore.InMemory
	keys     *secrets.Static
	ledger   *Ledger

	issuer   *domain.Issuer
	seriesID domain.SeriesID
	now      time.Time
	ctx      context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.invoices = invoicestore.NewInMemory()
	s.series = seriesstore.NewInMemory()
	s.chain = chainstore.NewInMemory()
	s.issuers = issuerstore.NewInMemory()
	s.keys = secrets.NewStatic()

	s.now = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	issuer, err := domain.NewIssuer(domain.NewIssuerID(), domain.MustTaxID("B12345674"), "Acme SL")
	s.Require().NoError(err)
	s.issuer = issuer
	s.Require().NoError(s.issuers.Register(s.ctx, *issuer))
	s.keys.SetKey(issuer.ID, []byte("test-signing-key-32-bytes-long!!"))

	sr, err := seriesmodels.NewSeries(domain.NewSeriesID(), issuer.ID, "FA", 2026, true)
	s.Require().NoError(err)
	s.Require().NoError(s.series.Create(s.ctx, sr))
	s.seriesID = sr.ID

	s.ledger = New(s.invoices, s.series, s.chain, s.issuers, s.keys)
}

func (s *LedgerSuite) issuableContent() DraftContent {
	return DraftContent{
		RecipientTaxID: domain.MustTaxID("12345678Z"),
		RecipientName:  "Cliente Uno",
		IssueDate:      s.now,
		Base:           decimal.RequireFromString("100.00"),
		TaxRate:        decimal.RequireFromString("21.00"),
		TaxAmount:      decimal.RequireFromString("21.00"),
		Total:          decimal.RequireFromString("121.00"),
		Description:    "consulting services",
	}
}

func (s *LedgerSuite) createDraft() *invoicemodels.Invoice {
	inv, err := s.ledger.CreateDraft(s.ctx, s.issuer.ID, s.seriesID, s.issuableContent())
	s.Require().NoError(err)
	return inv
}

func (s *LedgerSuite) TestCreateDraft() {
	s.Run("success", func() {
		inv := s.createDraft()
		s.Equal(invoicemodels.StateDraft, inv.State)
		s.Nil(inv.Number)
		s.Empty(inv.NumberText)
		s.Equal(s.now, inv.CreatedAt)
	})

	s.Run("unknown issuer", func() {
		_, err := s.ledger.CreateDraft(s.ctx, domain.NewIssuerID(), s.seriesID, s.issuableContent())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("series of another issuer", func() {
		other, err := domain.NewIssuer(domain.NewIssuerID(), domain.MustTaxID("X1234567L"), "Otra")
		s.Require().NoError(err)
		s.Require().NoError(s.issuers.Register(s.ctx, *other))
		otherSeries, err := seriesmodels.NewSeries(domain.NewSeriesID(), other.ID, "FB", 2026, true)
		s.Require().NoError(err)
		s.Require().NoError(s.series.Create(s.ctx, otherSeries))

		_, err = s.ledger.CreateDraft(s.ctx, s.issuer.ID, otherSeries.ID, s.issuableContent())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *LedgerSuite) TestUpdateDraft() {
	inv := s.createDraft()

	content := s.issuableContent()
	content.Description = "revised scope"
	updated, err := s.ledger.UpdateDraft(s.ctx, inv.ID, content)
	s.Require().NoError(err)
	s.Equal("revised scope", updated.Description)

	s.Run("issued invoices are frozen", func() {
		_, err := s.ledger.Emit(s.ctx, inv.ID)
		s.Require().NoError(err)

		_, err = s.ledger.UpdateDraft(s.ctx, inv.ID, content)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *LedgerSuite) TestMarkPaid() {
	inv := s.createDraft()

	s.Run("draft cannot be paid", func() {
		_, err := s.ledger.MarkPaid(s.ctx, inv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("issued invoice can be paid once", func() {
		_, err := s.ledger.Emit(s.ctx, inv.ID)
		s.Require().NoError(err)

		paid, err := s.ledger.MarkPaid(s.ctx, inv.ID)
		s.Require().NoError(err)
		s.Equal(invoicemodels.StatePaid, paid.State)

		_, err = s.ledger.MarkPaid(s.ctx, inv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *LedgerSuite) TestVoid() {
	inv := s.createDraft()
	_, err := s.ledger.Emit(s.ctx, inv.ID)
	s.Require().NoError(err)

	s.Run("reason is required", func() {
		_, err := s.ledger.Void(s.ctx, inv.ID, "  ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("void keeps number and records reason", func() {
		voided, err := s.ledger.Void(s.ctx, inv.ID, "duplicate billing")
		s.Require().NoError(err)
		s.Equal(invoicemodels.StateVoided, voided.State)
		s.Equal("duplicate billing", voided.VoidReason)
		s.Equal("FA001", voided.NumberText)
	})

	s.Run("voided is terminal", func() {
		_, err := s.ledger.MarkPaid(s.ctx, inv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *LedgerSuite) TestDeleteDraft() {
	s.Run("draft can be deleted", func() {
		inv := s.createDraft()
		s.Require().NoError(s.ledger.DeleteDraft(s.ctx, inv.ID))

		_, err := s.ledger.Invoice(s.ctx, inv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("issued invoice cannot be deleted", func() {
		inv := s.createDraft()
		_, err := s.ledger.Emit(s.ctx, inv.ID)
		s.Require().NoError(err)

		err = s.ledger.DeleteDraft(s.ctx, inv.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		found, err := s.ledger.Invoice(s.ctx, inv.ID)
		s.Require().NoError(err)
		s.Equal("FA001", found.NumberText)
	})

	s.Run("missing invoice", func() {
		err := s.ledger.DeleteDraft(s.ctx, domain.NewInvoiceID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
