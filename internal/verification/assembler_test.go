package verification

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoicemodels "facturo/internal/invoice/models"
	ledgermodels "facturo/internal/ledger/models"
	"facturo/internal/sigchain"
	"facturo/pkg/domain"
)

func testFixtures(t *testing.T) (ledgermodels.ChainLink, *invoicemodels.Invoice, *domain.Issuer) {
	t.Helper()
	issuer, err := domain.NewIssuer(domain.NewIssuerID(), domain.MustTaxID("B12345674"), "Taller Norte SL")
	require.NoError(t, err)

	inv, err := invoicemodels.NewDraft(domain.NewInvoiceID(), issuer.ID, domain.NewSeriesID(), time.Now())
	require.NoError(t, err)
	inv.RecipientTaxID = domain.MustTaxID("12345678Z")
	inv.RecipientName = "Cliente SA"
	inv.IssueDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	inv.Base = decimal.RequireFromString("100.00")
	inv.TaxRate = decimal.RequireFromString("21")
	inv.TaxAmount = decimal.RequireFromString("21.00")
	inv.Total = decimal.RequireFromString("121.00")
	inv.ApplyIssue(1, "FA001", time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))

	content := sigchain.ContentDigest(sigchain.ContentFields{
		IssuerTaxID:    issuer.TaxID,
		NumberText:     inv.NumberText,
		IssueDate:      inv.IssueDate,
		RecipientTaxID: inv.RecipientTaxID,
		RecipientName:  inv.RecipientName,
		Base:           inv.Base,
		TaxRate:        inv.TaxRate,
		TaxAmount:      inv.TaxAmount,
		Description:    inv.Description,
	})
	chained := sigchain.Chain(sigchain.Genesis, content)
	link := ledgermodels.ChainLink{
		IssuerID:      issuer.ID,
		InvoiceID:     inv.ID,
		Seq:           1,
		NumberText:    inv.NumberText,
		ContentDigest: content,
		ChainedDigest: chained,
		Signature:     "aabb",
		CreatedAt:     time.Date(2025, 3, 14, 9, 0, 1, 0, time.UTC),
	}
	return link, inv, issuer
}

func TestAssemble(t *testing.T) {
	link, inv, issuer := testFixtures(t)

	rec, err := Assemble(link, inv, issuer, "https://verify.example.com")
	require.NoError(t, err)

	t.Run("payload carries versioned pipe-delimited fields", func(t *testing.T) {
		parts := strings.Split(rec.Payload, "|")
		require.Len(t, parts, 6)
		assert.Equal(t, PayloadVersion, parts[0])
		assert.Equal(t, "B12345674", parts[1])
		assert.Equal(t, "FA001", parts[2])
		assert.Equal(t, "2025-03-14", parts[3])
		assert.Equal(t, "121.00", parts[4])
		assert.Equal(t, link.ChainedDigest.Truncate(16), parts[5])
	})

	t.Run("locator embeds number and digest fragment", func(t *testing.T) {
		assert.Contains(t, rec.Locator, "https://verify.example.com/verify?")
		assert.Contains(t, rec.Locator, "n=FA001")
		assert.Contains(t, rec.Locator, "d="+link.ChainedDigest.Truncate(16))
	})

	t.Run("document carries full digests and signature", func(t *testing.T) {
		assert.Equal(t, string(link.ContentDigest), rec.Document.ContentDigest)
		assert.Equal(t, string(link.ChainedDigest), rec.Document.ChainedDigest)
		assert.Equal(t, "aabb", rec.Document.Signature)
		assert.Equal(t, "121.00", rec.Document.Total)
		assert.Equal(t, "1.0", rec.Document.Version)
	})
}

func TestAssembleIsPure(t *testing.T) {
	link, inv, issuer := testFixtures(t)
	r1, err := Assemble(link, inv, issuer, "https://verify.example.com")
	require.NoError(t, err)
	r2, err := Assemble(link, inv, issuer, "https://verify.example.com")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestAssembleRejectsDraft(t *testing.T) {
	link, _, issuer := testFixtures(t)
	draft, err := invoicemodels.NewDraft(domain.NewInvoiceID(), issuer.ID, domain.NewSeriesID(), time.Now())
	require.NoError(t, err)

	_, err = Assemble(link, draft, issuer, "https://verify.example.com")
	require.Error(t, err)
}

func TestMarshalDocument(t *testing.T) {
	link, inv, issuer := testFixtures(t)
	rec, err := Assemble(link, inv, issuer, "https://verify.example.com")
	require.NoError(t, err)

	out, err := MarshalDocument(rec.Document)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), xml.Header))
	assert.Contains(t, string(out), `<InvoiceRecord version="1.0">`)
	assert.Contains(t, string(out), "<Number>FA001</Number>")

	var decoded Document
	require.NoError(t, xml.Unmarshal(out, &decoded))
	assert.Equal(t, rec.Document.ChainedDigest, decoded.ChainedDigest)
	assert.Equal(t, rec.Document.IssuerTaxID, decoded.IssuerTaxID)
}
