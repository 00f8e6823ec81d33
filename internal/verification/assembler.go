// Package verification assembles the external-facing record of an emitted
// invoice: the compact payload an external QR renderer encodes, the
// verification locator URL, and the structured XML export for audit tooling.
//
// Everything here is a pure function over an already-emitted chain link and
// its invoice: no I/O, no side effects. The export grammar is versioned
// (PayloadVersion, document version attribute) and treated as opaque by the
// rest of the core, so a future authoritative external schema lands as a new
// version without touching stored chain links.
package verification

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	invoicemodels "facturo/internal/invoice/models"
	ledgermodels "facturo/internal/ledger/models"
	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

// PayloadVersion tags the compact payload grammar.
const PayloadVersion = "FV1"

// digestFragmentLen is how much of the chained digest the payload and
// locator carry. 16 hex chars (64 bits) is enough to bind a scanned code to
// one link; full digests live in the export document.
const digestFragmentLen = 16

// Record is the assembled external-facing verification artifact.
type Record struct {
	Payload  string // compact string for the QR renderer
	Locator  string // verification URL embedding number and digest fragment
	Document Document
}

// Document is the structured export for downstream XML rendering and audit
// submission.
type Document struct {
	XMLName       xml.Name `xml:"InvoiceRecord"`
	Version       string   `xml:"version,attr"`
	IssuerTaxID   string   `xml:"Issuer>TaxID"`
	IssuerName    string   `xml:"Issuer>Name,omitempty"`
	Number        string   `xml:"Invoice>Number"`
	IssueDate     string   `xml:"Invoice>IssueDate"`
	RecipientID   string   `xml:"Invoice>RecipientTaxID"`
	RecipientName string   `xml:"Invoice>RecipientName"`
	Base          string   `xml:"Amounts>Base"`
	TaxRate       string   `xml:"Amounts>TaxRate"`
	TaxAmount     string   `xml:"Amounts>TaxAmount"`
	Total         string   `xml:"Amounts>Total"`
	ContentDigest string   `xml:"Chain>ContentDigest"`
	ChainedDigest string   `xml:"Chain>ChainedDigest"`
	Signature     string   `xml:"Chain>Signature"`
	Seq           int64    `xml:"Chain>Seq"`
	GeneratedAt   string   `xml:"GeneratedAt"`
}

// Assemble builds the verification record for an emitted invoice. The
// invoice must already carry its assigned number; this function trusts the
// emission path and only guards against being handed a draft.
func Assemble(link ledgermodels.ChainLink, inv *invoicemodels.Invoice, issuer *domain.Issuer, baseURL string) (Record, error) {
	if inv == nil {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "invoice is required")
	}
	if issuer == nil {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "issuer is required")
	}
	if inv.IsDraft() || inv.NumberText == "" {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "cannot assemble a verification record for a draft")
	}

	fragment := link.ChainedDigest.Truncate(digestFragmentLen)
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		PayloadVersion,
		issuer.TaxID.String(),
		inv.NumberText,
		inv.IssueDate.Format("2006-01-02"),
		inv.Total.StringFixed(2),
		fragment,
	)

	return Record{
		Payload: payload,
		Locator: locator(baseURL, inv.NumberText, fragment),
		Document: Document{
			Version:       "1.0",
			IssuerTaxID:   issuer.TaxID.String(),
			IssuerName:    issuer.Name,
			Number:        inv.NumberText,
			IssueDate:     inv.IssueDate.Format("2006-01-02"),
			RecipientID:   inv.RecipientTaxID.String(),
			RecipientName: inv.RecipientName,
			Base:          inv.Base.StringFixed(2),
			TaxRate:       inv.TaxRate.StringFixed(2),
			TaxAmount:     inv.TaxAmount.StringFixed(2),
			Total:         inv.Total.StringFixed(2),
			ContentDigest: string(link.ContentDigest),
			ChainedDigest: string(link.ChainedDigest),
			Signature:     link.Signature,
			Seq:           link.Seq,
			GeneratedAt:   link.CreatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func locator(baseURL, numberText, fragment string) string {
	q := url.Values{}
	q.Set("n", numberText)
	q.Set("d", fragment)
	return baseURL + "/verify?" + q.Encode()
}

// MarshalDocument renders the export document as indented XML with header.
func MarshalDocument(doc Document) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal verification document")
	}
	return append([]byte(xml.Header), out...), nil
}
