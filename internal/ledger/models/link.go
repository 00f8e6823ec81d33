// Package models defines the chain link: the cryptographic record attached
// to one emitted invoice. Links are created exactly once, at emission, and
// are never mutated or deleted.
package models

import (
	"time"

	"facturo/internal/sigchain"
	"facturo/pkg/domain"
)

// ChainLink is one element of an issuer's ordered, append-only chain.
//
// Invariants:
//   - Seq starts at 1 and increases by exactly 1 per emission within an issuer
//   - ChainedDigest == sigchain.Chain(prev.ChainedDigest, ContentDigest),
//     with sigchain.Genesis as the previous digest for Seq 1
//   - Signature verifies against the issuer's HMAC key over ChainedDigest
type ChainLink struct {
	IssuerID      domain.IssuerID  `json:"issuer_id"`
	InvoiceID     domain.InvoiceID `json:"invoice_id"`
	Seq           int64            `json:"seq"`
	NumberText    string           `json:"number_text"`
	ContentDigest sigchain.Digest  `json:"content_digest"`
	ChainedDigest sigchain.Digest  `json:"chained_digest"`
	Signature     string           `json:"signature"`
	Payload       string           `json:"payload"`
	CreatedAt     time.Time        `json:"created_at"`
}
