// Package sigchain implements the cryptographic primitives of the issuance
// ledger: the canonical content digest of an invoice's immutable fields, the
// chained digest linking each emission to the previous one, and the HMAC
// signature over the chained digest.
//
// Determinism is the whole point: the same logical invoice content always
// produces the same digest, because serialization is an explicit fixed field
// order with amounts at fixed scale, never a map walk.
package sigchain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"facturo/pkg/domain"
	dErrors "facturo/pkg/domain-errors"
)

// Digest is a lower-hex encoded 256-bit digest.
type Digest string

// Genesis is the well-defined previous digest for an issuer's first invoice:
// the hex form of the all-zero digest, which has no known preimage and can
// never collide with a real chained digest.
const Genesis Digest = "0000000000000000000000000000000000000000000000000000000000000000"

// separator joins canonical fields and chain inputs. Field values that could
// contain it are escaped, so two different field vectors can never serialize
// to the same canonical string.
const separator = "|"

// ContentFields are the immutable invoice fields captured by the content
// digest at emission, in their canonical order.
type ContentFields struct {
	IssuerTaxID    domain.TaxID
	NumberText     string
	IssueDate      time.Time
	RecipientTaxID domain.TaxID
	RecipientName  string
	Base           decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	Description    string
}

// ContentDigest hashes the canonical serialization of f with SHA-256.
func ContentDigest(f ContentFields) Digest {
	fields := []string{
		f.IssuerTaxID.String(),
		f.NumberText,
		f.IssueDate.Format("2006-01-02"),
		f.RecipientTaxID.String(),
		f.RecipientName,
		f.Base.StringFixed(2),
		f.TaxRate.StringFixed(2),
		f.TaxAmount.StringFixed(2),
		f.Description,
	}
	escaped := make([]string, len(fields))
	for i, v := range fields {
		escaped[i] = strings.ReplaceAll(v, separator, "\\|")
	}
	sum := sha256.Sum256([]byte(strings.Join(escaped, separator)))
	return Digest(hex.EncodeToString(sum[:]))
}

// Chain derives the next chained digest from the previous link's chained
// digest (or Genesis) and the new content digest. This is the tamper-evidence
// property: link n is reproducible from link n-1 and the content of n, and
// changing any historical content breaks every later link.
func Chain(prev, content Digest) Digest {
	sum := sha256.Sum256([]byte(string(prev) + separator + string(content)))
	return Digest(hex.EncodeToString(sum[:]))
}

// ParseDigest validates a stored digest string.
func ParseDigest(s string) (Digest, error) {
	if len(s) != 64 {
		return "", dErrors.New(dErrors.CodeValidation, "digest must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "digest must be lower-hex")
	}
	if strings.ToLower(s) != s {
		return "", dErrors.New(dErrors.CodeValidation, "digest must be lower-hex")
	}
	return Digest(s), nil
}

// Truncate returns the first n hex characters, for verification payloads and
// locators. n larger than the digest returns the whole digest.
func (d Digest) Truncate(n int) string {
	if n >= len(d) {
		return string(d)
	}
	return string(d[:n])
}

// Sign computes the HMAC-SHA256 signature over the chained digest with the
// issuer's key, lower-hex encoded.
func Sign(chained Digest, key []byte) (string, error) {
	if len(key) == 0 {
		return "", dErrors.New(dErrors.CodeCrypto, "signing key is empty")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(chained))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks sig against the chained digest in constant time.
func VerifySignature(chained Digest, sig string, key []byte) bool {
	expected, err := Sign(chained, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig))
}
