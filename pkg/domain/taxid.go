package domain

import (
	"strings"
	"unicode"

	dErrors "facturo/pkg/domain-errors"
)

// TaxID is a validated Spanish tax identifier (NIF, NIE, or CIF), stored in
// normalized form: upper-case, no separators, optional "ES-" country prefix
// stripped. The zero value is invalid; construct via ParseTaxID.
//
// The checksum is validated at parse time, so any TaxID that flows into a
// content digest was well-formed when captured. Issued invoices keep whatever
// the identifier looked like at emission; re-validation never mutates stored
// chain links.
type TaxID struct {
	value string
}

// dniLetters maps n mod 23 to the DNI/NIE control letter.
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// cifControlLetters maps the computed control digit to its letter form for
// organization types that use a letter check (K, P, Q, S, N, W, R).
const cifControlLetters = "JABCDEFGHI"

// ParseTaxID normalizes and validates a tax identifier.
// Accepted forms: "12345678Z" (DNI), "X1234567L" (NIE), "B12345674" (CIF),
// each optionally prefixed with "ES-" or "ES" and with spaces or dashes
// between groups.
func ParseTaxID(s string) (TaxID, error) {
	norm := normalizeTaxID(s)
	if norm == "" {
		return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id is required")
	}
	if len(norm) != 9 {
		return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id must be 9 characters after normalization")
	}
	switch {
	case isDigit(rune(norm[0])):
		if !validDNI(norm) {
			return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id has an invalid DNI check letter")
		}
	case norm[0] == 'X' || norm[0] == 'Y' || norm[0] == 'Z':
		if !validNIE(norm) {
			return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id has an invalid NIE check letter")
		}
	case norm[0] >= 'A' && norm[0] <= 'W':
		if !validCIF(norm) {
			return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id has an invalid CIF control character")
		}
	default:
		return TaxID{}, dErrors.New(dErrors.CodeValidation, "tax id has an unrecognized format")
	}
	return TaxID{value: norm}, nil
}

// MustTaxID parses s and panics on failure. Test fixtures only.
func MustTaxID(s string) TaxID {
	t, err := ParseTaxID(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TaxID) String() string { return t.value }

func (t TaxID) IsZero() bool { return t.value == "" }

func (t TaxID) MarshalText() ([]byte, error) { return []byte(t.value), nil }

func (t *TaxID) UnmarshalText(b []byte) error {
	parsed, err := ParseTaxID(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func normalizeTaxID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "ES-")
	s = strings.TrimPrefix(s, "ES")
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validDNI(s string) bool {
	n := 0
	for _, r := range s[:8] {
		if !isDigit(r) {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return s[8] == dniLetters[n%23]
}

func validNIE(s string) bool {
	// X/Y/Z map to a leading 0/1/2 digit, then the DNI rule applies.
	lead := int(s[0] - 'X')
	n := lead
	for _, r := range s[1:8] {
		if !isDigit(r) {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return s[8] == dniLetters[n%23]
}

func validCIF(s string) bool {
	sum := 0
	for i, r := range s[1:8] {
		if !isDigit(r) {
			return false
		}
		d := int(r - '0')
		if i%2 == 0 {
			// Odd positions (1-based) are doubled and digit-summed.
			d *= 2
			if d > 9 {
				d = d/10 + d%10
			}
		}
		sum += d
	}
	control := (10 - sum%10) % 10
	check := s[8]
	if isDigit(rune(check)) {
		return int(check-'0') == control
	}
	return check == cifControlLetters[control]
}

func isDigit(r rune) bool { return unicode.IsDigit(r) }
