package services

import (
	"fmt"
	"strings"
)

const (
	nationalNumberLength = 10
	minPhoneDigits       = 8
	maxPhoneDigits       = 15 // E.164
)

// PhoneNumber is a shop identifier in canonical "+<digits>" form together
// with the spellings older records may have been stored under.
type PhoneNumber struct {
	Canonical string
	Variants  []string
}

// PhoneNormalizer canonicalizes shop phone identifiers. A bare national
// number is assumed domestic and gets the default country code.
type PhoneNormalizer struct {
	countryCode string
}

func NewPhoneNormalizer(countryCode string) *PhoneNormalizer {
	countryCode = strings.TrimLeft(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = "91"
	}
	return &PhoneNormalizer{countryCode: countryCode}
}

// Normalize returns the canonical form of raw. It fails with ErrValidation on
// empty input, letters, or a digit count outside E.164 bounds.
func (n *PhoneNormalizer) Normalize(raw string) (PhoneNumber, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PhoneNumber{}, fmt.Errorf("%w: shop phone is required", ErrValidation)
	}

	international := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return PhoneNumber{}, fmt.Errorf("%w: shop phone %q is not numeric", ErrValidation, raw)
		}
	}

	d := digits.String()
	switch {
	case international:
	case strings.HasPrefix(d, "00"):
		d = d[2:]
	case len(d) == nationalNumberLength:
		d = n.countryCode + d
	case len(d) == nationalNumberLength+1 && d[0] == '0':
		d = n.countryCode + d[1:]
	}

	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits {
		return PhoneNumber{}, fmt.Errorf("%w: shop phone %q has %d digits", ErrValidation, raw, len(d))
	}

	canonical := "+" + d
	return PhoneNumber{Canonical: canonical, Variants: n.variants(d)}, nil
}

// Canonical is Normalize without the variants.
func (n *PhoneNormalizer) Canonical(raw string) (string, error) {
	p, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}
	return p.Canonical, nil
}

func (n *PhoneNormalizer) variants(d string) []string {
	out := []string{"+" + d, d}
	if strings.HasPrefix(d, n.countryCode) && len(d) == len(n.countryCode)+nationalNumberLength {
		national := d[len(n.countryCode):]
		out = append(out, national, "0"+national)
	}
	return out
}
