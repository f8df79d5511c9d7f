package payment

import (
	"errors"
	"regexp"
	"strings"
)

// CountryCode is the international prefix for Kenyan mobile numbers.
const CountryCode = "254"

var (
	ErrInvalidPhone  = errors.New("invalid phone format")
	ErrInvalidAmount = errors.New("amount must be a positive whole number")

	nonDigits      = regexp.MustCompile(`\D`)
	canonicalPhone = regexp.MustCompile(`^254[17]\d{8}$`)
)

// FormatPhone rewrites a user-entered number into 2547XXXXXXXX / 2541XXXXXXXX
// form. Input it cannot map is returned as its digits only.
func FormatPhone(raw string) string {
	cleaned := nonDigits.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(cleaned, "07"):
		return CountryCode + "7" + cleaned[2:]
	case strings.HasPrefix(cleaned, "01"):
		return CountryCode + "1" + cleaned[2:]
	case strings.HasPrefix(cleaned, CountryCode) && len(cleaned) == 12:
		return cleaned
	case len(cleaned) == 9:
		return CountryCode + cleaned
	}
	return cleaned
}

// IsValidPhone reports whether raw formats to a canonical Safaricom/Airtel number.
func IsValidPhone(raw string) bool {
	return canonicalPhone.MatchString(FormatPhone(raw))
}

// NormalizePhone returns the canonical form of raw or ErrInvalidPhone.
func NormalizePhone(raw string) (string, error) {
	formatted := FormatPhone(raw)
	if !canonicalPhone.MatchString(formatted) {
		return "", ErrInvalidPhone
	}
	return formatted, nil
}
