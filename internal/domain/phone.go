package domain

import "strings"

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// CanonicalPhone strips everything but digits and a leading international
// "00". When dialCode is set, a nine digit national number is prefixed with it.
func CanonicalPhone(raw, dialCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "00")

	if dialCode != "" && len(digits) == 9 && !strings.HasPrefix(digits, dialCode) {
		digits = dialCode + digits
	}
	return digits
}

// ValidatePhone checks that a canonical phone number has a plausible length
func ValidatePhone(canonical string) error {
	if len(canonical) < minPhoneDigits || len(canonical) > maxPhoneDigits {
		return NewValidationError("phone", "must contain 8 to 15 digits")
	}
	return nil
}
