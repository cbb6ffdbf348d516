package whatsapp

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone converts a user supplied number to international digits.
// A leading "+" means the number already carries its country code;
// otherwise a national trunk "0" is replaced by countryCode, or countryCode
// is prepended.
func NormalizePhone(raw, countryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	digits := nonDigits.ReplaceAllString(trimmed, "")
	if digits == "" {
		return "", ErrInvalidRecipient
	}
	if international {
		return digits, nil
	}
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
		if digits == "" {
			return "", ErrInvalidRecipient
		}
	}
	return countryCode + digits, nil
}
