package gateway

import (
	"regexp"
	"strings"
)

var (
	phoneStripPattern = regexp.MustCompile(`[\s\-\(\)\.]+`)
	e164Pattern       = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FormatPhone normalizes a raw phone number to E.164. Numbers with a leading
// zero get the zero replaced by the country code; numbers already starting
// with the country code or a plus sign are kept as-is.
func FormatPhone(raw, countryCode string) string {
	phone := phoneStripPattern.ReplaceAllString(raw, "")
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return phone
	}
	if strings.HasPrefix(phone, "00") {
		return "+" + phone[2:]
	}
	if countryCode != "" {
		countryCode = strings.TrimPrefix(countryCode, "+")
		if strings.HasPrefix(phone, "0") {
			return "+" + countryCode + phone[1:]
		}
		if strings.HasPrefix(phone, countryCode) {
			return "+" + phone
		}
		return "+" + countryCode + phone
	}
	return "+" + phone
}

// IsValidE164 reports whether phone is a plausible E.164 number
func IsValidE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// IsValidEmail performs basic email address validation
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return emailPattern.MatchString(email)
}
