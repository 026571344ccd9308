package utils

import (
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	spaceRuns    = regexp.MustCompile(`\s+`)
	phoneNoise   = regexp.MustCompile(`[\s\-\.\(\)]+`)

	// Vietnamese mobile numbers: 03x, 05x, 07x, 08x, 09x with 0, 84 or +84.
	vnMobile = regexp.MustCompile(`^(\+84|84|0)[35789]\d{8}$`)
)

// SanitizeText strips control characters and markup from free text, collapses
// whitespace and caps the result at maxRunes characters.
func SanitizeText(input string, maxRunes int) string {
	sanitized := controlChars.ReplaceAllString(input, "")
	sanitized = htmlTags.ReplaceAllString(sanitized, "")
	sanitized = spaceRuns.ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)
	return strings.TrimSpace(TruncateRunes(sanitized, maxRunes))
}

// IsPhoneNumber reports whether phone looks like a Vietnamese mobile number.
func IsPhoneNumber(phone string) bool {
	return vnMobile.MatchString(phoneNoise.ReplaceAllString(phone, ""))
}

// NormalizePhone returns the domestic 0xxxxxxxxx form the carrier expects,
// or phone unchanged when it is not a mobile number.
func NormalizePhone(phone string) string {
	cleaned := phoneNoise.ReplaceAllString(phone, "")
	if !vnMobile.MatchString(cleaned) {
		return phone
	}
	switch {
	case strings.HasPrefix(cleaned, "+84"):
		return "0" + cleaned[3:]
	case strings.HasPrefix(cleaned, "84"):
		return "0" + cleaned[2:]
	}
	return cleaned
}
