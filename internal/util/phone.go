package util

import (
	"regexp"
	"strings"
)

var nonDigit = regexp.MustCompile(`[^\d\+]+`)

// NormalizeDest converts user input into the upstream's digit-only
// international format: strip punctuation and any leading "+" or "00", then
// left-pad short local numbers with the given country calling code
// (9 digits starting with the mobile prefix "7", or the 10-digit
// "0"-prefixed local form).
func NormalizeDest(raw, countryCode string) string {
	s := nonDigit.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	}

	if countryCode == "" {
		return s
	}

	switch {
	case len(s) == 9 && strings.HasPrefix(s, "7"):
		s = countryCode + s
	case len(s) == 10 && strings.HasPrefix(s, "0"):
		s = countryCode + s[1:]
	}

	return s
}
