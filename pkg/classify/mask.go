package classify

import (
	"strings"
	"unicode"
)

const maskChar = '*'

// MaskSample returns a display-safe form of a sample. Emails keep their
// first character and domain. Digit-bearing SITs keep their last four
// digits, anything else keeps its first and last character. Separators are
// preserved so the shape of the value stays recognizable.
func MaskSample(sitID, value string) string {
	if value == "" {
		return ""
	}
	switch sitID {
	case SITEmail:
		return maskEmail(value)
	case SITUSSSN, SITCreditCard, SITUSPhone, SITIBAN:
		return maskKeepLastDigits(value, 4)
	case SITIPAddress:
		return maskIP(value)
	default:
		return maskGeneric(value)
	}
}

// MaskMatches masks every sample in place
func MaskMatches(matches []ClassificationMatch) {
	for i := range matches {
		for j, s := range matches[i].Samples {
			matches[i].Samples[j] = MaskSample(matches[i].Key(), s)
		}
	}
}

func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return maskGeneric(email)
	}
	local := []rune(email[:at])
	return string(local[0]) + strings.Repeat(string(maskChar), len(local)-1) + email[at:]
}

func maskKeepLastDigits(value string, keep int) string {
	runes := []rune(value)
	kept := 0
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if unicode.IsDigit(r) && kept < keep {
			kept++
			continue
		}
		runes[i] = maskChar
	}
	return string(runes)
}

func maskIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return maskGeneric(ip)
	}
	for i := 0; i < 3; i++ {
		parts[i] = strings.Repeat(string(maskChar), len(parts[i]))
	}
	return strings.Join(parts, ".")
}

func maskGeneric(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return strings.Repeat(string(maskChar), len(runes))
	}
	for i := 1; i < len(runes)-1; i++ {
		runes[i] = maskChar
	}
	return string(runes)
}
