package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clip trims surrounding whitespace, drops control characters and cuts the
// result to at most maxRunes runes. maxRunes <= 0 disables the cut.
func Clip(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
}

// NormalizeEmail trims and lowercases an address; empty input stays empty.
func NormalizeEmail(input string) string {
	return strings.ToLower(Clip(input, 254))
}
