package utils

import (
	"html"
	"strings"
	"unicode"
)

const (
	// MaxStatusLength caps the free-text status field.
	MaxStatusLength = 50
	// MaxMessageLength caps text chat content.
	MaxMessageLength = 2000
)

// SanitizeText trims, strips control characters (newlines survive), escapes
// HTML and truncates to max runes. Used for statuses and text messages before
// they are persisted or delivered.
func SanitizeText(s string, max int) string {
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	s = html.EscapeString(b.String())

	runes := []rune(s)
	if len(runes) > max {
		s = string(runes[:max])
	}
	return s
}
