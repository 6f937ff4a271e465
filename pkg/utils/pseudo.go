package utils

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	MinPseudoLength = 3
	MaxPseudoLength = 20
)

var pseudoRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidationError carries the offending field along with the message so the
// gateway can report it back on the originating session only.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidatePseudo checks the handle format: 3-20 characters, letters, numbers
// and underscores, starting with a letter or number. Matching elsewhere is
// case-sensitive; no normalization happens here.
func ValidatePseudo(pseudo string) error {
	if len(pseudo) < MinPseudoLength {
		return &ValidationError{Field: "pseudo", Message: "pseudo must be at least 3 characters"}
	}
	if len(pseudo) > MaxPseudoLength {
		return &ValidationError{Field: "pseudo", Message: "pseudo must be at most 20 characters"}
	}
	if !pseudoRegex.MatchString(pseudo) {
		return &ValidationError{Field: "pseudo", Message: "pseudo can only contain letters, numbers, and underscores"}
	}
	first := rune(pseudo[0])
	if !unicode.IsLetter(first) && !unicode.IsNumber(first) {
		return &ValidationError{Field: "pseudo", Message: "pseudo must start with a letter or number"}
	}
	return nil
}

// ValidatePassword applies the minimum password policy.
func ValidatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 8 {
		return &ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}
