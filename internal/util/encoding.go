package util

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var emailFolder = cases.Fold()

// NormalizeEmail returns the canonical lookup form of an email address:
// surrounding whitespace removed, NFKC-normalized and case-folded.
func NormalizeEmail(s string) string {
	return emailFolder.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// IsASCIIDigits reports whether s is non-empty and consists only of 0-9.
func IsASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
