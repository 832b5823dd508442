// Package uuid provides random identifiers for accounts, files and tokens.
package uuid

import "github.com/google/uuid"

// New returns a new random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
