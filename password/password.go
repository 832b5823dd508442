// Package password hashes and checks login passwords and passkeys with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/drivelocker/internal/util"
)

// MaxLength is the longest secret bcrypt accepts, in bytes.
const MaxLength = 72

// ErrTooLong is returned when a secret exceeds MaxLength bytes.
var ErrTooLong = errors.New("secret exceeds 72 bytes")

// Hasher produces and checks bcrypt hashes at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is 0.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of plain. The hash embeds its own salt.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", ErrTooLong
	}
	b := []byte(plain)
	defer util.WipeBytes(b)
	hash, err := bcrypt.GenerateFromPassword(b, h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether plain matches hash. A mismatch is (false, nil);
// an error means the hash itself is unusable.
func (h *Hasher) Compare(hash, plain string) (bool, error) {
	b := []byte(plain)
	defer util.WipeBytes(b)
	err := bcrypt.CompareHashAndPassword([]byte(hash), b)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing secret: %w", err)
	}
}
