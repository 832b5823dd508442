package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomIntn returns a uniformly distributed integer in [0, max) drawn from
// crypto/rand.
func RandomIntn(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}

// RandomDigits returns a decimal code of exactly n digits with no leading
// zero, e.g. 100000-999999 for n=6.
func RandomDigits(n int) (string, error) {
	if n <= 0 || n > 18 {
		return "", fmt.Errorf("random digits: unsupported width %d", n)
	}
	low := 1
	for i := 1; i < n; i++ {
		low *= 10
	}
	v, err := RandomIntn(9 * low)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v+low), nil
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
