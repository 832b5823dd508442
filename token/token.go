// Package token issues and validates the signed, time-bounded bearer tokens
// that carry an account's email as subject. No server-side session state is
// kept; the only secret is the HMAC signing key.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/drivelocker/internal/uuid"
)

const (
	// DefaultTTL is how long an issued token stays valid.
	DefaultTTL = 24 * time.Hour
	// MinSecretLength is the shortest accepted signing secret, in bytes.
	MinSecretLength = 32

	issuer = "drivelocker"
)

// ErrInvalidToken is returned for malformed, forged, wrongly signed,
// expired or otherwise unacceptable tokens.
var ErrInvalidToken = errors.New("invalid token")

var signingMethod = jwt.SigningMethodHS256

// claims are the registered claims plus the issue time in milliseconds.
// The registered iat has whole-second resolution, too coarse to order a
// token against a password change made in the same second.
type claims struct {
	jwt.RegisteredClaims
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
}

// issuedAt returns the most precise issue time the token carries.
func (c *claims) issuedAt() time.Time {
	if c.IssuedAtMillis > 0 {
		return time.UnixMilli(c.IssuedAtMillis)
	}
	return c.IssuedAt.Time
}

// Service signs and verifies tokens with an HS256 key held in a memguard
// enclave for the life of the process.
type Service struct {
	key *memguard.Enclave
	ttl time.Duration
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service signing with secret. The secret slice is
// wiped once sealed.
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	s := &Service{
		key: memguard.NewEnclave(secret),
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return s, nil
}

// TTL returns the validity window of issued tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for email valid from now until now+TTL,
// along with its expiry.
func (s *Service) Issue(email string) (string, time.Time, error) {
	if email == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.New(),
		},
		IssuedAtMillis: now.UnixMilli(),
	}

	buf, err := s.key.Open()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()

	signed, err := jwt.NewWithClaims(signingMethod, c).SignedString(buf.Bytes())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, c.ExpiresAt.Time, nil
}

// Validate verifies the signature and validity window of raw and returns
// its subject.
func (s *Service) Validate(raw string) (string, error) {
	c, err := s.parse(raw)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ExtractSubject decodes the subject without verifying the signature. The
// result must only be used to look up state before full validation.
func (s *Service) ExtractSubject(raw string) (string, bool) {
	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return "", false
	}
	if c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

func (s *Service) parse(raw string) (*claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	c := &claims{}
	tok, err := parser.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return buf.Bytes(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || c.Subject == "" || c.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return c, nil
}
