// Package passkey implements the secondary secret that gates file access.
//
// A passkey is set once per account, stored only as a bcrypt hash, and
// checked on every sensitive file operation. It is independent of the login
// password and cannot be rotated.
package passkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
)

// MinLength is the shortest accepted passkey.
const MinLength = 8

// Symbols is the set of special characters a passkey may (and must) use.
const Symbols = "@$!%*?&"

// CheckPolicy reports whether candidate is at least MinLength characters of
// [A-Za-z0-9] and Symbols, containing at least one lowercase letter, one
// uppercase letter, one digit and one symbol.
func CheckPolicy(candidate string) error {
	if len(candidate) < MinLength {
		return fmt.Errorf("%w: must be at least %d characters", account.ErrWeakPasskey, MinLength)
	}
	if len(candidate) > password.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", account.ErrWeakPasskey, password.MaxLength)
	}
	var lower, upper, digit, symbol bool
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		default:
			return fmt.Errorf("%w: only letters, digits and %s are allowed", account.ErrWeakPasskey, Symbols)
		}
	}
	if !lower || !upper || !digit || !symbol {
		return fmt.Errorf("%w: needs an uppercase letter, a lowercase letter, a digit and one of %s", account.ErrWeakPasskey, Symbols)
	}
	return nil
}

// Gate creates and verifies passkeys.
type Gate struct {
	repo   storage.Repository
	hasher *password.Hasher
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate returns a Gate.
func NewGate(repo storage.Repository, hasher *password.Hasher, opts ...Option) *Gate {
	g := &Gate{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "passkey"))
	return g
}

// Create sets the account's passkey. Checks run in order: inputs present,
// policy, account exists, no passkey yet.
func (g *Gate) Create(ctx context.Context, email, candidate string) error {
	if email == "" || candidate == "" {
		return fmt.Errorf("%w: passkey is required", account.ErrMissingDetails)
	}
	if err := CheckPolicy(candidate); err != nil {
		return err
	}
	email = util.NormalizeEmail(email)

	acct, err := g.repo.GetAccount(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	if err != nil {
		return err
	}
	if acct.HasPasskey {
		return fmt.Errorf("%s: %w", email, account.ErrPasskeyAlreadyExists)
	}

	hash, err := g.hasher.Hash(candidate)
	if err != nil {
		return err
	}
	err = g.repo.CreatePasskey(ctx, &storage.Passkey{
		AccountEmail: email,
		Hash:         hash,
		CreatedAt:    g.now().UTC(),
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s: %w", email, account.ErrPasskeyAlreadyExists)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	case err != nil:
		return fmt.Errorf("storing passkey: %w", err)
	}
	g.logger.InfoContext(ctx, "passkey created", slog.String("account_id", acct.ID))
	return nil
}

// Verify reports whether candidate matches the account's passkey. An
// account without a passkey yields ErrUserNotFound.
func (g *Gate) Verify(ctx context.Context, email, candidate string) (bool, error) {
	email = util.NormalizeEmail(email)
	pk, err := g.repo.GetPasskey(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("passkey not created for %s: %w", email, account.ErrUserNotFound)
	}
	if err != nil {
		return false, err
	}
	return g.hasher.Compare(pk.Hash, candidate)
}

// Authorize is Verify with a mismatch reported as ErrInvalidPasskey.
func (g *Gate) Authorize(ctx context.Context, email, candidate string) error {
	if candidate == "" {
		return fmt.Errorf("%w: passkey is required", account.ErrMissingDetails)
	}
	ok, err := g.Verify(ctx, email, candidate)
	if err != nil {
		return err
	}
	if !ok {
		return account.ErrInvalidPasskey
	}
	return nil
}
