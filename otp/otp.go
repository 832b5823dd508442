// Package otp issues and consumes the six-digit one-time codes used for
// email verification and password reset.
//
// Each account carries two independent codes. A code and its expiry are
// written together and cleared together, and consuming a code happens in the
// same atomic account update as the state change it authorizes.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/notify"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
)

const (
	// CodeLength is the number of digits in a code.
	CodeLength = 6
	// VerifyTTL is the validity of an email verification code.
	VerifyTTL = 24 * time.Hour
	// ResetTTL is the validity of a password reset code.
	ResetTTL = 15 * time.Minute
)

// Purpose selects which of an account's two codes an operation targets.
type Purpose int

const (
	PurposeVerify Purpose = iota
	PurposeReset
)

func (p Purpose) String() string {
	switch p {
	case PurposeVerify:
		return "verify"
	case PurposeReset:
		return "reset"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// slot returns pointers to the code and expiry fields for p.
func (p Purpose) slot(a *storage.Account) (*string, *time.Time) {
	if p == PurposeReset {
		return &a.ResetOTP, &a.ResetOTPExpiresAt
	}
	return &a.VerifyOTP, &a.VerifyOTPExpiresAt
}

var errAlreadyVerified = errors.New("already verified")

// Engine generates, stores and validates one-time codes.
type Engine struct {
	repo     storage.Repository
	notifier notify.Notifier
	hasher   *password.Hasher
	now      func() time.Time
	generate func() (string, error)
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGenerator overrides the code generator.
func WithGenerator(generate func() (string, error)) Option {
	return func(e *Engine) {
		e.generate = generate
	}
}

// NewEngine returns an Engine. hasher is used for the new password set by
// ResetPassword.
func NewEngine(repo storage.Repository, notifier notify.Notifier, hasher *password.Hasher, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		notifier: notifier,
		hasher:   hasher,
		now:      time.Now,
		generate: func() (string, error) { return util.RandomDigits(CodeLength) },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "otp"))
	return e
}

// IssueVerify stores a fresh verification code valid for VerifyTTL and
// sends it. It does nothing for an account that is already verified.
func (e *Engine) IssueVerify(ctx context.Context, email string) error {
	return e.issue(ctx, util.NormalizeEmail(email), PurposeVerify)
}

// IssueReset stores a fresh password reset code valid for ResetTTL and
// sends it.
func (e *Engine) IssueReset(ctx context.Context, email string) error {
	return e.issue(ctx, util.NormalizeEmail(email), PurposeReset)
}

func (e *Engine) issue(ctx context.Context, email string, purpose Purpose) error {
	code, err := e.generate()
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}
	ttl := VerifyTTL
	if purpose == PurposeReset {
		ttl = ResetTTL
	}
	expiresAt := e.now().UTC().Add(ttl)

	_, err = e.repo.UpdateAccount(ctx, email, func(a *storage.Account) error {
		if purpose == PurposeVerify && a.Verified {
			return errAlreadyVerified
		}
		c, exp := purpose.slot(a)
		*c, *exp = code, expiresAt
		a.UpdatedAt = e.now().UTC()
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyVerified):
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	case err != nil:
		return fmt.Errorf("storing %s code: %w", purpose, err)
	}
	e.logger.InfoContext(ctx, "otp issued", slog.String("purpose", purpose.String()), slog.Time("expires_at", expiresAt))

	if purpose == PurposeReset {
		err = e.notifier.SendPasswordReset(ctx, email, code)
	} else {
		err = e.notifier.SendVerification(ctx, email, code)
	}
	if err != nil {
		return fmt.Errorf("%w: %s code: %v", account.ErrDispatchFailure, purpose, err)
	}
	return nil
}

// Verify consumes the purpose code of the account if code matches and has
// not expired, applying transition in the same atomic update. The stored
// code and expiry are cleared only on success.
//
// A missing or mismatched code yields ErrInvalidOTP and is checked before
// expiry, which yields ErrOTPExpired. transition may be nil.
func (e *Engine) Verify(ctx context.Context, email, code string, purpose Purpose, transition func(*storage.Account) error) error {
	email = util.NormalizeEmail(email)
	_, err := e.repo.UpdateAccount(ctx, email, func(a *storage.Account) error {
		stored, expiresAt := purpose.slot(a)
		if *stored == "" || subtle.ConstantTimeCompare([]byte(*stored), []byte(code)) != 1 {
			return account.ErrInvalidOTP
		}
		now := e.now()
		if expiresAt.Before(now) {
			return account.ErrOTPExpired
		}
		if transition != nil {
			if err := transition(a); err != nil {
				return err
			}
		}
		*stored, *expiresAt = "", time.Time{}
		a.UpdatedAt = now.UTC()
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	return err
}

// VerifyEmail consumes the verification code and marks the account verified.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	err := e.Verify(ctx, email, code, PurposeVerify, func(a *storage.Account) error {
		a.Verified = true
		return nil
	})
	if err == nil {
		e.logger.InfoContext(ctx, "email verified")
	}
	return err
}

// ResetPassword consumes the reset code and replaces the password. Tokens
// issued before the change stop validating.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if email == "" || newPassword == "" {
		return fmt.Errorf("%w: email and new password are required", account.ErrMissingDetails)
	}
	if len(newPassword) < account.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", account.ErrMissingDetails, account.MinPasswordLength)
	}
	hash, err := e.hasher.Hash(newPassword)
	if errors.Is(err, password.ErrTooLong) {
		return fmt.Errorf("%w: password must be at most %d bytes", account.ErrMissingDetails, password.MaxLength)
	}
	if err != nil {
		return err
	}

	err = e.Verify(ctx, email, code, PurposeReset, func(a *storage.Account) error {
		a.PasswordHash = hash
		a.PasswordChangedAt = e.now().UTC().Truncate(time.Millisecond)
		return nil
	})
	if err == nil {
		e.logger.InfoContext(ctx, "password reset")
	}
	return err
}
