// Package account implements registration, password login and profile
// lookup, and defines the error kinds shared by the OTP, passkey and file
// services.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/internal/uuid"
	"github.com/jmcleod/drivelocker/notify"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
)

// MinPasswordLength is the shortest login password accepted at registration.
const MinPasswordLength = 6

// Profile is the public view of an account.
type Profile struct {
	ID         string
	Name       string
	Email      string
	Verified   bool
	HasPasskey bool
}

// ProfileOf returns the public view of acct.
func ProfileOf(acct *storage.Account) *Profile {
	return &Profile{
		ID:         acct.ID,
		Name:       acct.Name,
		Email:      acct.Email,
		Verified:   acct.Verified,
		HasPasskey: acct.HasPasskey,
	}
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service implements account registration and password authentication.
type Service struct {
	repo     storage.Repository
	hasher   *password.Hasher
	notifier notify.Notifier
	now      func() time.Time
	logger   *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a Service.
func NewService(repo storage.Repository, hasher *password.Hasher, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		notifier: notifier,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "account"))
	return s
}

// Register creates an unverified account and sends the welcome email.
//
// If the account was created but the welcome email could not be sent, the
// profile is returned together with an error wrapping ErrDispatchFailure.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrMissingDetails)
	}
	if !validEmail(in.Email) {
		return nil, fmt.Errorf("%w: a valid email is required", ErrMissingDetails)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrMissingDetails, MinPasswordLength)
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, password.ErrTooLong) {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrMissingDetails, password.MaxLength)
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acct := &storage.Account{
		ID:           uuid.New(),
		Email:        util.NormalizeEmail(in.Email),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", acct.Email, ErrEmailAlreadyExists)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}
	s.logger.InfoContext(ctx, "account registered", slog.String("account_id", acct.ID))

	profile := ProfileOf(acct)
	if err := s.notifier.SendWelcome(ctx, acct.Email, acct.Name); err != nil {
		return profile, fmt.Errorf("%w: welcome email: %v", ErrDispatchFailure, err)
	}
	return profile, nil
}

// Profile returns the public view of the account registered under email.
func (s *Service) Profile(ctx context.Context, email string) (*Profile, error) {
	acct, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	return ProfileOf(acct), nil
}

// Authenticate checks a login password. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials, after comparable work.
func (s *Service) Authenticate(ctx context.Context, email, plain string) (*storage.Account, error) {
	acct, err := s.repo.GetAccount(ctx, util.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		s.burnCompare(plain)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Compare(acct.PasswordHash, plain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// RequireVerified returns the account if it exists and its email has been
// verified.
func (s *Service) RequireVerified(ctx context.Context, email string) (*storage.Account, error) {
	acct, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if !acct.Verified {
		return nil, fmt.Errorf("%w: please verify your account first to use this service", ErrInvalidCredentials)
	}
	return acct, nil
}

func (s *Service) lookup(ctx context.Context, email string) (*storage.Account, error) {
	acct, err := s.repo.GetAccount(ctx, util.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// burnCompare runs a bcrypt comparison against a throwaway hash so unknown
// emails cost about as much as wrong passwords.
func (s *Service) burnCompare(plain string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.New())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Compare(s.dummyHash, plain)
	}
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, "@")
}
