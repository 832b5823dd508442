package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/drivelocker/storage"
)

// AccountLookup is the slice of the credential store the validator needs.
type AccountLookup interface {
	GetAccount(ctx context.Context, email string) (*storage.Account, error)
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	Email     string
	AccountID string
	ExpiresAt time.Time
}

// Validator resolves a raw token to an Identity against live account state.
type Validator struct {
	tokens   *Service
	accounts AccountLookup
}

// NewValidator returns a Validator.
func NewValidator(tokens *Service, accounts AccountLookup) *Validator {
	return &Validator{tokens: tokens, accounts: accounts}
}

// Authenticate validates raw and returns the identity it proves.
//
// Tokens whose subject has no account, that fail signature or expiry checks,
// or that were issued before the account's last password change yield
// ErrInvalidToken. Any other lookup failure is returned as-is.
func (v *Validator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	subject, ok := v.tokens.ExtractSubject(raw)
	if !ok {
		return nil, ErrInvalidToken
	}
	acct, err := v.accounts.GetAccount(ctx, subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token subject: %w", err)
	}

	c, err := v.tokens.parse(raw)
	if err != nil {
		return nil, err
	}
	if c.Subject != acct.Email {
		return nil, ErrInvalidToken
	}
	if changed := acct.PasswordChangedAt; !changed.IsZero() &&
		c.issuedAt().Before(changed.Truncate(time.Millisecond)) {
		return nil, fmt.Errorf("%w: issued before password change", ErrInvalidToken)
	}

	id := &Identity{Email: acct.Email, AccountID: acct.ID}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}
