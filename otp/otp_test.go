package otp_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/notify/notifytest"
	"github.com/jmcleod/drivelocker/otp"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	repo     *memory.Repository
	outbox   *notifytest.Outbox
	clock    *clock
	hasher   *password.Hasher
	accounts *account.Service
	engine   *otp.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   memory.NewRepository(),
		outbox: notifytest.New(),
		clock:  &clock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)},
		hasher: password.NewHasher(bcrypt.MinCost),
	}
	f.accounts = account.NewService(f.repo, f.hasher, f.outbox, account.WithClock(f.clock.Now))
	f.engine = otp.NewEngine(f.repo, f.outbox, f.hasher, otp.WithClock(f.clock.Now))
	return f
}

func (f *fixture) register(t *testing.T, email string) {
	t.Helper()
	_, err := f.accounts.Register(t.Context(), account.RegisterInput{Name: "User", Email: email, Password: "original-pw"})
	require.NoError(t, err)
}

func (f *fixture) lastCode(t *testing.T, email string, kind notifytest.Kind) string {
	t.Helper()
	msg, ok := f.outbox.Last(email, kind)
	require.True(t, ok, "no %s message for %s", kind, email)
	return msg.Code
}

func (f *fixture) account(t *testing.T, email string) *storage.Account {
	t.Helper()
	a, err := f.repo.GetAccount(t.Context(), email)
	require.NoError(t, err)
	return a
}

func TestEmailVerificationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "alice@example.com")

	require.NoError(t, f.engine.IssueVerify(ctx, "alice@example.com"))
	code := f.lastCode(t, "alice@example.com", notifytest.Verification)
	assert.Len(t, code, otp.CodeLength)
	assert.True(t, util.IsASCIIDigits(code))

	acct := f.account(t, "alice@example.com")
	assert.Equal(t, code, acct.VerifyOTP)
	assert.True(t, f.clock.Now().Add(otp.VerifyTTL).Equal(acct.VerifyOTPExpiresAt))

	require.NoError(t, f.engine.VerifyEmail(ctx, "alice@example.com", code))
	acct = f.account(t, "alice@example.com")
	assert.True(t, acct.Verified)
	assert.Empty(t, acct.VerifyOTP)
	assert.True(t, acct.VerifyOTPExpiresAt.IsZero())

	err := f.engine.VerifyEmail(ctx, "alice@example.com", code)
	require.ErrorIs(t, err, account.ErrInvalidOTP, "codes are single-use")
}

func TestIssueVerifyIsNoopWhenVerified(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "bob@example.com")
	require.NoError(t, f.engine.IssueVerify(ctx, "bob@example.com"))
	require.NoError(t, f.engine.VerifyEmail(ctx, "bob@example.com", f.lastCode(t, "bob@example.com", notifytest.Verification)))

	require.NoError(t, f.engine.IssueVerify(ctx, "bob@example.com"))
	assert.Equal(t, 1, f.outbox.Count("bob@example.com", notifytest.Verification))
	assert.Empty(t, f.account(t, "bob@example.com").VerifyOTP)
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "carol@example.com")
	require.NoError(t, f.engine.IssueVerify(ctx, "carol@example.com"))
	code := f.lastCode(t, "carol@example.com", notifytest.Verification)

	for _, wrong := range []string{"", "000000", " " + code, code + " "} {
		err := f.engine.VerifyEmail(ctx, "carol@example.com", wrong)
		require.ErrorIs(t, err, account.ErrInvalidOTP, "submitted %q", wrong)
	}
	acct := f.account(t, "carol@example.com")
	assert.False(t, acct.Verified)
	assert.Equal(t, code, acct.VerifyOTP, "failed attempts leave the code in place")
}

func TestVerifyWithoutIssuedCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "dan@example.com")
	err := f.engine.VerifyEmail(t.Context(), "dan@example.com", "123456")
	require.ErrorIs(t, err, account.ErrInvalidOTP)
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "erin@example.com")
	require.NoError(t, f.engine.IssueVerify(ctx, "erin@example.com"))
	code := f.lastCode(t, "erin@example.com", notifytest.Verification)

	f.clock.Advance(otp.VerifyTTL + time.Second)

	err := f.engine.VerifyEmail(ctx, "erin@example.com", "999999")
	require.ErrorIs(t, err, account.ErrInvalidOTP, "mismatch is reported before expiry")

	err = f.engine.VerifyEmail(ctx, "erin@example.com", code)
	require.ErrorIs(t, err, account.ErrOTPExpired)
	acct := f.account(t, "erin@example.com")
	assert.False(t, acct.Verified)
	assert.Equal(t, code, acct.VerifyOTP)
}

func TestVerifyAtExactExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "fay@example.com")
	require.NoError(t, f.engine.IssueVerify(ctx, "fay@example.com"))
	code := f.lastCode(t, "fay@example.com", notifytest.Verification)

	f.clock.Advance(otp.VerifyTTL)
	require.NoError(t, f.engine.VerifyEmail(ctx, "fay@example.com", code))
}

func TestReissueReplacesCode(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "gus@example.com")

	codes := []string{"111111", "222222"}
	i := 0
	engine := otp.NewEngine(f.repo, f.outbox, f.hasher, otp.WithClock(f.clock.Now),
		otp.WithGenerator(func() (string, error) {
			c := codes[i]
			i++
			return c, nil
		}))

	require.NoError(t, engine.IssueVerify(ctx, "gus@example.com"))
	require.NoError(t, engine.IssueVerify(ctx, "gus@example.com"))

	require.ErrorIs(t, engine.VerifyEmail(ctx, "gus@example.com", "111111"), account.ErrInvalidOTP)
	require.NoError(t, engine.VerifyEmail(ctx, "gus@example.com", "222222"))
}

func TestPasswordResetScenario(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "hana@example.com")

	require.NoError(t, f.engine.IssueReset(ctx, "HANA@example.com"))
	code := f.lastCode(t, "hana@example.com", notifytest.Reset)
	acct := f.account(t, "hana@example.com")
	assert.True(t, f.clock.Now().Add(otp.ResetTTL).Equal(acct.ResetOTPExpiresAt))
	assert.Empty(t, acct.VerifyOTP, "reset and verify codes are independent")

	f.clock.Advance(time.Minute)
	require.NoError(t, f.engine.ResetPassword(ctx, "hana@example.com", code, "brand-new-pw"))

	acct = f.account(t, "hana@example.com")
	assert.Empty(t, acct.ResetOTP)
	assert.True(t, acct.ResetOTPExpiresAt.IsZero())
	assert.True(t, f.clock.Now().Equal(acct.PasswordChangedAt))

	_, err := f.accounts.Authenticate(ctx, "hana@example.com", "brand-new-pw")
	require.NoError(t, err)
	_, err = f.accounts.Authenticate(ctx, "hana@example.com", "original-pw")
	require.ErrorIs(t, err, account.ErrInvalidCredentials)

	err = f.engine.ResetPassword(ctx, "hana@example.com", code, "another-pw")
	require.ErrorIs(t, err, account.ErrInvalidOTP)
}

func TestPasswordResetExpired(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "ivan@example.com")
	require.NoError(t, f.engine.IssueReset(ctx, "ivan@example.com"))
	code := f.lastCode(t, "ivan@example.com", notifytest.Reset)

	f.clock.Advance(16 * time.Minute)
	err := f.engine.ResetPassword(ctx, "ivan@example.com", code, "brand-new-pw")
	require.ErrorIs(t, err, account.ErrOTPExpired)

	_, err = f.accounts.Authenticate(ctx, "ivan@example.com", "original-pw")
	require.NoError(t, err, "password unchanged after expired reset")
}

func TestPasswordResetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "jo@example.com")
	require.NoError(t, f.engine.IssueReset(ctx, "jo@example.com"))
	code := f.lastCode(t, "jo@example.com", notifytest.Reset)

	require.ErrorIs(t, f.engine.ResetPassword(ctx, "jo@example.com", code, ""), account.ErrMissingDetails)
	require.ErrorIs(t, f.engine.ResetPassword(ctx, "jo@example.com", code, "123"), account.ErrMissingDetails)
	require.ErrorIs(t, f.engine.ResetPassword(ctx, "jo@example.com", "", "long-enough"), account.ErrInvalidOTP)
	require.ErrorIs(t, f.engine.ResetPassword(ctx, "jo@example.com", " "+code, "long-enough"), account.ErrInvalidOTP)
	require.ErrorIs(t, f.engine.ResetPassword(ctx, "jo@example.com", code+"\n", "long-enough"), account.ErrInvalidOTP)

	assert.Equal(t, code, f.account(t, "jo@example.com").ResetOTP, "invalid input does not consume the code")
}

func TestUnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	require.ErrorIs(t, f.engine.IssueReset(ctx, "nobody@example.com"), account.ErrUserNotFound)
	require.ErrorIs(t, f.engine.IssueVerify(ctx, "nobody@example.com"), account.ErrUserNotFound)
	require.ErrorIs(t, f.engine.VerifyEmail(ctx, "nobody@example.com", "123456"), account.ErrUserNotFound)
}

func TestDispatchFailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "kim@example.com")
	f.outbox.FailWith(errors.New("smtp unavailable"))

	err := f.engine.IssueReset(ctx, "kim@example.com")
	require.ErrorIs(t, err, account.ErrDispatchFailure)
	assert.NotEmpty(t, f.account(t, "kim@example.com").ResetOTP)
}

func TestConcurrentVerifySingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.register(t, "lee@example.com")
	require.NoError(t, f.engine.IssueVerify(ctx, "lee@example.com"))
	code := f.lastCode(t, "lee@example.com", notifytest.Verification)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.engine.VerifyEmail(ctx, "lee@example.com", code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, account.ErrInvalidOTP):
				invalid++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, invalid)
}

func TestPurposeString(t *testing.T) {
	assert.Equal(t, "verify", otp.PurposeVerify.String())
	assert.Equal(t, "reset", otp.PurposeReset.String())
}
