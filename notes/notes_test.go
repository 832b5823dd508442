package notes_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/notes"
	"github.com/jmcleod/drivelocker/notify/notifytest"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/memory"
)

const (
	alice      = "alice@example.com"
	bob        = "bob@example.com"
	unverified = "carol@example.com"
)

type fixture struct {
	repo *memory.Repository
	svc  *notes.Service
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.NewRepository(),
		now:  time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	}
	accounts := account.NewService(f.repo, password.NewHasher(bcrypt.MinCost), notifytest.New())
	f.svc = notes.NewService(f.repo, accounts, notes.WithClock(clock))

	ctx := t.Context()
	for _, email := range []string{alice, bob, unverified} {
		_, err := accounts.Register(ctx, account.RegisterInput{Name: email[:strings.Index(email, "@")], Email: email, Password: "secret1"})
		require.NoError(t, err)
		if email == unverified {
			continue
		}
		_, err = f.repo.UpdateAccount(ctx, email, func(a *storage.Account) error {
			a.Verified = true
			return nil
		})
		require.NoError(t, err)
	}
	return f
}

func TestNotesFlow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	groceries, err := f.svc.Create(ctx, alice, "  Groceries ", "milk")
	require.NoError(t, err)
	assert.NotEmpty(t, groceries.ID)
	assert.Equal(t, "Groceries", groceries.Title)
	assert.False(t, groceries.Favourite)

	ideas, err := f.svc.Create(ctx, alice, "Ideas", "a vault for recipes")
	require.NoError(t, err)

	list, total, err := f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, ideas.ID, list[0].ID, "most recently updated first")

	updated, err := f.svc.Update(ctx, alice, notes.UpdateInput{ID: groceries.ID, Title: "Shopping", Content: "milk, eggs", Favourite: true})
	require.NoError(t, err)
	assert.Equal(t, "Shopping", updated.Title)
	assert.True(t, updated.Favourite)
	assert.True(t, updated.UpdatedAt.After(groceries.UpdatedAt))
	assert.True(t, groceries.CreatedAt.Equal(updated.CreatedAt))

	list, _, err = f.svc.List(ctx, alice, storage.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, groceries.ID, list[0].ID)

	empty, total, err := f.svc.List(ctx, bob, storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, total)

	n, err := f.svc.Delete(ctx, alice, []string{groceries.ID, " " + groceries.ID, ideas.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, total, err = f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestNotesRequireVerifiedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.Create(ctx, unverified, "Title", "body")
	require.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, _, err = f.svc.List(ctx, unverified, storage.Page{})
	require.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, err = f.svc.Update(ctx, unverified, notes.UpdateInput{ID: "x", Title: "t", Content: "c"})
	require.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, err = f.svc.Delete(ctx, unverified, []string{"x"})
	require.ErrorIs(t, err, account.ErrInvalidCredentials)

	_, err = f.svc.Create(ctx, "nobody@example.com", "Title", "body")
	require.ErrorIs(t, err, account.ErrUserNotFound)
}

func TestNotesMissingDetails(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for _, in := range []struct{ title, content string }{{"", "body"}, {"   ", "body"}, {"Title", ""}} {
		_, err := f.svc.Create(ctx, alice, in.title, in.content)
		require.ErrorIs(t, err, account.ErrMissingDetails, "title %q content %q", in.title, in.content)
	}

	note, err := f.svc.Create(ctx, alice, "Title", "body")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, alice, notes.UpdateInput{Title: "Title", Content: "body"})
	require.ErrorIs(t, err, account.ErrMissingDetails)
	_, err = f.svc.Update(ctx, alice, notes.UpdateInput{ID: note.ID, Title: "", Content: "body"})
	require.ErrorIs(t, err, account.ErrMissingDetails)

	_, err = f.svc.Delete(ctx, alice, nil)
	require.ErrorIs(t, err, account.ErrMissingDetails)
	_, err = f.svc.Delete(ctx, alice, []string{" ", ""})
	require.ErrorIs(t, err, account.ErrMissingDetails)
}

func TestNotesTitlesUniquePerAccount(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	journal, err := f.svc.Create(ctx, alice, "Journal", "day one")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, alice, "Journal", "again")
	require.ErrorIs(t, err, notes.ErrDuplicateTitle)

	_, err = f.svc.Create(ctx, bob, "Journal", "bob's own")
	require.NoError(t, err, "another account may reuse the title")

	recipes, err := f.svc.Create(ctx, alice, "Recipes", "soup")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, alice, notes.UpdateInput{ID: recipes.ID, Title: "Journal", Content: "soup"})
	require.ErrorIs(t, err, notes.ErrDuplicateTitle)

	_, err = f.svc.Update(ctx, alice, notes.UpdateInput{ID: journal.ID, Title: "Journal", Content: "day two"})
	require.NoError(t, err, "a note keeps its own title")
}

func TestNotesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	mine, err := f.svc.Create(ctx, alice, "Mine", "a")
	require.NoError(t, err)
	theirs, err := f.svc.Create(ctx, bob, "Theirs", "b")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, alice, notes.UpdateInput{ID: theirs.ID, Title: "Stolen", Content: "x"})
	require.ErrorIs(t, err, notes.ErrNoteNotFound)

	_, err = f.svc.Delete(ctx, alice, []string{mine.ID, theirs.ID})
	require.ErrorIs(t, err, notes.ErrNoteNotFound)

	_, total, err := f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "a rejected delete removes nothing")

	got, err := f.repo.GetNote(ctx, bob, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Theirs", got.Title)
}
