// Package storagetest holds the behavioural checks every storage.Repository
// backend must pass. Backend test files call Run with a constructor.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/drivelocker/storage"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(email string) *storage.Account {
	return &storage.Account{
		ID:           "id-" + email,
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

// Run exercises repo against the storage.Repository contract. newRepo must
// return an empty repository for each call.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newRepo(t)) })
	t.Run("UpdateAccount", func(t *testing.T) { testUpdateAccount(t, newRepo(t)) })
	t.Run("Passkeys", func(t *testing.T) { testPasskeys(t, newRepo(t)) })
	t.Run("ConcurrentPasskeyCreate", func(t *testing.T) { testConcurrentPasskey(t, newRepo(t)) })
	t.Run("Files", func(t *testing.T) { testFiles(t, newRepo(t)) })
	t.Run("FilePages", func(t *testing.T) { testFilePages(t, newRepo(t)) })
	t.Run("Notes", func(t *testing.T) { testNotes(t, newRepo(t)) })
	t.Run("NoteTitles", func(t *testing.T) { testNoteTitles(t, newRepo(t)) })
	t.Run("NotePages", func(t *testing.T) { testNotePages(t, newRepo(t)) })
}

func testAccounts(t *testing.T, repo storage.Repository) {
	ctx := t.Context()

	_, err := repo.GetAccount(ctx, "alice@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.CreateAccount(ctx, newAccount("alice@example.com")))

	got, err := repo.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-alice@example.com", got.ID)
	assert.Equal(t, "Test User", got.Name)
	assert.False(t, got.Verified)
	assert.Empty(t, got.VerifyOTP)
	assert.True(t, got.VerifyOTPExpiresAt.IsZero())
	assert.True(t, base.Equal(got.CreatedAt))

	err = repo.CreateAccount(ctx, newAccount("alice@example.com"))
	require.ErrorIs(t, err, storage.ErrConflict)

	got.Name = "Alice"
	got.Verified = true
	require.NoError(t, repo.SaveAccount(ctx, got))
	got, err = repo.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.True(t, got.Verified)
}

func testUpdateAccount(t *testing.T, repo storage.Repository) {
	ctx := t.Context()

	_, err := repo.UpdateAccount(ctx, "nobody@example.com", func(*storage.Account) error { return nil })
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.CreateAccount(ctx, newAccount("bob@example.com")))

	expiry := base.Add(15 * time.Minute)
	updated, err := repo.UpdateAccount(ctx, "bob@example.com", func(a *storage.Account) error {
		a.ResetOTP = "123456"
		a.ResetOTPExpiresAt = expiry
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "123456", updated.ResetOTP)

	got, err := repo.GetAccount(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", got.ResetOTP)
	assert.True(t, expiry.Equal(got.ResetOTPExpiresAt))

	abort := errors.New("abort")
	_, err = repo.UpdateAccount(ctx, "bob@example.com", func(a *storage.Account) error {
		a.ResetOTP = ""
		a.Verified = true
		return abort
	})
	require.ErrorIs(t, err, abort)

	got, err = repo.GetAccount(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", got.ResetOTP, "aborted update must not persist")
	assert.False(t, got.Verified)
}

func testPasskeys(t *testing.T, repo storage.Repository) {
	ctx := t.Context()

	err := repo.CreatePasskey(ctx, &storage.Passkey{AccountEmail: "ghost@example.com", Hash: "h", CreatedAt: base})
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.CreateAccount(ctx, newAccount("carol@example.com")))

	_, err = repo.GetPasskey(ctx, "carol@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.CreatePasskey(ctx, &storage.Passkey{AccountEmail: "carol@example.com", Hash: "hash-1", CreatedAt: base}))

	pk, err := repo.GetPasskey(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", pk.Hash)

	acct, err := repo.GetAccount(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.True(t, acct.HasPasskey)

	err = repo.CreatePasskey(ctx, &storage.Passkey{AccountEmail: "carol@example.com", Hash: "hash-2", CreatedAt: base})
	require.ErrorIs(t, err, storage.ErrConflict)

	pk, err = repo.GetPasskey(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", pk.Hash, "passkey is immutable once created")
}

func testConcurrentPasskey(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, newAccount("dave@example.com")))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreatePasskey(ctx, &storage.Passkey{AccountEmail: "dave@example.com", Hash: "h", CreatedAt: base})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes, "exactly one concurrent create may win")
}

func testFiles(t *testing.T, repo storage.Repository) {
	ctx := t.Context()

	files, total, err := repo.ListFiles(ctx, "erin@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Zero(t, total)

	older := &storage.File{PublicID: "users/1/a.pdf", OwnerEmail: "erin@example.com", Name: "a.pdf", ContentType: "application/pdf", Format: "pdf", Size: 10, CreatedAt: base}
	newer := &storage.File{PublicID: "users/1/b.png", OwnerEmail: "erin@example.com", Name: "b.png", ContentType: "image/png", Format: "png", Size: 20, CreatedAt: base.Add(time.Hour)}
	other := &storage.File{PublicID: "users/2/c.txt", OwnerEmail: "frank@example.com", Name: "c.txt", ContentType: "text/plain", Format: "txt", Size: 30, CreatedAt: base}
	require.NoError(t, repo.PutFile(ctx, older))
	require.NoError(t, repo.PutFile(ctx, newer))
	require.NoError(t, repo.PutFile(ctx, other))

	require.ErrorIs(t, repo.PutFile(ctx, older), storage.ErrConflict)

	files, total, err = repo.ListFiles(ctx, "erin@example.com", storage.Page{})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, "users/1/b.png", files[0].PublicID, "newest first")
	assert.Equal(t, "users/1/a.pdf", files[1].PublicID)
	assert.Equal(t, int64(20), files[0].Size)
	assert.Equal(t, "image/png", files[0].ContentType)

	err = repo.DeleteFiles(ctx, "erin@example.com", []string{"users/1/a.pdf", "users/2/c.txt"})
	require.ErrorIs(t, err, storage.ErrNotFound, "deleting another owner's file fails")

	files, total, err = repo.ListFiles(ctx, "erin@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Len(t, files, 2, "failed delete removes nothing")

	require.NoError(t, repo.DeleteFiles(ctx, "erin@example.com", []string{"users/1/a.pdf"}))
	files, total, err = repo.ListFiles(ctx, "erin@example.com", storage.Page{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "users/1/b.png", files[0].PublicID)

	files, _, err = repo.ListFiles(ctx, "frank@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func testFilePages(t *testing.T, repo storage.Repository) {
	ctx := t.Context()
	for i := range 5 {
		require.NoError(t, repo.PutFile(ctx, &storage.File{
			PublicID:   fmt.Sprintf("users/1/f%d.txt", i),
			OwnerEmail: "erin@example.com",
			Name:       fmt.Sprintf("f%d.txt", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, total, err := repo.ListFiles(ctx, "erin@example.com", storage.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "users/1/f3.txt", page[0].PublicID)
	assert.Equal(t, "users/1/f2.txt", page[1].PublicID)

	page, total, err = repo.ListFiles(ctx, "erin@example.com", storage.Page{Limit: 10, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 1)
	assert.Equal(t, "users/1/f0.txt", page[0].PublicID)

	page, total, err = repo.ListFiles(ctx, "erin@example.com", storage.Page{Limit: 10, Offset: 50})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)
}

func newNote(owner, id, title string, updated time.Time) *storage.Note {
	return &storage.Note{
		ID:         id,
		OwnerEmail: owner,
		Title:      title,
		Content:    "content of " + title,
		CreatedAt:  updated,
		UpdatedAt:  updated,
	}
}

func testNotes(t *testing.T, repo storage.Repository) {
	ctx := t.Context()

	err := repo.CreateNote(ctx, newNote("ghost@example.com", "n0", "Ghost", base))
	require.ErrorIs(t, err, storage.ErrNotFound, "notes need an owning account")

	require.NoError(t, repo.CreateAccount(ctx, newAccount("gina@example.com")))
	require.NoError(t, repo.CreateAccount(ctx, newAccount("hank@example.com")))

	notes, total, err := repo.ListNotes(ctx, "gina@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Zero(t, total)

	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n1", "Groceries", base)))
	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n2", "Ideas", base.Add(time.Hour))))
	require.NoError(t, repo.CreateNote(ctx, newNote("hank@example.com", "n3", "Hank's", base)))
	require.ErrorIs(t, repo.CreateNote(ctx, newNote("gina@example.com", "n1", "Other", base)), storage.ErrConflict)

	got, err := repo.GetNote(ctx, "gina@example.com", "n1")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "content of Groceries", got.Content)
	assert.False(t, got.Favourite)

	_, err = repo.GetNote(ctx, "gina@example.com", "n3")
	require.ErrorIs(t, err, storage.ErrNotFound, "another owner's note is not visible")

	notes, total, err = repo.ListNotes(ctx, "gina@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, notes, 2)
	assert.Equal(t, "n2", notes[0].ID, "most recently updated first")

	updated, err := repo.UpdateNote(ctx, "gina@example.com", "n1", func(n *storage.Note) error {
		n.Content = "milk, eggs"
		n.Favourite = true
		n.UpdatedAt = base.Add(2 * time.Hour)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "milk, eggs", updated.Content)

	notes, _, err = repo.ListNotes(ctx, "gina@example.com", storage.Page{})
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "n1", notes[0].ID)
	assert.True(t, notes[0].Favourite)

	_, err = repo.UpdateNote(ctx, "hank@example.com", "n1", func(*storage.Note) error { return nil })
	require.ErrorIs(t, err, storage.ErrNotFound)

	abort := errors.New("abort")
	_, err = repo.UpdateNote(ctx, "gina@example.com", "n1", func(n *storage.Note) error {
		n.Content = "discarded"
		return abort
	})
	require.ErrorIs(t, err, abort)
	got, err = repo.GetNote(ctx, "gina@example.com", "n1")
	require.NoError(t, err)
	assert.Equal(t, "milk, eggs", got.Content, "aborted update must not persist")

	err = repo.DeleteNotes(ctx, "gina@example.com", []string{"n1", "n3"})
	require.ErrorIs(t, err, storage.ErrNotFound, "deleting another owner's note fails")
	_, total, err = repo.ListNotes(ctx, "gina@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "failed delete removes nothing")

	require.NoError(t, repo.DeleteNotes(ctx, "gina@example.com", []string{"n1", "n2"}))
	_, total, err = repo.ListNotes(ctx, "gina@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = repo.ListNotes(ctx, "hank@example.com", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func testNoteTitles(t *testing.T, repo storage.Repository) {
	ctx := t.Context()
	require.NoError(t, repo.CreateAccount(ctx, newAccount("gina@example.com")))
	require.NoError(t, repo.CreateAccount(ctx, newAccount("hank@example.com")))

	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n1", "Journal", base)))
	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n2", "Recipes", base)))
	require.NoError(t, repo.CreateNote(ctx, newNote("hank@example.com", "n3", "Journal", base)), "titles are unique per owner only")

	err := repo.CreateNote(ctx, newNote("gina@example.com", "n4", "Journal", base))
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = repo.UpdateNote(ctx, "gina@example.com", "n2", func(n *storage.Note) error {
		n.Title = "Journal"
		return nil
	})
	require.ErrorIs(t, err, storage.ErrConflict)
	got, err := repo.GetNote(ctx, "gina@example.com", "n2")
	require.NoError(t, err)
	assert.Equal(t, "Recipes", got.Title)

	_, err = repo.UpdateNote(ctx, "gina@example.com", "n1", func(n *storage.Note) error {
		n.Content = "same title, new content"
		return nil
	})
	require.NoError(t, err, "keeping a note's own title is not a conflict")

	_, err = repo.UpdateNote(ctx, "gina@example.com", "n1", func(n *storage.Note) error {
		n.Title = "Diary"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n5", "Journal", base)), "a renamed note frees its old title")

	require.NoError(t, repo.DeleteNotes(ctx, "gina@example.com", []string{"n2"}))
	require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com", "n6", "Recipes", base)), "a deleted note frees its title")
}

func testNotePages(t *testing.T, repo storage.Repository) {
	ctx := t.Context()
	require.NoError(t, repo.CreateAccount(ctx, newAccount("gina@example.com")))
	for i := range 4 {
		require.NoError(t, repo.CreateNote(ctx, newNote("gina@example.com",
			fmt.Sprintf("n%d", i), fmt.Sprintf("Note %d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	page, total, err := repo.ListNotes(ctx, "gina@example.com", storage.Page{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page, 3)
	assert.Equal(t, "n3", page[0].ID)

	page, _, err = repo.ListNotes(ctx, "gina@example.com", storage.Page{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "n0", page[0].ID)
}
