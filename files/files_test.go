package files_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/blob"
	"github.com/jmcleod/drivelocker/files"
	"github.com/jmcleod/drivelocker/notify/notifytest"
	"github.com/jmcleod/drivelocker/passkey"
	"github.com/jmcleod/drivelocker/password"
	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/memory"
)

const (
	alice      = "alice@example.com"
	bob        = "bob@example.com"
	alicePK    = "Abcdef1!"
	bobPK      = "Xyzabc2@"
	unverified = "carol@example.com"
)

type failingBlobs struct {
	*blob.MemoryStore
	uploadErr error
	deleteErr error
	signed    []string
}

func (f *failingBlobs) URL(ctx context.Context, key string) (string, error) {
	f.signed = append(f.signed, key)
	return f.MemoryStore.URL(ctx, key)
}

func (f *failingBlobs) Upload(ctx context.Context, key, ct string, size int64, body io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	return f.MemoryStore.Upload(ctx, key, ct, size, body)
}

func (f *failingBlobs) Delete(ctx context.Context, keys []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.Delete(ctx, keys)
}

type failingPut struct {
	*memory.Repository
}

func (failingPut) PutFile(context.Context, *storage.File) error {
	return errors.New("disk full")
}

type fixture struct {
	repo  storage.Repository
	blobs *failingBlobs
	svc   *files.Service
	now   time.Time
}

func newFixture(t *testing.T, wrap func(*memory.Repository) storage.Repository) *fixture {
	t.Helper()
	mem := memory.NewRepository()
	var repo storage.Repository = mem
	if wrap != nil {
		repo = wrap(mem)
	}
	f := &fixture{
		repo:  repo,
		blobs: &failingBlobs{MemoryStore: blob.NewMemoryStore("http://blobs.test")},
		now:   time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	}
	hasher := password.NewHasher(bcrypt.MinCost)
	accounts := account.NewService(mem, hasher, notifytest.New())
	gate := passkey.NewGate(mem, hasher)
	f.svc = files.NewService(repo, accounts, gate, f.blobs, files.WithClock(clock))

	ctx := t.Context()
	for _, u := range []struct{ email, pk string }{{alice, alicePK}, {bob, bobPK}, {unverified, ""}} {
		_, err := accounts.Register(ctx, account.RegisterInput{Name: u.email[:strings.Index(u.email, "@")], Email: u.email, Password: "secret1"})
		require.NoError(t, err)
		if u.pk == "" {
			continue
		}
		_, err = mem.UpdateAccount(ctx, u.email, func(a *storage.Account) error {
			a.Verified = true
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, gate.Create(ctx, u.email, u.pk))
	}
	return f
}

func upload(name, body string) files.UploadInput {
	return files.UploadInput{
		Passkey:     alicePK,
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func TestUploadListDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	first, err := f.svc.Upload(ctx, alice, upload("notes.TXT", "one"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.PublicID, "users/"))
	assert.True(t, strings.HasSuffix(first.PublicID, ".txt"))
	assert.Equal(t, "txt", first.Format)
	assert.Equal(t, "notes.TXT", first.Name)
	assert.NotEmpty(t, first.URL)

	second, err := f.svc.Upload(ctx, alice, upload("../../etc/passwd", "two"))
	require.NoError(t, err)
	assert.Equal(t, "passwd", second.Name)

	list, _, err := f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.PublicID, list[0].PublicID, "newest first")
	assert.Equal(t, first.PublicID, list[1].PublicID)

	empty, _, err := f.svc.List(ctx, bob, storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := f.svc.Delete(ctx, alice, []string{first.PublicID, first.PublicID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.blobs.Len())
	list, _, err = f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.PublicID, list[0].PublicID)
}

func TestUploadPasskeyGate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	in := upload("a.txt", "x")
	in.Passkey = "wrong"
	_, err := f.svc.Upload(ctx, alice, in)
	require.ErrorIs(t, err, account.ErrInvalidPasskey)

	in = upload("a.txt", "x")
	in.Passkey = ""
	_, err = f.svc.Upload(ctx, alice, in)
	require.ErrorIs(t, err, account.ErrMissingDetails)

	in = upload("a.txt", "x")
	in.Passkey = bobPK
	_, err = f.svc.Upload(ctx, alice, in)
	require.ErrorIs(t, err, account.ErrInvalidPasskey, "another account's passkey does not open this one")

	_, err = f.svc.Upload(ctx, unverified, upload("a.txt", "x"))
	require.ErrorIs(t, err, account.ErrInvalidCredentials)

	_, err = f.svc.Upload(ctx, "nobody@example.com", upload("a.txt", "x"))
	require.ErrorIs(t, err, account.ErrUserNotFound)

	assert.Zero(t, f.blobs.Len(), "nothing stored when the gate refuses")
}

func TestUploadWithoutPasskey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	_, err := f.repo.UpdateAccount(ctx, unverified, func(a *storage.Account) error {
		a.Verified = true
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Upload(ctx, unverified, upload("a.txt", "x"))
	require.ErrorIs(t, err, account.ErrUserNotFound)
}

func TestUploadMissingFile(t *testing.T) {
	f := newFixture(t, nil)
	in := upload("", "x")
	_, err := f.svc.Upload(t.Context(), alice, in)
	require.ErrorIs(t, err, account.ErrMissingDetails)

	in = upload("a.txt", "x")
	in.Body = nil
	_, err = f.svc.Upload(t.Context(), alice, in)
	require.ErrorIs(t, err, account.ErrMissingDetails)
}

func TestUploadBlobFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.blobs.uploadErr = errors.New("bucket unavailable")

	_, err := f.svc.Upload(t.Context(), alice, upload("a.txt", "x"))
	require.ErrorIs(t, err, files.ErrFileStorage)
	list, _, err := f.svc.List(t.Context(), alice, storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadMetadataFailureRemovesBlob(t *testing.T) {
	f := newFixture(t, func(m *memory.Repository) storage.Repository { return failingPut{m} })

	_, err := f.svc.Upload(t.Context(), alice, upload("a.txt", "x"))
	require.Error(t, err)
	assert.Zero(t, f.blobs.Len())
}

func TestDeleteOwnership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	mine, err := f.svc.Upload(ctx, alice, upload("a.txt", "x"))
	require.NoError(t, err)

	bobs := upload("b.txt", "y")
	bobs.Passkey = bobPK
	theirs, err := f.svc.Upload(ctx, bob, bobs)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, alice, []string{mine.PublicID, theirs.PublicID})
	require.ErrorIs(t, err, files.ErrFileNotFound)
	assert.Equal(t, 2, f.blobs.Len(), "nothing deleted")

	_, err = f.svc.Delete(ctx, alice, nil)
	require.ErrorIs(t, err, account.ErrMissingDetails)
	_, err = f.svc.Delete(ctx, alice, []string{" "})
	require.ErrorIs(t, err, account.ErrMissingDetails)
}

func TestDeleteBlobFailureKeepsMetadata(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	info, err := f.svc.Upload(ctx, alice, upload("a.txt", "x"))
	require.NoError(t, err)

	f.blobs.deleteErr = errors.New("bucket unavailable")
	_, err = f.svc.Delete(ctx, alice, []string{info.PublicID})
	require.ErrorIs(t, err, files.ErrFileStorage)

	list, _, err := f.svc.List(ctx, alice, storage.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListSignsOnlyThePage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	var uploaded []*files.Info
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		info, err := f.svc.Upload(ctx, alice, upload(name, "x"))
		require.NoError(t, err)
		uploaded = append(uploaded, info)
	}
	f.blobs.signed = nil

	page, total, err := f.svc.List(ctx, alice, storage.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, uploaded[2].PublicID, page[0].PublicID)
	assert.Equal(t, uploaded[1].PublicID, page[1].PublicID)
	assert.Equal(t, []string{uploaded[2].PublicID, uploaded[1].PublicID}, f.blobs.signed)

	page, total, err = f.svc.List(ctx, alice, storage.Page{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, page)
}
