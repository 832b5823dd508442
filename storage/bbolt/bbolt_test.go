package bbolt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/storagetest"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "drivelocker-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		db, cleanup := newTestDB(t)
		t.Cleanup(cleanup)
		s, err := NewRepository(db)
		require.NoError(t, err)
		return s
	})
}

func TestBBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivelocker.db")
	ctx := t.Context()

	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, &storage.Account{Email: "alice@example.com", Name: "Alice"}))
	require.NoError(t, s.CreatePasskey(ctx, &storage.Passkey{AccountEmail: "alice@example.com", Hash: "h"}))
	require.NoError(t, s.Close())

	s, err = NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer s.Close()

	acct, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", acct.Name)
	assert.True(t, acct.HasPasskey)
}
