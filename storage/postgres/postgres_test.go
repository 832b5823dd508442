package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DRIVELOCKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DRIVELOCKER_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := Migrate(ctx, pool, "up"); err != nil {
		pool.Close()
		t.Fatalf("could not apply migrations: %v", err)
	}

	clean := func() {
		pool.Exec(ctx, "DELETE FROM notes")    //nolint:errcheck
		pool.Exec(ctx, "DELETE FROM files")    //nolint:errcheck
		pool.Exec(ctx, "DELETE FROM passkeys") //nolint:errcheck
		pool.Exec(ctx, "DELETE FROM accounts") //nolint:errcheck
	}
	clean()
	t.Cleanup(func() {
		clean()
		pool.Close()
	})
	return NewRepository(pool)
}

// seedFileOwners creates the accounts the file checks upload for; the files
// table references accounts.
func seedFileOwners(t *testing.T, s *Store) {
	t.Helper()
	for _, email := range []string{"erin@example.com", "frank@example.com"} {
		require.NoError(t, s.CreateAccount(t.Context(), &storage.Account{ID: "id-" + email, Email: email, Name: "Owner"}))
	}
}

func TestPostgresStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		s := newTestStore(t)
		seedFileOwners(t, s)
		return s
	})
}
