package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/drivelocker/storage"
	"github.com/jmcleod/drivelocker/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository()
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewRepository()
	ctx := t.Context()
	require.NoError(t, repo.CreateAccount(ctx, &storage.Account{Email: "a@example.com", Name: "A"}))

	got, err := repo.GetAccount(ctx, "a@example.com")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetAccount(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Name)
}
