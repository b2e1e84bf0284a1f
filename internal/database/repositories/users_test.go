package repositories

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/apperr"
)

func TestUserRepositoryCreateAndFetch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, zerolog.Nop())
	ctx := context.Background()

	u, err := repo.Create(ctx, "alice@example.com", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
}

func TestUserRepositoryGetByEmailNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, zerolog.Nop())

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserRepositoryListIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, zerolog.Nop())
	ctx := context.Background()

	_, err := repo.Create(ctx, "a@example.com", "h1")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "b@example.com", "h2")
	require.NoError(t, err)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
