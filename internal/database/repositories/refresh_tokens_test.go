package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/apperr"
)

func TestRefreshTokenRotationIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zerolog.Nop())
	tokens := NewRefreshTokenRepository(db, zerolog.Nop())
	ctx := context.Background()

	u, err := users.Create(ctx, "rotate@example.com", "hash")
	require.NoError(t, err)

	old, err := tokens.Create(ctx, u.ID, "hash-1", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	rotated, err := tokens.Rotate(ctx, old.ID, u.ID, "hash-2", time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, rotated.ID)

	_, err = tokens.GetByHash(ctx, "hash-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	found, err := tokens.GetByHash(ctx, "hash-2")
	require.NoError(t, err)
	assert.Equal(t, rotated.ID, found.ID)
}

func TestRefreshTokenUsedTwiceFailsSecondTime(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zerolog.Nop())
	tokens := NewRefreshTokenRepository(db, zerolog.Nop())
	ctx := context.Background()

	u, err := users.Create(ctx, "reuse@example.com", "hash")
	require.NoError(t, err)

	old, err := tokens.Create(ctx, u.ID, "hash-1", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	_, err = tokens.Rotate(ctx, old.ID, u.ID, "hash-2", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	// Using the same (now rotated-away) hash a second time must fail.
	_, err = tokens.GetByHash(ctx, "hash-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRefreshTokenExpired(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zerolog.Nop())
	tokens := NewRefreshTokenRepository(db, zerolog.Nop())
	ctx := context.Background()

	u, err := users.Create(ctx, "expired@example.com", "hash")
	require.NoError(t, err)

	_, err = tokens.Create(ctx, u.ID, "expired-hash", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = tokens.GetByHash(ctx, "expired-hash")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteAllForUser(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zerolog.Nop())
	tokens := NewRefreshTokenRepository(db, zerolog.Nop())
	ctx := context.Background()

	u, err := users.Create(ctx, "revoke@example.com", "hash")
	require.NoError(t, err)

	_, err = tokens.Create(ctx, u.ID, "h1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = tokens.Create(ctx, u.ID, "h2", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, tokens.DeleteAllForUser(ctx, u.ID))

	_, err = tokens.GetByHash(ctx, "h1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = tokens.GetByHash(ctx, "h2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
