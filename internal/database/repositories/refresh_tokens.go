package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/database"
	"github.com/aristath/finhub/internal/domain"
)

// RefreshTokenRepository persists RefreshToken rows and implements the
// atomic rotation §4.11 requires: the old token is deleted and the new one
// inserted inside a single transaction.
type RefreshTokenRepository struct {
	*BaseRepository
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db *sql.DB, log zerolog.Logger) *RefreshTokenRepository {
	return &RefreshTokenRepository{BaseRepository: NewBase(db, log.With().Str("repo", "refresh_tokens").Logger())}
}

// Create inserts a new refresh token row.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.DB().ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt.Format(time.RFC3339), rt.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return rt, nil
}

// GetByHash fetches a non-expired refresh token by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	var expiresAt, createdAt string

	err := r.DB().QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash = ?`,
		hash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	rt.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	rt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if rt.ExpiresAt.Before(time.Now()) {
		return nil, apperr.ErrNotFound
	}
	return &rt, nil
}

// Rotate atomically deletes oldID and inserts a new refresh token row for
// userID, returning the new row.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) (*domain.RefreshToken, error) {
	newToken := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: newHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err := database.WithTransaction(r.DB(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("delete old refresh token: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			newToken.ID, newToken.UserID, newToken.TokenHash,
			newToken.ExpiresAt.Format(time.RFC3339), newToken.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("insert new refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newToken, nil
}

// DeleteAllForUser revokes every refresh token belonging to userID, used by
// changePassword (§4.11).
func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.DB().ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return nil
}
