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
	"github.com/aristath/finhub/internal/domain"
)

// UserRepository persists User rows.
type UserRepository struct {
	*BaseRepository
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB, log zerolog.Logger) *UserRepository {
	return &UserRepository{BaseRepository: NewBase(db, log.With().Str("repo", "users").Logger())}
}

// Create inserts a new user with a generated id.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       passwordHash,
		Plan:               domain.PlanFree,
		SubscriptionStatus: "active",
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, plan, subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Plan, u.SubscriptionStatus,
		u.CreatedAt.Format(time.RFC3339), u.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetByEmail fetches a user by email, returning apperr.ErrNotFound when absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, email, password_hash, plan, subscription_status, created_at, updated_at
		FROM users WHERE email = ?`, email)
}

// GetByID fetches a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, email, password_hash, plan, subscription_status, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

// UpdatePassword overwrites a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.DB().ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateProfile applies allowlisted field updates (email only, for now).
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, email string) error {
	_, err := r.DB().ExecContext(ctx,
		`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`,
		email, time.Now().UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// ListIDs returns every user id, used by "per-user" scheduled jobs (§4.9).
func (r *UserRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB().QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt string

	err := r.DB().QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Plan, &u.SubscriptionStatus, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &u, nil
}
