package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/domain"
)

// NetWorthRepository persists NetWorthSnapshot rows.
type NetWorthRepository struct {
	*BaseRepository
}

// NewNetWorthRepository creates a new NetWorthRepository.
func NewNetWorthRepository(db *sql.DB, log zerolog.Logger) *NetWorthRepository {
	return &NetWorthRepository{BaseRepository: NewBase(db, log.With().Str("repo", "net_worth").Logger())}
}

// Upsert inserts or overwrites the snapshot for (userID, date) (§4.6).
func (r *NetWorthRepository) Upsert(ctx context.Context, snap *domain.NetWorthSnapshot) error {
	breakdown, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO net_worth_snapshots (id, user_id, snapshot_date, total_assets, total_liabilities, net_worth, breakdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, snapshot_date) DO UPDATE SET
			total_assets = excluded.total_assets,
			total_liabilities = excluded.total_liabilities,
			net_worth = excluded.net_worth,
			breakdown = excluded.breakdown`,
		snap.ID, snap.UserID, snap.Date, snap.TotalAssets, snap.TotalLiabilities, snap.NetWorth,
		string(breakdown), snap.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert net worth snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for userID.
func (r *NetWorthRepository) Latest(ctx context.Context, userID string) (*domain.NetWorthSnapshot, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, snapshot_date, total_assets, total_liabilities, net_worth, breakdown, created_at
		FROM net_worth_snapshots WHERE user_id = ? ORDER BY snapshot_date DESC LIMIT 1`, userID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return snap, err
}

// PreviousBefore returns the snapshot immediately before date, used by the
// milestone check (§4.6 step 5, "offset 1").
func (r *NetWorthRepository) PreviousBefore(ctx context.Context, userID, date string) (*domain.NetWorthSnapshot, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, snapshot_date, total_assets, total_liabilities, net_worth, breakdown, created_at
		FROM net_worth_snapshots WHERE user_id = ? AND snapshot_date < ? ORDER BY snapshot_date DESC LIMIT 1`,
		userID, date)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return snap, err
}

// History returns up to limit snapshots for userID, oldest first — the
// series the forecaster regresses over (§4.7).
func (r *NetWorthRepository) History(ctx context.Context, userID string, limit int) ([]*domain.NetWorthSnapshot, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, snapshot_date, total_assets, total_liabilities, net_worth, breakdown, created_at
		FROM net_worth_snapshots WHERE user_id = ? ORDER BY snapshot_date ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query net worth history: %w", err)
	}
	defer rows.Close()

	var out []*domain.NetWorthSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (*domain.NetWorthSnapshot, error) {
	var snap domain.NetWorthSnapshot
	var breakdown, createdAt string

	err := row.Scan(&snap.ID, &snap.UserID, &snap.Date, &snap.TotalAssets, &snap.TotalLiabilities,
		&snap.NetWorth, &breakdown, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan net worth snapshot: %w", err)
	}
	_ = json.Unmarshal([]byte(breakdown), &snap.Breakdown)
	snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &snap, nil
}
