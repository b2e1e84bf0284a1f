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

// ForecastSnapshotRepository persists ForecastSnapshot rows.
type ForecastSnapshotRepository struct {
	*BaseRepository
}

// NewForecastSnapshotRepository creates a new ForecastSnapshotRepository.
func NewForecastSnapshotRepository(db *sql.DB, log zerolog.Logger) *ForecastSnapshotRepository {
	return &ForecastSnapshotRepository{BaseRepository: NewBase(db, log.With().Str("repo", "forecast_snapshots").Logger())}
}

// Create inserts a new forecast snapshot (§4.7 step 8).
func (r *ForecastSnapshotRepository) Create(ctx context.Context, f *domain.ForecastSnapshot) (*domain.ForecastSnapshot, error) {
	f.ID = uuid.NewString()
	f.CreatedAt = time.Now().UTC()

	scenarios, err := json.Marshal(f.Scenarios)
	if err != nil {
		return nil, fmt.Errorf("marshal forecast scenarios: %w", err)
	}
	summary, err := json.Marshal(f.Summary)
	if err != nil {
		return nil, fmt.Errorf("marshal forecast summary: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO forecast_snapshots (id, user_id, horizon_months, scenarios, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.HorizonMonths, string(scenarios), string(summary), f.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert forecast snapshot: %w", err)
	}
	return f, nil
}

// Latest returns the most recent forecast for userID.
func (r *ForecastSnapshotRepository) Latest(ctx context.Context, userID string) (*domain.ForecastSnapshot, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, horizon_months, scenarios, summary, created_at
		FROM forecast_snapshots WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID)

	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return f, err
}

func scanForecast(row rowScanner) (*domain.ForecastSnapshot, error) {
	var f domain.ForecastSnapshot
	var scenarios, summary, createdAt string

	err := row.Scan(&f.ID, &f.UserID, &f.HorizonMonths, &scenarios, &summary, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan forecast snapshot: %w", err)
	}
	_ = json.Unmarshal([]byte(scenarios), &f.Scenarios)
	_ = json.Unmarshal([]byte(summary), &f.Summary)
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &f, nil
}
