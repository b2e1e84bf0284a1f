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

// ManualAssetRepository persists ManualAsset rows.
type ManualAssetRepository struct {
	*BaseRepository
}

// NewManualAssetRepository creates a new ManualAssetRepository.
func NewManualAssetRepository(db *sql.DB, log zerolog.Logger) *ManualAssetRepository {
	return &ManualAssetRepository{BaseRepository: NewBase(db, log.With().Str("repo", "manual_assets").Logger())}
}

// Create inserts a new manual asset.
func (r *ManualAssetRepository) Create(ctx context.Context, a *domain.ManualAsset) (*domain.ManualAsset, error) {
	a.ID = uuid.NewString()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Active = true

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO manual_assets (
			id, user_id, type, name, current_value, valuation_source, value_as_of,
			principal, annual_rate, start_date, term_months, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.Name, a.CurrentValue, a.ValuationSource, a.ValueAsOf,
		a.Principal, a.AnnualRate, a.StartDate, a.TermMonths, boolToInt(a.Active),
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert manual asset: %w", err)
	}
	return a, nil
}

// ListActiveByUser returns every active manual asset for userID.
func (r *ManualAssetRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.ManualAsset, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, type, name, current_value, valuation_source, value_as_of,
		       principal, annual_rate, start_date, term_months, active, created_at, updated_at
		FROM manual_assets WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list manual assets: %w", err)
	}
	defer rows.Close()

	var out []*domain.ManualAsset
	for rows.Next() {
		a, err := scanManualAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID fetches a manual asset scoped to userID.
func (r *ManualAssetRepository) GetByID(ctx context.Context, userID, id string) (*domain.ManualAsset, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, type, name, current_value, valuation_source, value_as_of,
		       principal, annual_rate, start_date, term_months, active, created_at, updated_at
		FROM manual_assets WHERE id = ? AND user_id = ?`, id, userID)

	a, err := scanManualAssetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return a, err
}

// UpdateCurrentValue persists a recomputed current_value (used after
// amortization recompute in the net-worth snapshot job, §4.6 step 2).
func (r *ManualAssetRepository) UpdateCurrentValue(ctx context.Context, id string, value float64) error {
	_, err := r.DB().ExecContext(ctx,
		`UPDATE manual_assets SET current_value = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update manual asset value: %w", err)
	}
	return nil
}

// manualAssetColumns is the allowlisted set of columns PUT /api/assets (and
// /api/insurance, which is stored as manual_assets rows with type =
// "insurance") may update. An unknown field name is the caller's error to
// surface as 400, not this repository's.
var manualAssetColumns = map[string]bool{
	"name":             true,
	"current_value":    true,
	"valuation_source": true,
	"value_as_of":      true,
	"principal":        true,
	"annual_rate":      true,
	"start_date":       true,
	"term_months":      true,
}

// ManualAssetColumns exposes the allowlist so the HTTP layer can validate
// field names before calling UpdateFields.
func ManualAssetColumns() map[string]bool {
	return manualAssetColumns
}

// UpdateFields applies an allowlisted partial update and returns the
// updated row. Every key in fields must be in ManualAssetColumns(); callers
// are expected to have already rejected anything else.
func (r *ManualAssetRepository) UpdateFields(ctx context.Context, userID, id string, fields map[string]interface{}) (*domain.ManualAsset, error) {
	if len(fields) == 0 {
		return r.GetByID(ctx, userID, id)
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+3)
	for col, val := range fields {
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id, userID)

	query := fmt.Sprintf(`UPDATE manual_assets SET %s WHERE id = ? AND user_id = ?`, joinSetClauses(setClauses))
	res, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update manual asset fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	return r.GetByID(ctx, userID, id)
}

// Delete soft-deletes a manual asset (active = 0), matching
// ListActiveByUser's active-only filter.
func (r *ManualAssetRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.DB().ExecContext(ctx,
		`UPDATE manual_assets SET active = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		time.Now().UTC().Format(time.RFC3339), id, userID)
	if err != nil {
		return fmt.Errorf("delete manual asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func joinSetClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManualAsset(rows *sql.Rows) (*domain.ManualAsset, error) {
	return scanManualAssetRow(rows)
}

func scanManualAssetRow(row rowScanner) (*domain.ManualAsset, error) {
	var a domain.ManualAsset
	var createdAt, updatedAt string
	var active int

	err := row.Scan(
		&a.ID, &a.UserID, &a.Type, &a.Name, &a.CurrentValue, &a.ValuationSource, &a.ValueAsOf,
		&a.Principal, &a.AnnualRate, &a.StartDate, &a.TermMonths, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan manual asset: %w", err)
	}
	a.Active = active != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
