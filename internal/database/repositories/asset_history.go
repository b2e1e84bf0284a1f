package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/domain"
)

// AssetHistoryRepository persists ValueHistory and NotePayment rows, the
// two time series a manual asset accumulates (§4.6, §4.2).
type AssetHistoryRepository struct {
	*BaseRepository
}

// NewAssetHistoryRepository creates a new AssetHistoryRepository.
func NewAssetHistoryRepository(db *sql.DB, log zerolog.Logger) *AssetHistoryRepository {
	return &AssetHistoryRepository{BaseRepository: NewBase(db, log.With().Str("repo", "asset_history").Logger())}
}

// RecordValue upserts the (asset, date) value sample.
func (r *AssetHistoryRepository) RecordValue(ctx context.Context, assetID, date string, value float64, source string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO asset_value_history (id, asset_id, recorded_date, value, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, recorded_date) DO UPDATE SET value = excluded.value, source = excluded.source`,
		uuid.NewString(), assetID, date, value, source,
	)
	if err != nil {
		return fmt.Errorf("record asset value history: %w", err)
	}
	return nil
}

// ValueHistory returns the value series for an asset, oldest first.
func (r *AssetHistoryRepository) ValueHistory(ctx context.Context, assetID string) ([]*domain.ValueHistory, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, asset_id, recorded_date, value, source
		FROM asset_value_history WHERE asset_id = ? ORDER BY recorded_date ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list asset value history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ValueHistory
	for rows.Next() {
		var h domain.ValueHistory
		if err := rows.Scan(&h.ID, &h.AssetID, &h.RecordedDate, &h.Value, &h.Source); err != nil {
			return nil, fmt.Errorf("scan asset value history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// RecordNotePayment appends one amortization payment row for a note asset.
func (r *AssetHistoryRepository) RecordNotePayment(ctx context.Context, p *domain.NotePayment) error {
	p.ID = uuid.NewString()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO note_payments (id, asset_id, payment_date, amount, principal_portion, interest_portion, balance_after)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AssetID, p.Date, p.Amount, p.PrincipalPortion, p.InterestPortion, p.BalanceAfter,
	)
	if err != nil {
		return fmt.Errorf("record note payment: %w", err)
	}
	return nil
}

// NotePayments returns the payment history for a note asset, oldest first.
func (r *AssetHistoryRepository) NotePayments(ctx context.Context, assetID string) ([]*domain.NotePayment, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, asset_id, payment_date, amount, principal_portion, interest_portion, balance_after
		FROM note_payments WHERE asset_id = ? ORDER BY payment_date ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list note payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.NotePayment
	for rows.Next() {
		var p domain.NotePayment
		if err := rows.Scan(&p.ID, &p.AssetID, &p.Date, &p.Amount, &p.PrincipalPortion, &p.InterestPortion, &p.BalanceAfter); err != nil {
			return nil, fmt.Errorf("scan note payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
