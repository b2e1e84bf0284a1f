package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MerchantRepository persists MerchantHistory and MerchantCategory rows,
// the two tables that back categorization and anomaly detection (§4.5).
type MerchantRepository struct {
	*BaseRepository
}

// NewMerchantRepository creates a new MerchantRepository.
func NewMerchantRepository(db *sql.DB, log zerolog.Logger) *MerchantRepository {
	return &MerchantRepository{BaseRepository: NewBase(db, log.With().Str("repo", "merchants").Logger())}
}

// CategoryFor returns the cached category for a merchant, if any.
func (r *MerchantRepository) CategoryFor(ctx context.Context, merchant string) (string, bool, error) {
	var category string
	err := r.DB().QueryRowContext(ctx,
		`SELECT category FROM merchant_categories WHERE merchant = ?`, strings.ToLower(strings.TrimSpace(merchant)),
	).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup merchant category: %w", err)
	}
	return category, true, nil
}

// RecordCategory writes the first decision for a merchant; subsequent
// writes for the same merchant are no-ops (ON CONFLICT DO NOTHING), per
// §4.5.1's "first decision wins for stability".
func (r *MerchantRepository) RecordCategory(ctx context.Context, merchant, category, source string) error {
	_, err := r.DB().ExecContext(ctx,
		`INSERT INTO merchant_categories (merchant, category, source) VALUES (?, ?, ?) ON CONFLICT(merchant) DO NOTHING`,
		strings.ToLower(strings.TrimSpace(merchant)), category, source,
	)
	if err != nil {
		return fmt.Errorf("record merchant category: %w", err)
	}
	return nil
}

// ListByCategory returns every merchant classified under category, used by
// the subscription-detection job to find subscriptions-category merchants
// worth checking for recurrence (§4.9).
func (r *MerchantRepository) ListByCategory(ctx context.Context, category string) ([]string, error) {
	rows, err := r.DB().QueryContext(ctx, `SELECT merchant FROM merchant_categories WHERE category = ?`, category)
	if err != nil {
		return nil, fmt.Errorf("list merchants by category: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Baseline returns (average amount, sample count) for merchant over the
// trailing 90 days, the anomaly-detection baseline (§4.5.2).
func (r *MerchantRepository) Baseline(ctx context.Context, merchant string) (avg float64, count int, err error) {
	cutoff := time.Now().AddDate(0, 0, -90).Format("2006-01-02")
	err = r.DB().QueryRowContext(ctx,
		`SELECT COALESCE(AVG(amount), 0), COUNT(1) FROM merchant_history WHERE merchant = ? AND txn_date >= ?`,
		strings.ToLower(strings.TrimSpace(merchant)), cutoff,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("compute merchant baseline: %w", err)
	}
	return avg, count, nil
}

// RecordHistory appends a (merchant, amount, date) sample.
func (r *MerchantRepository) RecordHistory(ctx context.Context, merchant string, amount float64, date string) error {
	_, err := r.DB().ExecContext(ctx,
		`INSERT INTO merchant_history (id, merchant, amount, txn_date) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), strings.ToLower(strings.TrimSpace(merchant)), amount, date,
	)
	if err != nil {
		return fmt.Errorf("record merchant history: %w", err)
	}
	return nil
}
