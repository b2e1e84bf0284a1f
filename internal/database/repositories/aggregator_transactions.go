package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// AggregatorTransactionRepository reads the aggregator_transactions table
// the delta-sync apply step writes to (§4.4). It carries no write methods of
// its own: writes happen inside aggregator.Service's transaction.
type AggregatorTransactionRepository struct {
	*BaseRepository
}

// NewAggregatorTransactionRepository creates a new AggregatorTransactionRepository.
func NewAggregatorTransactionRepository(db *sql.DB, log zerolog.Logger) *AggregatorTransactionRepository {
	return &AggregatorTransactionRepository{BaseRepository: NewBase(db, log.With().Str("repo", "aggregator_transactions").Logger())}
}

// MerchantTxn is a flattened (merchant, amount, date) row, the shape the
// anomaly detector consumes.
type MerchantTxn struct {
	Merchant string
	Amount   float64
	Date     string
}

// RecentForUser returns every aggregator transaction posted on sinceDate or
// later for userID, across all of that user's institution links — the
// daily anomaly-check job's input set (§4.9).
func (r *AggregatorTransactionRepository) RecentForUser(ctx context.Context, userID, sinceDate string) ([]MerchantTxn, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT at.name, at.amount, at.txn_date
		FROM aggregator_transactions at
		JOIN institution_links il ON il.id = at.link_id
		WHERE il.user_id = ? AND at.txn_date >= ?`, userID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("list recent aggregator transactions: %w", err)
	}
	defer rows.Close()

	var out []MerchantTxn
	for rows.Next() {
		var t MerchantTxn
		if err := rows.Scan(&t.Merchant, &t.Amount, &t.Date); err != nil {
			return nil, fmt.Errorf("scan aggregator transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
