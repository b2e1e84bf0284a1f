package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerMappingRepository persists LedgerAccountMap rows. It implements
// ledger.MappingStore.
type LedgerMappingRepository struct {
	*BaseRepository
}

// NewLedgerMappingRepository creates a new LedgerMappingRepository.
func NewLedgerMappingRepository(db *sql.DB, log zerolog.Logger) *LedgerMappingRepository {
	return &LedgerMappingRepository{BaseRepository: NewBase(db, log.With().Str("repo", "ledger_mapping").Logger())}
}

// Get implements ledger.MappingStore.
func (r *LedgerMappingRepository) Get(ctx context.Context, institution, externalID string) (string, bool, error) {
	var ledgerAccountID string
	err := r.DB().QueryRowContext(ctx,
		`SELECT ledger_account_id FROM ledger_account_map WHERE institution = ? AND external_account_id = ?`,
		institution, externalID,
	).Scan(&ledgerAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup ledger account map: %w", err)
	}
	return ledgerAccountID, true, nil
}

// Upsert implements ledger.MappingStore. The persistent mapping's
// upsert-on-conflict is the authoritative tie-break when concurrent
// resolvers race to create the same account (§5).
func (r *LedgerMappingRepository) Upsert(ctx context.Context, institution, externalID, ledgerAccountID string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO ledger_account_map (id, institution, external_account_id, ledger_account_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(institution, external_account_id) DO UPDATE SET ledger_account_id = excluded.ledger_account_id`,
		uuid.NewString(), institution, externalID, ledgerAccountID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger account map: %w", err)
	}
	return nil
}
