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

// ImportedTxnKeyRepository persists ImportedTxnKey rows. It implements
// ledger.ImportedKeyStore.
type ImportedTxnKeyRepository struct {
	*BaseRepository
}

// NewImportedTxnKeyRepository creates a new ImportedTxnKeyRepository.
func NewImportedTxnKeyRepository(db *sql.DB, log zerolog.Logger) *ImportedTxnKeyRepository {
	return &ImportedTxnKeyRepository{BaseRepository: NewBase(db, log.With().Str("repo", "imported_txn_keys").Logger())}
}

// Exists implements ledger.ImportedKeyStore.
func (r *ImportedTxnKeyRepository) Exists(ctx context.Context, externalID, institution string) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM imported_txn_keys WHERE external_id = ? AND institution = ?`,
		externalID, institution,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check imported txn key: %w", err)
	}
	return count > 0, nil
}

// Insert implements ledger.ImportedKeyStore.
func (r *ImportedTxnKeyRepository) Insert(ctx context.Context, externalID, institution, ledgerTransactionID string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO imported_txn_keys (id, external_id, institution, ledger_transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id, institution) DO NOTHING`,
		uuid.NewString(), externalID, institution, ledgerTransactionID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert imported txn key: %w", err)
	}
	return nil
}
