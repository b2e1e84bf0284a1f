package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/domain"
)

// SourceAccountRepository persists SourceAccount rows.
type SourceAccountRepository struct {
	*BaseRepository
}

// NewSourceAccountRepository creates a new SourceAccountRepository.
func NewSourceAccountRepository(db *sql.DB, log zerolog.Logger) *SourceAccountRepository {
	return &SourceAccountRepository{BaseRepository: NewBase(db, log.With().Str("repo", "source_accounts").Logger())}
}

// Upsert creates or updates the account identified by (link, external id),
// the unit the aggregator delta-sync applies "added/modified" against (§4.4).
func (r *SourceAccountRepository) Upsert(ctx context.Context, a *domain.SourceAccount) (*domain.SourceAccount, error) {
	existing, err := r.byExternalID(ctx, a.LinkID, a.ExternalAccountID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		a.ID = existing.ID
		_, err := r.DB().ExecContext(ctx, `
			UPDATE source_accounts SET name = ?, type = ?, subtype = ?, current_balance = ?,
				available_balance = ?, credit_limit = ?, currency = ?, hidden = ?
			WHERE id = ?`,
			a.Name, a.Type, a.Subtype, a.CurrentBalance, a.AvailableBalance, a.CreditLimit,
			a.Currency, boolToInt(a.Hidden), a.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update source account: %w", err)
		}
		return a, nil
	}

	a.ID = uuid.NewString()
	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO source_accounts (
			id, link_id, user_id, external_account_id, name, type, subtype,
			current_balance, available_balance, credit_limit, currency, hidden
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LinkID, a.UserID, a.ExternalAccountID, a.Name, a.Type, a.Subtype,
		a.CurrentBalance, a.AvailableBalance, a.CreditLimit, a.Currency, boolToInt(a.Hidden),
	)
	if err != nil {
		return nil, fmt.Errorf("insert source account: %w", err)
	}
	return a, nil
}

func (r *SourceAccountRepository) byExternalID(ctx context.Context, linkID, externalID string) (*domain.SourceAccount, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, link_id, user_id, external_account_id, name, type, subtype,
		       current_balance, available_balance, credit_limit, currency, hidden
		FROM source_accounts WHERE link_id = ? AND external_account_id = ?`, linkID, externalID)
	a, err := scanSourceAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return a, err
}

// ListByUser returns every non-hidden source account for userID.
func (r *SourceAccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.SourceAccount, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, link_id, user_id, external_account_id, name, type, subtype,
		       current_balance, available_balance, credit_limit, currency, hidden
		FROM source_accounts WHERE user_id = ? AND hidden = 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("list source accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.SourceAccount
	for rows.Next() {
		a, err := scanSourceAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListByLink returns every account under a link, including hidden ones.
func (r *SourceAccountRepository) ListByLink(ctx context.Context, linkID string) ([]*domain.SourceAccount, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, link_id, user_id, external_account_id, name, type, subtype,
		       current_balance, available_balance, credit_limit, currency, hidden
		FROM source_accounts WHERE link_id = ?`, linkID)
	if err != nil {
		return nil, fmt.Errorf("list source accounts by link: %w", err)
	}
	defer rows.Close()

	var out []*domain.SourceAccount
	for rows.Next() {
		a, err := scanSourceAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RemoveByExternalID deletes the account matching (link, external id), the
// "removed" half of delta-sync apply (§4.4).
func (r *SourceAccountRepository) RemoveByExternalID(ctx context.Context, linkID, externalID string) error {
	_, err := r.DB().ExecContext(ctx,
		`DELETE FROM source_accounts WHERE link_id = ? AND external_account_id = ?`, linkID, externalID)
	if err != nil {
		return fmt.Errorf("remove source account: %w", err)
	}
	return nil
}

// SetHidden toggles the hidden flag, scoped to userID.
func (r *SourceAccountRepository) SetHidden(ctx context.Context, userID, id string, hidden bool) error {
	_, err := r.DB().ExecContext(ctx,
		`UPDATE source_accounts SET hidden = ? WHERE id = ? AND user_id = ?`, boolToInt(hidden), id, userID)
	if err != nil {
		return fmt.Errorf("set source account hidden: %w", err)
	}
	return nil
}

func scanSourceAccount(row rowScanner) (*domain.SourceAccount, error) {
	var a domain.SourceAccount
	var hidden int
	err := row.Scan(&a.ID, &a.LinkID, &a.UserID, &a.ExternalAccountID, &a.Name, &a.Type, &a.Subtype,
		&a.CurrentBalance, &a.AvailableBalance, &a.CreditLimit, &a.Currency, &hidden)
	if err != nil {
		return nil, fmt.Errorf("scan source account: %w", err)
	}
	a.Hidden = hidden != 0
	return &a, nil
}
