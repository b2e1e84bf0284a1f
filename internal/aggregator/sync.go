package aggregator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/ledger"
	"github.com/aristath/finhub/internal/parsers"
)

// CredentialStore decrypts the access token stored against an
// InstitutionLink. Encryption lives outside this package (§4.4 step 1).
type CredentialStore interface {
	Decrypt(ciphertext []byte) (string, error)
}

// Service drives the delta-sync protocol of §4.4 against one InstitutionLink
// at a time, bridging applied transactions to the ledger best-effort.
type Service struct {
	db            *sql.DB
	client        *Client
	credentials   CredentialStore
	links         *repositories.InstitutionLinkRepository
	accounts      *repositories.SourceAccountRepository
	ledgerAdapter *ledger.Adapter
	log           zerolog.Logger
}

// NewService builds a new delta-sync Service.
func NewService(
	db *sql.DB,
	client *Client,
	credentials CredentialStore,
	links *repositories.InstitutionLinkRepository,
	accounts *repositories.SourceAccountRepository,
	ledgerAdapter *ledger.Adapter,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:            db,
		client:        client,
		credentials:   credentials,
		links:         links,
		accounts:      accounts,
		ledgerAdapter: ledgerAdapter,
		log:           log.With().Str("component", "aggregator_sync").Logger(),
	}
}

// SyncLink runs the full delta-sync protocol for one link: page through
// transactions/sync while hasMore, applying each page's added/modified/removed
// inside its own DB transaction, then write the cursor and link status after
// the last page, outside those transactions, and finally best-effort bridge
// the touched transactions to the ledger (§4.4 steps 2-3 plus post-commit
// bridge).
func (s *Service) SyncLink(ctx context.Context, link *domain.InstitutionLink) error {
	log := s.log.With().Str("link_id", link.ID).Str("institution", link.InstitutionID).Logger()

	if link.Status == domain.LinkStatusLoginRequired {
		log.Info().Msg("skipping sync for login_required link")
		return nil
	}

	accessToken, err := s.credentials.Decrypt(link.CredentialEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt link credential: %w", err)
	}

	cursor := link.SyncCursor
	var allTouched []touchedTxn

	for {
		page, err := s.client.SyncTransactions(ctx, accessToken, cursor)
		if err != nil {
			s.recordFailure(ctx, link.ID, err)
			return fmt.Errorf("transactions/sync: %w", err)
		}

		if err := s.applyPage(ctx, link, page); err != nil {
			s.recordFailure(ctx, link.ID, err)
			return fmt.Errorf("apply sync page: %w", err)
		}

		for _, t := range page.Added {
			allTouched = append(allTouched, touchedTxn{t, link.InstitutionID})
		}
		for _, t := range page.Modified {
			allTouched = append(allTouched, touchedTxn{t, link.InstitutionID})
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	if err := s.links.UpdateCursor(ctx, link.ID, cursor); err != nil {
		log.Error().Err(err).Msg("failed to persist sync cursor")
	}
	if err := s.links.UpdateStatus(ctx, link.ID, domain.LinkStatusGood, "", "", time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("failed to clear link status")
	}

	s.bridgeToLedger(ctx, link, allTouched, log)
	return nil
}

type touchedTxn struct {
	txn         Transaction
	institution string
}

// applyPage applies one page's added/modified/removed lists inside a single
// DB transaction, per §4.4 step 3.
func (s *Service) applyPage(ctx context.Context, link *domain.InstitutionLink, page *SyncPage) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		for _, t := range append(append([]Transaction{}, page.Added...), page.Modified...) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO aggregator_transactions (
					transaction_id, link_id, external_account_id, amount, name, merchant,
					categories, txn_date, pending
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(transaction_id) DO UPDATE SET
					amount = excluded.amount, name = excluded.name, merchant = excluded.merchant,
					categories = excluded.categories, txn_date = excluded.txn_date, pending = excluded.pending`,
				t.TransactionID, link.ID, t.ExternalAccountID, t.Amount, t.Name, t.Merchant,
				joinCategories(t.Categories), t.Date, boolToInt(t.Pending),
			); err != nil {
				return fmt.Errorf("upsert aggregator transaction %s: %w", t.TransactionID, err)
			}
		}

		for _, r := range page.Removed {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM aggregator_transactions WHERE transaction_id = ? AND link_id = ?`,
				r.TransactionID, link.ID,
			); err != nil {
				return fmt.Errorf("delete removed transaction %s: %w", r.TransactionID, err)
			}
		}
		return nil
	})
}

// bridgeToLedger pushes added/modified transactions into the ledger,
// best-effort: failures are logged but never roll back the local delta that
// already committed (§4.4 "post-commit").
func (s *Service) bridgeToLedger(ctx context.Context, link *domain.InstitutionLink, touched []touchedTxn, log zerolog.Logger) {
	byAccount := map[string][]parsers.RawTransaction{}
	for _, t := range touched {
		byAccount[t.txn.ExternalAccountID] = append(byAccount[t.txn.ExternalAccountID], parsers.RawTransaction{
			ID:     t.txn.TransactionID,
			Date:   t.txn.Date,
			Name:   t.txn.Name,
			Amount: t.txn.Amount,
			Memo:   t.txn.Merchant,
		})
	}

	accounts, err := s.accounts.ListByLink(ctx, link.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list source accounts for ledger bridge")
		return
	}
	byExternalID := map[string]*domain.SourceAccount{}
	for _, a := range accounts {
		byExternalID[a.ExternalAccountID] = a
	}

	for externalAccountID, txns := range byAccount {
		acct, ok := byExternalID[externalAccountID]
		if !ok {
			log.Warn().Str("external_account_id", externalAccountID).Msg("no local source account for ledger bridge, skipping")
			continue
		}
		ledgerAccountID, err := s.ledgerAdapter.UpsertAccount(ctx, link.InstitutionID, acct.ExternalAccountID, acct.Name, string(acct.Type), acct.Currency, &acct.CurrentBalance)
		if err != nil {
			log.Error().Err(err).Str("external_account_id", externalAccountID).Msg("failed to resolve ledger account")
			continue
		}
		result := s.ledgerAdapter.UpsertTransactions(ctx, link.InstitutionID, ledgerAccountID, txns)
		log.Info().Int("created", result.Added).Int("skipped", result.Skipped).Str("external_account_id", externalAccountID).Msg("bridged transactions to ledger")
	}
}

func (s *Service) recordFailure(ctx context.Context, linkID string, cause error) {
	if err := s.links.UpdateStatus(ctx, linkID, domain.LinkStatusError, "sync_failed", cause.Error(), time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Str("link_id", linkID).Msg("failed to record link failure status")
	}
}

// RefreshBalances pulls current account balances for link and best-effort
// pushes them to the ledger (§4.4 "balance refresh is a separate endpoint").
func (s *Service) RefreshBalances(ctx context.Context, link *domain.InstitutionLink) error {
	if link.Status == domain.LinkStatusLoginRequired {
		return nil
	}
	accessToken, err := s.credentials.Decrypt(link.CredentialEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt link credential: %w", err)
	}

	balances, err := s.client.AccountBalances(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("account balances: %w", err)
	}

	accounts, err := s.accounts.ListByLink(ctx, link.ID)
	if err != nil {
		return fmt.Errorf("list source accounts: %w", err)
	}
	byExternalID := map[string]*domain.SourceAccount{}
	for _, a := range accounts {
		byExternalID[a.ExternalAccountID] = a
	}

	today := time.Now().UTC().Format("2006-01-02")
	for _, bal := range balances {
		acct, ok := byExternalID[bal.ExternalAccountID]
		if !ok {
			continue
		}
		acct.CurrentBalance = bal.Current
		acct.AvailableBalance = bal.Available
		if _, err := s.accounts.Upsert(ctx, acct); err != nil {
			s.log.Error().Err(err).Str("external_account_id", bal.ExternalAccountID).Msg("failed to persist refreshed balance")
			continue
		}

		ledgerAccountID, err := s.ledgerAdapter.UpsertAccount(ctx, link.InstitutionID, acct.ExternalAccountID, acct.Name, string(acct.Type), acct.Currency, &bal.Current)
		if err != nil {
			s.log.Error().Err(err).Str("external_account_id", bal.ExternalAccountID).Msg("failed to resolve ledger account for balance push")
			continue
		}
		if err := s.ledgerAdapter.Client().UpdateAccountBalance(ctx, ledgerAccountID, bal.Current, today); err != nil {
			s.log.Warn().Err(err).Str("external_account_id", bal.ExternalAccountID).Msg("best-effort balance push failed")
		}
	}
	return nil
}

func joinCategories(categories []string) string {
	out := ""
	for i, c := range categories {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
