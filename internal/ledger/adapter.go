package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/parsers"
)

// MappingStore persists the institution/externalId -> ledgerAccountId
// mapping that backs step 2 of account resolution (§4.3.1).
type MappingStore interface {
	Get(ctx context.Context, institution, externalID string) (ledgerAccountID string, ok bool, err error)
	Upsert(ctx context.Context, institution, externalID, ledgerAccountID string) error
}

// ImportedKeyStore records which external transactions have already been
// written to the ledger (§4.3.2).
type ImportedKeyStore interface {
	Exists(ctx context.Context, externalID, institution string) (bool, error)
	Insert(ctx context.Context, externalID, institution, ledgerTransactionID string) error
}

// Adapter implements the idempotent upsert operations in §4.3. It holds a
// process-local memo cache on top of the persistent mapping table; the
// cache is never invalidated during normal operation, so a process restart
// repopulates it lazily from the store.
type Adapter struct {
	client  *Client
	mapping MappingStore
	keys    ImportedKeyStore
	log     zerolog.Logger

	cache sync.Map // institution:externalId -> ledgerAccountId
}

// NewAdapter builds a ledger Adapter.
func NewAdapter(client *Client, mapping MappingStore, keys ImportedKeyStore, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:  client,
		mapping: mapping,
		keys:    keys,
		log:     log.With().Str("component", "ledger_adapter").Logger(),
	}
}

func cacheKey(institution, externalID string) string {
	return institution + ":" + externalID
}

// Client exposes the underlying ledger HTTP client for callers that need
// operations the adapter doesn't wrap, such as a best-effort balance push.
func (a *Adapter) Client() *Client {
	return a.client
}

// UpsertAccount resolves an institution account to a ledger account id,
// creating one if necessary. Steps 2 and 3 are best-effort: any failure
// there is swallowed and the next step is attempted. Only account creation
// (step 4) can return an error.
func (a *Adapter) UpsertAccount(ctx context.Context, institution, externalID, name, acctType, currency string, balance *float64) (string, error) {
	key := cacheKey(institution, externalID)

	if cached, ok := a.cache.Load(key); ok {
		return cached.(string), nil
	}

	if id, ok, err := a.mapping.Get(ctx, institution, externalID); err != nil {
		a.log.Warn().Err(err).Str("institution", institution).Msg("mapping lookup failed, continuing")
	} else if ok {
		a.cache.Store(key, id)
		return id, nil
	}

	displayName := fmt.Sprintf("[%s] %s", institution, name)
	if accounts, err := a.client.ListAccounts(ctx); err != nil {
		a.log.Warn().Err(err).Msg("ledger list accounts failed, continuing")
	} else {
		for _, acct := range accounts {
			if acct.Name == displayName {
				_ = a.mapping.Upsert(ctx, institution, externalID, acct.ID)
				a.cache.Store(key, acct.ID)
				return acct.ID, nil
			}
		}
	}

	ledgerType := "asset"
	if strings.EqualFold(acctType, "credit") {
		ledgerType = "liabilities"
	}

	created, err := a.client.CreateAccount(ctx, CreateAccountRequest{
		Name:     displayName,
		Type:     ledgerType,
		Currency: currency,
	})
	if err != nil {
		return "", fmt.Errorf("create ledger account: %w", err)
	}

	_ = a.mapping.Upsert(ctx, institution, externalID, created.ID)
	a.cache.Store(key, created.ID)
	return created.ID, nil
}

// UpsertResult is the outcome of UpsertTransactions.
type UpsertResult struct {
	Added   int
	Skipped int
}

// UpsertTransactions writes rawTxns to the ledger, deduplicating on a
// synthesized external id (§4.3.2). It never returns an error: every
// failure mode is absorbed into the skipped count.
func (a *Adapter) UpsertTransactions(ctx context.Context, institution, ledgerAccountID string, rawTxns []parsers.RawTransaction) UpsertResult {
	var result UpsertResult

	for _, txn := range rawTxns {
		externalID := txn.ID
		if externalID == "" {
			externalID = fmt.Sprintf("%s-%s-%s-%s", institution, txn.Date, txn.Name, formatAmount(txn.Amount))
		}

		exists, err := a.keys.Exists(ctx, externalID, institution)
		if err != nil {
			a.log.Warn().Err(err).Msg("imported key lookup failed, treating as new")
		} else if exists {
			result.Skipped++
			continue
		}

		amount := cleanAmountString(formatAmount(txn.Amount))
		absAmount := strings.TrimPrefix(amount, "-")

		var source, destination string
		if txn.Amount < 0 {
			source, destination = ledgerAccountID, txn.Name
		} else {
			source, destination = txn.Name, ledgerAccountID
		}

		date := normalizeDate(txn.Date)

		err = a.client.CreateTransaction(ctx, CreateTransactionRequest{
			Date:        date,
			Description: txn.Name,
			Amount:      absAmount,
			Source:      source,
			Destination: destination,
		})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				result.Skipped++
				continue
			}
			a.log.Warn().Err(err).Str("external_id", externalID).Msg("ledger transaction create failed, skipping")
			result.Skipped++
			continue
		}

		if err := a.keys.Insert(ctx, externalID, institution, externalID); err != nil {
			a.log.Warn().Err(err).Msg("imported key insert failed")
		}
		result.Added++
	}

	return result
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func cleanAmountString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeDate accepts YYYYMMDD, MM/DD/YYYY, or ISO dates, falling back to
// today when the input doesn't parse.
func normalizeDate(raw string) string {
	layouts := []string{"2006-01-02", "20060102", "01/02/2006", time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}
