package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/ledger"
)

type plaintextCredentials struct{}

func (plaintextCredentials) Decrypt(ciphertext []byte) (string, error) { return string(ciphertext), nil }

func newTestService(t *testing.T, aggregatorURL, ledgerURL string) (*Service, *repositories.InstitutionLinkRepository, *repositories.SourceAccountRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	links := repositories.NewInstitutionLinkRepository(db, zerolog.Nop())
	accounts := repositories.NewSourceAccountRepository(db, zerolog.Nop())
	mapping := repositories.NewLedgerMappingRepository(db, zerolog.Nop())
	keys := repositories.NewImportedTxnKeyRepository(db, zerolog.Nop())

	ledgerClient := ledger.NewClient(ledgerURL, "", zerolog.Nop())
	adapter := ledger.NewAdapter(ledgerClient, mapping, keys, zerolog.Nop())
	client := NewClient(aggregatorURL, "id", "secret", "sandbox", "", zerolog.Nop())

	svc := NewService(db, client, plaintextCredentials{}, links, accounts, adapter, zerolog.Nop())
	return svc, links, accounts
}

func TestSyncLinkAppliesAddedAndPersistsCursor(t *testing.T) {
	ledgerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/accounts" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]ledger.Account{})
		case r.URL.Path == "/accounts" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(ledger.Account{ID: "ledger-1", Name: "[chase] Checking"})
		case r.URL.Path == "/transactions":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ledgerSrv.Close()

	pages := 0
	aggregatorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/sync" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		pages++
		if pages == 1 {
			json.NewEncoder(w).Encode(SyncPage{
				Added: []Transaction{
					{TransactionID: "t1", ExternalAccountID: "acc-1", Amount: -45.99, Name: "AMAZON", Date: "2026-07-01"},
				},
				NextCursor: "cursor-1",
				HasMore:    true,
			})
			return
		}
		json.NewEncoder(w).Encode(SyncPage{NextCursor: "cursor-2", HasMore: false})
	}))
	defer aggregatorSrv.Close()

	svc, links, accounts := newTestService(t, aggregatorSrv.URL, ledgerSrv.URL)
	ctx := context.Background()

	link, err := links.Create(ctx, &domain.InstitutionLink{
		UserID: "u1", SourceKind: domain.SourceAggregator, InstitutionID: "item-1",
		InstitutionName: "Chase", CredentialEncrypted: []byte("access-token-1"),
	})
	require.NoError(t, err)
	_, err = accounts.Upsert(ctx, &domain.SourceAccount{
		LinkID: link.ID, UserID: "u1", ExternalAccountID: "acc-1", Name: "Checking", Type: domain.AccountAsset, Currency: "USD",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SyncLink(ctx, link))
	assert.Equal(t, 2, pages)

	updated, err := links.GetByID(ctx, "u1", link.ID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-2", updated.SyncCursor)
	assert.Equal(t, domain.LinkStatusGood, updated.Status)
}

func TestSyncLinkSkipsLoginRequiredLinks(t *testing.T) {
	svc, links, _ := newTestService(t, "http://unused.invalid", "http://unused.invalid")
	ctx := context.Background()

	link, err := links.Create(ctx, &domain.InstitutionLink{
		UserID: "u1", SourceKind: domain.SourceAggregator, InstitutionID: "item-2", Status: domain.LinkStatusLoginRequired,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SyncLink(ctx, link))
}
