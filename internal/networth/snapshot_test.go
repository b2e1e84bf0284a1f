package networth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
)

func newLedgerServer(t *testing.T, accounts []ledger.Account) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts" && r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(accounts)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunForUserSumsAssetsAndLiabilities(t *testing.T) {
	srv := newLedgerServer(t, []ledger.Account{
		{ID: "a1", Name: "Checking", Type: "asset", Balance: 1000},
		{ID: "a2", Name: "Credit Card", Type: "liabilities", Balance: -200},
	})
	db := repotest.NewDB(t)
	client := ledger.NewClient(srv.URL, "", zerolog.Nop())
	manualAssets := repositories.NewManualAssetRepository(db, zerolog.Nop())
	assetHistory := repositories.NewAssetHistoryRepository(db, zerolog.Nop())
	netWorthRepo := repositories.NewNetWorthRepository(db, zerolog.Nop())
	alertRepo := repositories.NewAlertRepository(db, zerolog.Nop())
	engine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "", zerolog.Nop()), events.NewManager(zerolog.Nop()), zerolog.Nop())

	snap := New(client, manualAssets, assetHistory, netWorthRepo, engine, zerolog.Nop())
	snap.RunForUser(context.Background(), "u1")

	latest, err := netWorthRepo.Latest(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, latest.TotalAssets)
	assert.Equal(t, 200.0, latest.TotalLiabilities)
	assert.Equal(t, 800.0, latest.NetWorth)
}

func TestRunForUserFiresMilestoneAlertOnCross(t *testing.T) {
	srv := newLedgerServer(t, []ledger.Account{{ID: "a1", Name: "Brokerage", Type: "asset", Balance: 60000}})
	db := repotest.NewDB(t)
	client := ledger.NewClient(srv.URL, "", zerolog.Nop())
	manualAssets := repositories.NewManualAssetRepository(db, zerolog.Nop())
	assetHistory := repositories.NewAssetHistoryRepository(db, zerolog.Nop())
	netWorthRepo := repositories.NewNetWorthRepository(db, zerolog.Nop())
	alertRepo := repositories.NewAlertRepository(db, zerolog.Nop())
	engine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "", zerolog.Nop()), events.NewManager(zerolog.Nop()), zerolog.Nop())

	ctx := context.Background()
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	require.NoError(t, netWorthRepo.Upsert(ctx, &domain.NetWorthSnapshot{
		UserID: "u1", Date: yesterday, TotalAssets: 40000, NetWorth: 40000, Breakdown: map[string]float64{},
	}))
	_, err := alertRepo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "net_worth_milestone", Severity: domain.SeverityMedium, Enabled: true, NotifyPush: false,
	})
	require.NoError(t, err)

	snap := New(client, manualAssets, assetHistory, netWorthRepo, engine, zerolog.Nop())
	snap.RunForUser(ctx, "u1")

	history, err := alertRepo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Message, "50000")
}
