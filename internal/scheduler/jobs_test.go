package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
)

func TestForEachUserFallsBackToSingleRunWithNoUsers(t *testing.T) {
	db := repotest.NewDB(t)
	users := repositories.NewUserRepository(db, zerolog.Nop())

	var seen []string
	err := forEachUser(context.Background(), users, zerolog.Nop(), "test", func(ctx context.Context, userID string) {
		seen = append(seen, userID)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, seen)
}

func TestForEachUserRunsOncePerRegisteredUser(t *testing.T) {
	db := repotest.NewDB(t)
	users := repositories.NewUserRepository(db, zerolog.Nop())
	ctx := context.Background()

	u1, err := users.Create(ctx, "a@example.com", "hash")
	require.NoError(t, err)
	u2, err := users.Create(ctx, "b@example.com", "hash")
	require.NoError(t, err)

	var seen []string
	err = forEachUser(ctx, users, zerolog.Nop(), "test", func(ctx context.Context, userID string) {
		seen = append(seen, userID)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{u1.ID, u2.ID}, seen)
}

func TestForEachUserContinuesAfterAPanickingUser(t *testing.T) {
	db := repotest.NewDB(t)
	users := repositories.NewUserRepository(db, zerolog.Nop())
	ctx := context.Background()

	_, err := users.Create(ctx, "a@example.com", "hash")
	require.NoError(t, err)
	_, err = users.Create(ctx, "b@example.com", "hash")
	require.NoError(t, err)

	calls := 0
	err = forEachUser(ctx, users, zerolog.Nop(), "test", func(ctx context.Context, userID string) {
		calls++
		panic("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRefreshBalancesJobRunsAgainstLedgerAccounts(t *testing.T) {
	db := repotest.NewDB(t)
	users := repositories.NewUserRepository(db, zerolog.Nop())
	alertRepo := repositories.NewAlertRepository(db, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"1","name":"Checking","type":"assets","balance":5},
			{"id":"2","name":"Credit Card","type":"liabilities","balance":-200}
		]`))
	}))
	t.Cleanup(srv.Close)

	ledgerClient := ledger.NewClient(srv.URL, "", zerolog.Nop())
	engine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "alerts", zerolog.Nop()), events.NewManager(zerolog.Nop()), zerolog.Nop())
	watcher := alerts.NewBalanceWatcher(ledgerClient, engine, zerolog.Nop())

	job := NewRefreshBalancesJob(users, watcher, zerolog.Nop())
	assert.Equal(t, "refreshBalances", job.Name())
	require.NoError(t, job.Run())
}
