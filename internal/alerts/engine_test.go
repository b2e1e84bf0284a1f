package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
)

func setupEngine(t *testing.T, pushHandler http.HandlerFunc) (*Engine, *repositories.AlertRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	repo := repositories.NewAlertRepository(db, zerolog.Nop())

	var push *PushClient
	if pushHandler != nil {
		srv := httptest.NewServer(pushHandler)
		t.Cleanup(srv.Close)
		push = NewPushClient(srv.URL, "alerts", zerolog.Nop())
	} else {
		push = NewPushClient("", "alerts", zerolog.Nop())
	}

	return NewEngine(repo, push, events.NewManager(zerolog.Nop()), zerolog.Nop()), repo
}

func float(v float64) *float64 { return &v }

func TestEvaluateLowBalanceTriggersBelowThreshold(t *testing.T) {
	var pushed int32
	engine, repo := setupEngine(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pushed, 1)
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	_, err := repo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "low_balance", Threshold: float(100),
		Severity: domain.SeverityHigh, Enabled: true, NotifyPush: true,
	})
	require.NoError(t, err)

	err = engine.Evaluate(ctx, events.Event{
		Type: events.LowBalance, UserID: "u1", AccountName: "Checking", Balance: float(50),
	})
	require.NoError(t, err)

	history, err := repo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "⚠️ Low Balance Alert", history[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pushed))
}

func TestEvaluateLowBalanceDoesNotTriggerAtThreshold(t *testing.T) {
	engine, repo := setupEngine(t, nil)
	ctx := context.Background()

	_, err := repo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "low_balance", Threshold: float(100),
		Severity: domain.SeverityHigh, Enabled: true, NotifyPush: false,
	})
	require.NoError(t, err)

	err = engine.Evaluate(ctx, events.Event{
		Type: events.LowBalance, UserID: "u1", AccountName: "Checking", Balance: float(100),
	})
	require.NoError(t, err)

	history, err := repo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEvaluateSyncFailureAlwaysTriggersAndIsCritical(t *testing.T) {
	engine, repo := setupEngine(t, nil)
	ctx := context.Background()

	_, err := repo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "sync_failure", Severity: domain.SeverityLow, Enabled: true,
	})
	require.NoError(t, err)

	err = engine.Evaluate(ctx, events.Event{
		Type: events.SyncFailure, UserID: "u1", Institution: "chase", Description: "timeout",
	})
	require.NoError(t, err)

	history, err := repo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.SeverityCritical, history[0].Severity)
}

func TestEvaluateSkipsDisabledAndOtherUsersRules(t *testing.T) {
	engine, repo := setupEngine(t, nil)
	ctx := context.Background()

	_, err := repo.CreateRule(ctx, &domain.AlertRule{
		UserID: "other-user", RuleType: "anomaly", Severity: domain.SeverityMedium, Enabled: true,
	})
	require.NoError(t, err)
	_, err = repo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "anomaly", Severity: domain.SeverityMedium, Enabled: false,
	})
	require.NoError(t, err)

	err = engine.Evaluate(ctx, events.Event{Type: events.Anomaly, UserID: "u1", Description: "weird"})
	require.NoError(t, err)

	history, err := repo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	assert.Empty(t, history)
}
