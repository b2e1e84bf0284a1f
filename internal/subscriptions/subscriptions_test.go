package subscriptions

import (
	"context"
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
)

func setupDetector(t *testing.T) (*Detector, *repositories.MerchantRepository, *repositories.AlertRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	merchants := repositories.NewMerchantRepository(db, zerolog.Nop())
	alertRepo := repositories.NewAlertRepository(db, zerolog.Nop())
	engine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "", zerolog.Nop()), events.NewManager(zerolog.Nop()), zerolog.Nop())
	return New(merchants, engine, zerolog.Nop()), merchants, alertRepo
}

func TestRunFiresAlertForRecurringSubscriptionMerchant(t *testing.T) {
	detector, merchants, alertRepo := setupDetector(t)
	ctx := context.Background()

	require.NoError(t, merchants.RecordCategory(ctx, "netflix", "subscriptions", "rule"))
	now := time.Now()
	require.NoError(t, merchants.RecordHistory(ctx, "netflix", 15.99, now.AddDate(0, 0, -60).Format("2006-01-02")))
	require.NoError(t, merchants.RecordHistory(ctx, "netflix", 15.99, now.AddDate(0, 0, -30).Format("2006-01-02")))

	_, err := alertRepo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "new_subscription", Severity: domain.SeverityLow, Enabled: true,
	})
	require.NoError(t, err)

	detector.Run(ctx, "u1")

	history, err := alertRepo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Message, "netflix")
}

func TestRunSkipsMerchantsBelowMinimumOccurrences(t *testing.T) {
	detector, merchants, alertRepo := setupDetector(t)
	ctx := context.Background()

	require.NoError(t, merchants.RecordCategory(ctx, "onetime-service", "subscriptions", "rule"))
	require.NoError(t, merchants.RecordHistory(ctx, "onetime-service", 9.99, time.Now().AddDate(0, 0, -30).Format("2006-01-02")))

	_, err := alertRepo.CreateRule(ctx, &domain.AlertRule{
		UserID: "u1", RuleType: "new_subscription", Severity: domain.SeverityLow, Enabled: true,
	})
	require.NoError(t, err)

	detector.Run(ctx, "u1")

	history, err := alertRepo.ListForUser(ctx, "u1", false, "")
	require.NoError(t, err)
	assert.Empty(t, history)
}
