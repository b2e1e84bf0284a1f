package insights

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
)

func TestGenerateForMonthComputesSavingsRateAndCategories(t *testing.T) {
	db := repotest.NewDB(t)
	netWorth := repositories.NewNetWorthRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, netWorth.Upsert(ctx, &domain.NetWorthSnapshot{
		UserID:      "u1",
		Date:        "2026-06-30",
		TotalAssets: 10000,
		NetWorth:    9000,
		Breakdown: map[string]float64{
			"monthlyIncome":   5000,
			"monthlyExpenses": 3000,
			"groceries":       -600,
			"rent":            -1500,
		},
	}))

	gen := New(netWorth, zerolog.Nop())
	summary, err := gen.GenerateForMonth(ctx, "u1", 2026, 6)
	require.NoError(t, err)

	assert.Equal(t, 2026, summary.Year)
	assert.Equal(t, 6, summary.Month)
	assert.Equal(t, 40.0, summary.SavingsRate)
	assert.Equal(t, 600.0, summary.SpendingByCategory["groceries"])
	assert.Equal(t, 1500.0, summary.SpendingByCategory["rent"])
	assert.NotContains(t, summary.SpendingByCategory, "monthlyIncome")
	assert.NotContains(t, summary.SpendingByCategory, "monthlyExpenses")
	assert.InDelta(t, 10000.0/3000.0, summary.EmergencyFundMonths, 0.01)
}

func TestGenerateForMonthZeroIncomeYieldsZeroSavingsRate(t *testing.T) {
	db := repotest.NewDB(t)
	netWorth := repositories.NewNetWorthRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, netWorth.Upsert(ctx, &domain.NetWorthSnapshot{
		UserID: "u1", Date: "2026-06-30", TotalAssets: 500, NetWorth: 500,
		Breakdown: map[string]float64{"monthlyExpenses": 200},
	}))

	gen := New(netWorth, zerolog.Nop())
	summary, err := gen.GenerateForMonth(ctx, "u1", 2026, 6)
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.SavingsRate)
}
