package forecast

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

// fixedSampler always returns mean, making deterministic-scenario assertions
// and fireNumber-crossing assertions exact instead of probabilistic.
type fixedSampler struct{}

func (fixedSampler) Normal(mean, stddev float64) float64 { return mean }

func seedHistory(t *testing.T, repo *repositories.NetWorthRepository, userID string, values []float64) {
	t.Helper()
	dates := []string{"2026-01-01", "2026-02-01", "2026-03-01", "2026-04-01", "2026-05-01", "2026-06-01", "2026-07-01"}
	for i, v := range values {
		require.NoError(t, repo.Upsert(context.Background(), &domain.NetWorthSnapshot{
			UserID: userID, Date: dates[i], NetWorth: v, TotalAssets: v, Breakdown: map[string]float64{},
		}))
	}
}

func newForecaster(t *testing.T) (*Forecaster, *repositories.NetWorthRepository, *repositories.ManualAssetRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	netWorthRepo := repositories.NewNetWorthRepository(db, zerolog.Nop())
	manualAssets := repositories.NewManualAssetRepository(db, zerolog.Nop())
	snapshots := repositories.NewForecastSnapshotRepository(db, zerolog.Nop())
	f := New(netWorthRepo, manualAssets, snapshots, zerolog.Nop())
	return f, netWorthRepo, manualAssets
}

func TestRunReturnsNilWithInsufficientHistory(t *testing.T) {
	f, netWorthRepo, _ := newForecaster(t)
	ctx := context.Background()
	require.NoError(t, netWorthRepo.Upsert(ctx, &domain.NetWorthSnapshot{
		UserID: "u1", Date: "2026-07-01", NetWorth: 1000, Breakdown: map[string]float64{},
	}))

	snap, err := f.Run(ctx, "u1", Input{})
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRunPersistsSnapshotWithSufficientHistory(t *testing.T) {
	f, netWorthRepo, _ := newForecaster(t)
	ctx := context.Background()
	seedHistory(t, netWorthRepo, "u1", []float64{10000, 11000, 12000, 13000, 14000, 15000, 16000})

	snap, err := f.Run(ctx, "u1", Input{HorizonMonths: 24})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 24, snap.HorizonMonths)
	assert.Contains(t, snap.Summary, "fire_number")
}

func TestMonteCarloPercentileTrajectoriesAreMonotonic(t *testing.T) {
	f, netWorthRepo, _ := newForecaster(t)
	ctx := context.Background()
	seedHistory(t, netWorthRepo, "u1", []float64{10000, 11500, 12800, 14200, 15600, 17000, 18500})

	snap, err := f.Run(ctx, "u1", Input{HorizonMonths: 12})
	require.NoError(t, err)
	require.NotNil(t, snap)

	mc, ok := snap.Scenarios["monte_carlo"].(map[string][]float64)
	require.True(t, ok)

	for m := 0; m < 12; m++ {
		assert.LessOrEqual(t, mc["p10"][m], mc["p50"][m])
		assert.LessOrEqual(t, mc["p50"][m], mc["p90"][m])
	}
}

func TestDeterministicScenariosAreStableAcrossRuns(t *testing.T) {
	scenarioA := deterministicScenarios(10000, 500, 200, 12)
	scenarioB := deterministicScenarios(10000, 500, 200, 12)
	assert.Equal(t, scenarioA, scenarioB)
	assert.Greater(t, scenarioA.Upside[11], scenarioA.Expected[11])
	assert.Less(t, scenarioA.Downside[11], scenarioA.Expected[11])
}

func TestForecastWithFixedSamplerCrossesFireNumberDeterministically(t *testing.T) {
	f, netWorthRepo, _ := newForecaster(t)
	f.WithSampler(fixedSampler{})
	ctx := context.Background()
	seedHistory(t, netWorthRepo, "u1", []float64{10000, 20000, 30000, 40000, 50000, 60000, 70000})

	snap, err := f.Run(ctx, "u1", Input{HorizonMonths: 36})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 100, snap.Summary["fire_probability"])
}
