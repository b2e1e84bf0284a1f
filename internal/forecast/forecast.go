// Package forecast implements the forecaster (§4.7): a deterministic linear
// projection plus a Monte Carlo simulation of FIRE-number crossing and
// post-FIRE sustainability.
package forecast

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/pkg/stats"
)

// minHistory is the minimum number of historical snapshots required to
// produce a forecast (§4.7).
const minHistory = 5

// monteCarloTrials is the fixed trial count for the Monte Carlo simulation
// (§4.7 step 6).
const monteCarloTrials = 1000

// sustainabilityMonths is 30 years of monthly withdrawal simulation (§4.7
// step 7).
const sustainabilityMonths = 30 * 12

const (
	defaultWithdrawalRate = 0.04
	minWithdrawalRate     = 0.01
	maxWithdrawalRate     = 0.10

	defaultInflationRate = 0.03
	minInflationRate     = 0.00
	maxInflationRate     = 0.15

	defaultHorizonMonths = 12
)

// Input parameterizes one forecast run. Zero values fall back to the
// defaults from §4.7.
type Input struct {
	HorizonMonths  int
	WithdrawalRate float64
	InflationRate  float64
}

func (in Input) normalize() Input {
	out := in
	if out.HorizonMonths <= 0 {
		out.HorizonMonths = defaultHorizonMonths
	}
	if out.WithdrawalRate == 0 {
		out.WithdrawalRate = defaultWithdrawalRate
	}
	out.WithdrawalRate = clamp(out.WithdrawalRate, minWithdrawalRate, maxWithdrawalRate)
	if out.InflationRate == 0 {
		out.InflationRate = defaultInflationRate
	}
	out.InflationRate = clamp(out.InflationRate, minInflationRate, maxInflationRate)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sampler draws standard-normal deviates. Production code uses
// boxMullerSampler; tests inject a deterministic one.
type Sampler interface {
	Normal(mean, stddev float64) float64
}

// Forecaster computes and persists ForecastSnapshot rows.
type Forecaster struct {
	netWorth     *repositories.NetWorthRepository
	manualAssets *repositories.ManualAssetRepository
	snapshots    *repositories.ForecastSnapshotRepository
	sampler      Sampler
	log          zerolog.Logger
}

// New creates a new Forecaster using the Box-Muller sampler.
func New(
	netWorth *repositories.NetWorthRepository,
	manualAssets *repositories.ManualAssetRepository,
	snapshots *repositories.ForecastSnapshotRepository,
	log zerolog.Logger,
) *Forecaster {
	return &Forecaster{
		netWorth:     netWorth,
		manualAssets: manualAssets,
		snapshots:    snapshots,
		sampler:      &boxMullerSampler{},
		log:          log.With().Str("component", "forecaster").Logger(),
	}
}

// WithSampler overrides the normal sampler, for deterministic tests.
func (f *Forecaster) WithSampler(s Sampler) *Forecaster {
	f.sampler = s
	return f
}

// Run computes and persists a forecast for userID. Returns silently (nil,
// nil) if fewer than minHistory snapshots exist, per §4.7.
func (f *Forecaster) Run(ctx context.Context, userID string, in Input) (*domain.ForecastSnapshot, error) {
	params := in.normalize()

	history, err := f.netWorth.History(ctx, userID, 10000)
	if err != nil {
		return nil, err
	}
	if len(history) < minHistory {
		return nil, nil
	}

	series := make([]float64, len(history))
	for i, h := range history {
		series[i] = h.NetWorth
	}

	avgMonthlySavings, _ := stats.LinearRegression(series)
	sigma := stats.StdDev(stats.Diffs(series))

	avgMonthlyExpenses := averageMonthlyExpenses(history)
	fireNumber := (avgMonthlyExpenses * 12) / params.WithdrawalRate

	latestNetWorth := series[len(series)-1]
	illiquid, err := f.illiquidTotal(ctx, userID)
	if err != nil {
		f.log.Warn().Err(err).Msg("failed to compute illiquid total")
	}
	liquidNetWorth := math.Max(0, latestNetWorth-illiquid)

	liquidSeries := make([]float64, len(series))
	for i, v := range series {
		liquidSeries[i] = v - illiquid
	}
	liquidSigma := stats.StdDev(stats.Diffs(liquidSeries))

	scenarios := deterministicScenarios(latestNetWorth, avgMonthlySavings, sigma, params.HorizonMonths)
	monteCarlo := f.monteCarlo(liquidNetWorth, avgMonthlySavings, liquidSigma, fireNumber, params)

	snapshot := &domain.ForecastSnapshot{
		UserID:        userID,
		HorizonMonths: params.HorizonMonths,
		Scenarios: map[string]interface{}{
			"deterministic": scenarios,
			"monte_carlo":   monteCarlo.trajectories,
		},
		Summary: map[string]interface{}{
			"avg_monthly_savings": stats.Round2(avgMonthlySavings),
			"fire_number":         stats.Round2(fireNumber),
			"liquid_net_worth":    stats.Round2(liquidNetWorth),
			"fire_probability":    monteCarlo.fireProbability,
			"months_to_fire_p10":  monteCarlo.monthsToFireP10,
			"months_to_fire_p50":  monteCarlo.monthsToFireP50,
			"months_to_fire_p90":  monteCarlo.monthsToFireP90,
			"sustainability_rate": monteCarlo.sustainabilityRate,
		},
	}

	if _, err := f.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func averageMonthlyExpenses(history []*domain.NetWorthSnapshot) float64 {
	n := len(history)
	if n > 12 {
		history = history[n-12:]
	}
	var total float64
	var count int
	for _, h := range history {
		if v, ok := h.Breakdown["monthlyExpenses"]; ok {
			total += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func (f *Forecaster) illiquidTotal(ctx context.Context, userID string) (float64, error) {
	manualAssets, err := f.manualAssets.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, a := range manualAssets {
		if domain.IlliquidCategories[a.Type] {
			total += a.CurrentValue
		}
	}
	return total, nil
}

type scenarioSeries struct {
	Expected []float64 `json:"expected"`
	Upside   []float64 `json:"upside"`
	Downside []float64 `json:"downside"`
}

func deterministicScenarios(start, drift, sigma float64, horizon int) scenarioSeries {
	out := scenarioSeries{
		Expected: make([]float64, horizon),
		Upside:   make([]float64, horizon),
		Downside: make([]float64, horizon),
	}
	expected, upside, downside := start, start, start
	for i := 0; i < horizon; i++ {
		expected += drift
		upside += drift + sigma
		downside += drift - sigma
		out.Expected[i] = stats.Round2(expected)
		out.Upside[i] = stats.Round2(upside)
		out.Downside[i] = stats.Round2(downside)
	}
	return out
}
