package forecast

import (
	"math"
	"math/rand"

	"github.com/aristath/finhub/pkg/stats"
)

// boxMullerSampler draws standard normal deviates via the Box-Muller
// transform, rejecting u1 = 0 to avoid log(0) (§4.7's "MUST use Box-Muller").
type boxMullerSampler struct{}

func (boxMullerSampler) Normal(mean, stddev float64) float64 {
	var u1 float64
	for u1 == 0 {
		u1 = rand.Float64()
	}
	u2 := rand.Float64()
	z0 := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z0*stddev
}

type monteCarloResult struct {
	trajectories       map[string][]float64
	fireProbability    interface{}
	monthsToFireP10    interface{}
	monthsToFireP50    interface{}
	monthsToFireP90    interface{}
	sustainabilityRate interface{}
}

// monteCarlo runs monteCarloTrials independent trials stepping monthly by
// Normal(drift, sigma) from start, and a 30-year post-FIRE sustainability
// simulation for every trial that crosses fireNumber (§4.7 steps 6-7).
func (f *Forecaster) monteCarlo(start, drift, sigma, fireNumber float64, params Input) monteCarloResult {
	horizon := params.HorizonMonths
	trialValues := make([][]float64, monteCarloTrials)
	crossingMonths := make([]float64, 0, monteCarloTrials)
	var survivors, simulated int

	for t := 0; t < monteCarloTrials; t++ {
		path := make([]float64, horizon)
		balance := start
		crossedAt := -1
		var atFire float64
		for m := 0; m < horizon; m++ {
			balance += f.sampler.Normal(drift, sigma)
			path[m] = balance
			if crossedAt == -1 && balance >= fireNumber {
				crossedAt = m + 1
				atFire = balance
			}
		}
		trialValues[t] = path

		if crossedAt != -1 {
			crossingMonths = append(crossingMonths, float64(crossedAt))
			if f.simulateSustainability(atFire, sigma, params.InflationRate, params.WithdrawalRate) {
				survivors++
			}
			simulated++
		}
	}

	trajectories := map[string][]float64{}
	for _, p := range []float64{10, 25, 50, 75, 90} {
		series := make([]float64, horizon)
		for m := 0; m < horizon; m++ {
			monthValues := make([]float64, monteCarloTrials)
			for t := 0; t < monteCarloTrials; t++ {
				monthValues[t] = trialValues[t][m]
			}
			series[m] = stats.Round2(stats.Percentile(monthValues, p))
		}
		trajectories[percentileKey(p)] = series
	}

	result := monteCarloResult{
		trajectories:    trajectories,
		fireProbability: int(math.Round(float64(len(crossingMonths)) / float64(monteCarloTrials) * 100)),
	}
	if len(crossingMonths) > 0 {
		result.monthsToFireP10 = stats.Percentile(crossingMonths, 10)
		result.monthsToFireP50 = stats.Percentile(crossingMonths, 50)
		result.monthsToFireP90 = stats.Percentile(crossingMonths, 90)
	}
	if simulated > 0 {
		result.sustainabilityRate = int(math.Round(float64(survivors) / float64(simulated) * 100))
	}
	return result
}

// simulateSustainability runs 30 years of monthly withdrawals against
// portfolioAtFire, growing the withdrawal with inflation and applying no
// return drift (conservative, §4.7 step 7). Returns true if the balance
// never reaches zero.
func (f *Forecaster) simulateSustainability(portfolioAtFire, sigma, inflationRate, withdrawalRate float64) bool {
	balance := portfolioAtFire
	monthlyWithdrawal := portfolioAtFire * withdrawalRate / 12

	for m := 0; m < sustainabilityMonths; m++ {
		balance += f.sampler.Normal(0, sigma)
		balance -= monthlyWithdrawal
		if balance <= 0 {
			return false
		}
		monthlyWithdrawal *= 1 + inflationRate/12
	}
	return true
}

func percentileKey(p float64) string {
	switch p {
	case 10:
		return "p10"
	case 25:
		return "p25"
	case 50:
		return "p50"
	case 75:
		return "p75"
	case 90:
		return "p90"
	default:
		return "p"
	}
}
