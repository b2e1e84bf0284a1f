// Package stats provides the small set of statistical primitives the
// forecaster needs: sample moments, linear regression, and percentile
// interpolation over Monte Carlo trial sets.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the population standard deviation of a slice of values.
// Unlike gonum's sample StdDev (Bessel's correction), the forecaster wants
// the population statistic over the full historical series it already has.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	var sumSq float64
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)))
}

// Diffs returns the first differences of a series: diffs[i] = data[i+1] - data[i].
func Diffs(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	out := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		out[i-1] = data[i] - data[i-1]
	}
	return out
}

// LinearRegression fits y = alpha + beta*x over equally spaced x = 0..n-1 and
// returns the slope (beta) and intercept (alpha).
func LinearRegression(y []float64) (slope, intercept float64) {
	n := len(y)
	if n == 0 {
		return 0, 0
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept
}

// Percentile returns the linearly-interpolated p-th percentile (0-100) of a
// slice of values. The input is not mutated; a sorted copy is used.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Round2 rounds a float to 2 decimal places, the storage-boundary rounding
// convention used throughout the monetary calculations in this system.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
