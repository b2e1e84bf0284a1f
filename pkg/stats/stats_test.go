package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileMonotonic(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	p10 := Percentile(data, 10)
	p50 := Percentile(data, 50)
	p90 := Percentile(data, 90)
	assert.LessOrEqual(t, p10, p50)
	assert.LessOrEqual(t, p50, p90)
}

func TestPercentileInterpolates(t *testing.T) {
	data := []float64{0, 10}
	// Rank for p50 over 2 elements = 0.5 * (2-1) = 0.5 -> interpolates to 5
	assert.Equal(t, 5.0, Percentile(data, 50))
}

func TestStdDevPopulation(t *testing.T) {
	// [2, 4, 4, 4, 5, 5, 7, 9] has population stddev = 2
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, StdDev(data), 0.0001)
}

func TestLinearRegressionSlope(t *testing.T) {
	y := []float64{100, 110, 120, 130, 140}
	slope, intercept := LinearRegression(y)
	assert.InDelta(t, 10.0, slope, 0.0001)
	assert.InDelta(t, 100.0, intercept, 0.0001)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1995.92, Round2(1995.915))
	assert.Equal(t, 0.0, Round2(0.001))
}
