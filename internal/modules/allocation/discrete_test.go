package allocation

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariants(t *testing.T, alloc *Allocation, weights, prices map[string]float64, budget float64) {
	t.Helper()

	spent := alloc.Spent(prices)
	assert.LessOrEqual(t, spent, budget+1e-9)
	assert.GreaterOrEqual(t, alloc.Leftover, 0.0)
	assert.InDelta(t, budget-spent, alloc.Leftover, 1e-6)

	for ticker, w := range weights {
		if w > 0 {
			assert.Greater(t, prices[ticker], alloc.Leftover, "an affordable share of %s was left unbought", ticker)
		}
	}
	for _, n := range alloc.Shares {
		assert.Positive(t, n)
	}
}

func TestGreedy_TwoAssetScenario(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	weights := map[string]float64{"A": 0.3, "B": 0.7}
	prices := map[string]float64{"A": 50, "B": 20}

	alloc, err := da.Greedy(weights, prices, 10000)
	require.NoError(t, err)

	assert.Equal(t, 60, alloc.Shares["A"])
	assert.Equal(t, 350, alloc.Shares["B"])
	assert.InDelta(t, 0.0, alloc.Leftover, 1e-9)
	assert.GreaterOrEqual(t, alloc.Spent(prices), 0.95*10000)
	checkInvariants(t, alloc, weights, prices, 10000)
}

func TestGreedy_SpendsRemainderOnMostUnderweight(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	// Ideal shares: A = 1.75, B = 0.75. Floors leave 15 in cash.
	// A's ratio (2/1.75) undershoots B's (1/0.75), so A gets the extra share.
	weights := map[string]float64{"A": 0.7, "B": 0.3}
	prices := map[string]float64{"A": 10, "B": 10}

	alloc, err := da.Greedy(weights, prices, 25)
	require.NoError(t, err)
	checkInvariants(t, alloc, weights, prices, 25)

	assert.Equal(t, map[string]int{"A": 2}, alloc.Shares)
	assert.InDelta(t, 5.0, alloc.Leftover, 1e-9)
}

func TestGreedy_TieBreaksByWeightThenTicker(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	// Equal ideals of 0.5 shares each: only one share affordable.
	weights := map[string]float64{"B": 0.5, "A": 0.5}
	prices := map[string]float64{"A": 100, "B": 100}

	alloc, err := da.Greedy(weights, prices, 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, alloc.Shares)
	assert.Equal(t, 0.0, alloc.Leftover)

	weights = map[string]float64{"A": 0.4, "B": 0.6}
	prices = map[string]float64{"A": 100, "B": 150}
	alloc, err = da.Greedy(weights, prices, 150)
	require.NoError(t, err)
	// A: ideal 0.6 -> ratio 1.667; B: ideal 0.6 -> ratio 1.667; B has the larger weight.
	assert.Equal(t, map[string]int{"B": 1}, alloc.Shares)
}

func TestGreedy_IgnoresZeroWeights(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	weights := map[string]float64{"A": 1.0, "B": 0}
	prices := map[string]float64{"A": 30, "B": 1}

	alloc, err := da.Greedy(weights, prices, 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 3}, alloc.Shares)
	assert.InDelta(t, 10.0, alloc.Leftover, 1e-9)
}

func TestGreedy_NormalizesWeights(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	weights := map[string]float64{"A": 0.5, "B": 0.5000001}
	prices := map[string]float64{"A": 1, "B": 1}

	alloc, err := da.Greedy(weights, prices, 1000)
	require.NoError(t, err)
	checkInvariants(t, alloc, weights, prices, 1000)
	assert.Equal(t, 1000, alloc.Shares["A"]+alloc.Shares["B"])
}

func TestGreedy_BudgetBelowCheapestPrice(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	alloc, err := da.Greedy(map[string]float64{"A": 0.5, "B": 0.5}, map[string]float64{"A": 50, "B": 80}, 10)
	require.Error(t, err)

	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, 50.0, allocErr.MinPrice)
	assert.Equal(t, 10.0, allocErr.Budget)

	require.NotNil(t, alloc)
	assert.Empty(t, alloc.Shares)
	assert.Equal(t, 10.0, alloc.Leftover)
}

func TestGreedy_InvalidInputs(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	tests := []struct {
		name    string
		weights map[string]float64
		prices  map[string]float64
		budget  float64
	}{
		{"zero budget", map[string]float64{"A": 1}, map[string]float64{"A": 1}, 0},
		{"negative budget", map[string]float64{"A": 1}, map[string]float64{"A": 1}, -5},
		{"NaN budget", map[string]float64{"A": 1}, map[string]float64{"A": 1}, math.NaN()},
		{"negative weight", map[string]float64{"A": 1.2, "B": -0.2}, map[string]float64{"A": 1, "B": 1}, 100},
		{"missing price", map[string]float64{"A": 1}, map[string]float64{}, 100},
		{"zero price", map[string]float64{"A": 1}, map[string]float64{"A": 0}, 100},
		{"no positive weight", map[string]float64{"A": 0}, map[string]float64{"A": 1}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc, err := da.Greedy(tt.weights, tt.prices, tt.budget)
			require.Error(t, err)

			var allocErr *AllocationError
			assert.True(t, errors.As(err, &allocErr))
			assert.Empty(t, alloc.Shares)
		})
	}
}

func TestGreedy_ManyAssetsInvariants(t *testing.T) {
	da := NewDiscreteAllocator(zerolog.Nop())

	weights := map[string]float64{"A": 0.13, "B": 0.27, "C": 0.05, "D": 0.35, "E": 0.2}
	prices := map[string]float64{"A": 17.3, "B": 112.9, "C": 3.1, "D": 250.0, "E": 41.7}

	for _, budget := range []float64{300, 1234.56, 10000, 987654.32} {
		alloc, err := da.Greedy(weights, prices, budget)
		require.NoError(t, err)
		checkInvariants(t, alloc, weights, prices, budget)
	}
}
