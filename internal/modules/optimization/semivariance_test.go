package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Asset A swings both ways; B is a small, mostly positive hedge.
var semivarianceReturns = []float64{
	0.020, 0.004,
	-0.015, 0.006,
	0.030, -0.003,
	-0.020, 0.008,
	0.010, -0.002,
	0.025, -0.004,
	-0.010, 0.007,
	0.005, 0.001,
}

func newTestSemivariance(t *testing.T, opts ...Option) *EfficientSemivariance {
	t.Helper()
	returns := mat.NewDense(8, 2, append([]float64(nil), semivarianceReturns...))
	mu := map[string]float64{"A": 0.12, "B": 0.06}
	es, err := NewEfficientSemivariance(mu, returns, twoAssets, opts...)
	require.NoError(t, err)
	return es
}

// gridScan evaluates the two-asset line w_A ∈ [0, 1] in 0.001 steps.
func gridScan(es *EfficientSemivariance, fn func(wA float64, p Performance)) {
	for i := 0; i <= 1000; i++ {
		wA := float64(i) / 1000
		fn(wA, es.Performance(WeightVector{"A": wA, "B": 1 - wA}, 0))
	}
}

func TestNewEfficientSemivariance_Validation(t *testing.T) {
	mu := map[string]float64{"A": 0.1, "B": 0.1}

	_, err := NewEfficientSemivariance(mu, nil, twoAssets)
	assert.Error(t, err)

	_, err = NewEfficientSemivariance(mu, mat.NewDense(3, 3, nil), twoAssets)
	assert.Error(t, err, "column count mismatch")

	_, err = NewEfficientSemivariance(map[string]float64{"A": 0.1}, mat.NewDense(3, 2, nil), twoAssets)
	assert.Error(t, err, "missing expected return")
}

func TestEfficientSemivariance_MinSemivariance(t *testing.T) {
	es := newTestSemivariance(t)

	w, err := es.MinSemivariance(context.Background())
	require.NoError(t, err)
	assertFullyInvested(t, w)

	got := es.Performance(w, 0).Risk
	gridScan(es, func(wA float64, p Performance) {
		assert.LessOrEqual(t, got, p.Risk+1e-6, "grid point w_A=%.3f beats the optimum", wA)
	})
}

func TestEfficientSemivariance_EfficientReturn(t *testing.T) {
	es := newTestSemivariance(t)
	const target = 0.10

	w, err := es.EfficientReturn(context.Background(), target)
	require.NoError(t, err)
	assertFullyInvested(t, w)

	perf := es.Performance(w, 0)
	assert.GreaterOrEqual(t, perf.ExpectedReturn, target-1e-7)

	gridScan(es, func(wA float64, p Performance) {
		if p.ExpectedReturn >= target {
			assert.LessOrEqual(t, perf.Risk, p.Risk+1e-6, "grid point w_A=%.3f beats the optimum", wA)
		}
	})
}

func TestEfficientSemivariance_EfficientReturnUsesMagnitude(t *testing.T) {
	es := newTestSemivariance(t)

	pos, err := es.EfficientReturn(context.Background(), 0.10)
	require.NoError(t, err)
	neg, err := es.EfficientReturn(context.Background(), -0.10)
	require.NoError(t, err)

	assert.InDelta(t, pos["A"], neg["A"], 1e-6)
	assert.InDelta(t, pos["B"], neg["B"], 1e-6)
}

func TestEfficientSemivariance_EfficientReturnAboveMaximum(t *testing.T) {
	es := newTestSemivariance(t)

	_, err := es.EfficientReturn(context.Background(), 0.13)
	require.Error(t, err)
	assert.True(t, IsOptimizationError(err))
	assert.True(t, errors.Is(err, ErrInfeasible))
}

func TestEfficientSemivariance_EfficientRisk(t *testing.T) {
	es := newTestSemivariance(t)
	ctx := context.Background()

	minW, err := es.MinSemivariance(ctx)
	require.NoError(t, err)
	maxRisk := es.Performance(WeightVector{"A": 1, "B": 0}, 0).Risk
	minRisk := es.Performance(minW, 0).Risk
	require.Less(t, minRisk, maxRisk)

	target := 0.5 * (minRisk + maxRisk)
	w, err := es.EfficientRisk(ctx, target)
	require.NoError(t, err)
	assertFullyInvested(t, w)

	perf := es.Performance(w, 0)
	assert.LessOrEqual(t, perf.Risk, target+1e-7)

	gridScan(es, func(wA float64, p Performance) {
		if p.Risk <= target {
			assert.GreaterOrEqual(t, perf.ExpectedReturn, p.ExpectedReturn-1e-6, "grid point w_A=%.3f beats the optimum", wA)
		}
	})

	t.Run("negative target uses magnitude", func(t *testing.T) {
		neg, err := es.EfficientRisk(ctx, -target)
		require.NoError(t, err)
		assert.InDelta(t, w["A"], neg["A"], 1e-6)
	})

	t.Run("target above maximum risk", func(t *testing.T) {
		w, err := es.EfficientRisk(ctx, maxRisk+0.1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, w["A"])
	})

	t.Run("target below minimum", func(t *testing.T) {
		// Both assets fall in the same periods, so no mix is downside-free.
		returns := mat.NewDense(4, 2, []float64{
			-0.01, -0.02,
			0.02, 0.01,
			-0.03, -0.01,
			0.01, 0.03,
		})
		falling, err := NewEfficientSemivariance(map[string]float64{"A": 0.12, "B": 0.06}, returns, twoAssets)
		require.NoError(t, err)

		floorW, err := falling.MinSemivariance(ctx)
		require.NoError(t, err)
		floor := falling.Performance(floorW, 0).Risk
		require.Greater(t, floor, 0.0)

		_, err = falling.EfficientRisk(ctx, floor/2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInfeasible))
	})
}

func TestEfficientSemivariance_NoDownside(t *testing.T) {
	// Every period is non-negative, so any portfolio has zero semideviation.
	returns := mat.NewDense(3, 2, []float64{0.01, 0.02, 0.0, 0.01, 0.02, 0.0})
	es, err := NewEfficientSemivariance(map[string]float64{"A": 0.05, "B": 0.04}, returns, twoAssets)
	require.NoError(t, err)

	w, err := es.MinSemivariance(context.Background())
	require.NoError(t, err)
	assertFullyInvested(t, w)
	assert.InDelta(t, 0.0, es.Performance(w, 0).Risk, 1e-9)
}

func TestEfficientSemivariance_Benchmark(t *testing.T) {
	es := newTestSemivariance(t, WithBenchmark(0.05))

	// Every period falls short of a 5% benchmark.
	perf := es.Performance(WeightVector{"A": 0, "B": 1}, 0)
	assert.Greater(t, perf.Risk, 0.0)
	assert.False(t, math.IsNaN(perf.Ratio))
}

func TestEfficientSemivariance_Optimize(t *testing.T) {
	es := newTestSemivariance(t)
	ctx := context.Background()

	_, err := es.Optimize(ctx, ObjectiveSemivarianceEfficientReturn, nil)
	assert.Error(t, err)
	assert.False(t, IsOptimizationError(err))

	target := 0.08
	w, err := es.Optimize(ctx, ObjectiveSemivarianceEfficientReturn, &target)
	require.NoError(t, err)
	assertFullyInvested(t, w)

	_, err = es.Optimize(ctx, ObjectiveMaxSharpe, nil)
	assert.Error(t, err)
}
