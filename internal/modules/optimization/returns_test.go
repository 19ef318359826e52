package optimization

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyOf(closes map[string][]float64, tickers ...string) *domain.PriceHistory {
	n := len(closes[tickers[0]])
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	h := domain.NewPriceHistory(tickers, dates)
	for _, t := range tickers {
		copy(h.Closes[t], closes[t])
	}
	return h
}

func TestEstimator_MeanReturnsAndCovariance(t *testing.T) {
	// A returns: +10%, -10%. B returns: 0%, +10%.
	h := historyOf(map[string][]float64{
		"A": {100, 110, 99},
		"B": {50, 50, 55},
	}, "A", "B")

	est, err := NewEstimator(EstimatorConfig{}, zerolog.Nop()).Estimate(h)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, est.Tickers)
	assert.Equal(t, 3, est.Observations)
	assert.InDelta(t, 0.0, est.ExpectedReturns["A"], 1e-12)
	assert.InDelta(t, 0.05*252, est.ExpectedReturns["B"], 1e-9)

	assert.InDelta(t, 0.02*252, est.Covariance.At(0, 0), 1e-9)
	assert.InDelta(t, 0.005*252, est.Covariance.At(1, 1), 1e-9)
	assert.InDelta(t, -0.01*252, est.Covariance.At(0, 1), 1e-9)
	assert.Equal(t, est.Covariance.At(0, 1), est.Covariance.At(1, 0))

	rows, cols := est.Returns.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.InDelta(t, 0.1, est.Returns.At(0, 0), 1e-12)

	assert.Equal(t, map[string]float64{"A": 99, "B": 55}, est.LatestPrices)
}

func TestEstimator_ReturnsMethods(t *testing.T) {
	h := historyOf(map[string][]float64{"A": {100, 110, 99}}, "A")

	compounded, err := NewEstimator(EstimatorConfig{Method: ReturnsCompounded}, zerolog.Nop()).ExpectedReturns(h)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(0.99, 126)-1, compounded["A"], 1e-9)

	logged, err := NewEstimator(EstimatorConfig{Method: ReturnsLog, Frequency: 12}, zerolog.Nop()).ExpectedReturns(h)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.99)/2*12, logged["A"], 1e-9)

	_, err = NewEstimator(EstimatorConfig{Method: "median"}, zerolog.Nop()).ExpectedReturns(h)
	assert.Error(t, err)
}

func TestEstimator_ForwardFillsAndDropsLeadingRows(t *testing.T) {
	nan := math.NaN()
	h := historyOf(map[string][]float64{
		"A": {100, 101, nan, 103, 104},
		"B": {nan, 20, 21, 22, 23},
	}, "A", "B")

	est, err := NewEstimator(EstimatorConfig{}, zerolog.Nop()).Estimate(h)
	require.NoError(t, err)

	// Row 0 is dropped because B has not started; A's gap carries 101 forward.
	assert.Equal(t, 4, est.Observations)
	assert.InDelta(t, 0.0, est.Returns.At(0, 0), 1e-12)
	assert.InDelta(t, 103.0/101-1, est.Returns.At(1, 0), 1e-12)
}

func TestEstimator_InsufficientData(t *testing.T) {
	nan := math.NaN()
	est := NewEstimator(EstimatorConfig{}, zerolog.Nop())

	tests := []struct {
		name  string
		h     *domain.PriceHistory
		asset string
	}{
		{
			name:  "single valid close",
			h:     historyOf(map[string][]float64{"A": {100, 101, 102}, "B": {nan, nan, 5}}, "A", "B"),
			asset: "B",
		},
		{
			name:  "late starter with one close",
			h:     historyOf(map[string][]float64{"A": {100, 101, 102}, "B": {nan, 4, 5}, "C": {nan, nan, 6}}, "A", "B", "C"),
			asset: "C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := est.Estimate(tt.h)
			require.Error(t, err)

			var ide *InsufficientDataError
			require.True(t, errors.As(err, &ide))
			assert.Equal(t, tt.asset, ide.Asset)
		})
	}

	_, err := est.Estimate(nil)
	assert.Error(t, err)
}

func TestEstimator_ConstantPricesGiveZeroCovariance(t *testing.T) {
	h := historyOf(map[string][]float64{"A": {10, 10, 10, 10}, "B": {20, 20, 20, 20}}, "A", "B")

	cov, err := NewEstimator(EstimatorConfig{}, zerolog.Nop()).Covariance(h)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cov.At(0, 0))
	assert.Error(t, checkCovariance(cov))
}
