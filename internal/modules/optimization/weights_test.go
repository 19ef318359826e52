package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanWeights(t *testing.T) {
	tests := []struct {
		name   string
		in     WeightVector
		cutoff float64
		want   WeightVector
	}{
		{
			name:   "already clean",
			in:     WeightVector{"A": 0.6, "B": 0.4},
			cutoff: 1e-4,
			want:   WeightVector{"A": 0.6, "B": 0.4},
		},
		{
			name:   "dust zeroed and rescaled",
			in:     WeightVector{"A": 0.5, "B": 0.49995, "C": 0.00005},
			cutoff: 1e-4,
			want:   WeightVector{"A": 0.5 / 0.99995, "B": 0.49995 / 0.99995, "C": 0},
		},
		{
			name:   "negative dust",
			in:     WeightVector{"A": 1.00001, "B": -0.00001},
			cutoff: 1e-4,
			want:   WeightVector{"A": 1, "B": 0},
		},
		{
			name:   "all zero",
			in:     WeightVector{"A": 0, "B": 0},
			cutoff: 1e-4,
			want:   WeightVector{"A": 0, "B": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanWeights(tt.in, tt.cutoff)
			assert.Len(t, got, len(tt.want))
			for ticker, w := range tt.want {
				assert.InDelta(t, w, got[ticker], 1e-12, ticker)
			}
		})
	}
}

func TestCleanWeights_DoesNotModifyInput(t *testing.T) {
	in := WeightVector{"A": 0.99999, "B": 0.00001}
	_ = CleanWeights(in, 1e-4)
	assert.Equal(t, WeightVector{"A": 0.99999, "B": 0.00001}, in)
}

func TestCleanWeights_Idempotent(t *testing.T) {
	inputs := []WeightVector{
		{"A": 0.333333, "B": 0.333333, "C": 0.333334},
		{"A": 0.7, "B": 0.29995, "C": 0.00005},
		{"A": 0.12345678, "B": 0.87654321},
		{"A": 0.00009, "B": 0.00009, "C": 0.99982},
	}

	for _, in := range inputs {
		once := CleanWeights(in, 1e-4)
		twice := CleanWeights(once, 1e-4)
		assert.Equal(t, once, twice)
		assert.InDelta(t, 1.0, once.Sum(), 1e-12)
	}
}

func TestNonZero(t *testing.T) {
	got := NonZero(WeightVector{"A": 0.5, "B": 0, "C": 0.5})
	assert.Equal(t, WeightVector{"A": 0.5, "C": 0.5}, got)
}

func TestPolishWeights(t *testing.T) {
	b := UniformBounds(3, 0, 0.5)

	got := polishWeights([]float64{0.55, 0.5, -1e-10}, b)
	assert.InDelta(t, 0.5, got[0], 1e-12)
	assert.InDelta(t, 0.5, got[1], 1e-12)
	assert.Equal(t, 0.0, got[2])

	got = polishWeights([]float64{0.3, 0.3, 0.3}, b)
	for _, v := range got {
		assert.InDelta(t, 1.0/3, v, 1e-12)
	}
}

func TestWeightVector(t *testing.T) {
	w := WeightVector{"B": 0.25, "A": 0.75}
	assert.Equal(t, []string{"A", "B"}, w.Tickers())
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
}
