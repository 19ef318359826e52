package optimization

import (
	"math"
)

// DefaultWeightCutoff is the materiality threshold below which a weight is
// treated as exactly zero.
const DefaultWeightCutoff = 1e-4

// CleanWeights zeroes weights whose magnitude is below cutoff and rescales
// the rest to sum to 1. The input is not modified.
//
// The result is a fixed point: cleaning it again returns an identical map.
func CleanWeights(w WeightVector, cutoff float64) WeightVector {
	out := make(WeightVector, len(w))
	for t, v := range w {
		out[t] = v
	}

	for pass := 0; pass <= len(out); pass++ {
		changed := false
		var sum float64
		for t, v := range out {
			if v != 0 && math.Abs(v) < cutoff {
				out[t] = 0
				changed = true
				continue
			}
			sum += out[t]
		}

		if sum > 0 && math.Abs(sum-1) > 1e-12 {
			for t, v := range out {
				out[t] = v / sum
			}
			changed = true
		}

		if !changed {
			break
		}
	}

	return out
}

// NonZero drops zero entries, for reporting.
func NonZero(w WeightVector) WeightVector {
	out := make(WeightVector, len(w))
	for t, v := range w {
		if v != 0 {
			out[t] = v
		}
	}
	return out
}

// polishWeights clips solver output into the bounds, zeroes numerical dust and
// rescales to a fully invested portfolio.
func polishWeights(x []float64, b Bounds) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		v = math.Max(b.Lower[i], math.Min(b.Upper[i], v))
		if v < 1e-9 && b.Lower[i] == 0 {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}
