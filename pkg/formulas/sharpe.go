package formulas

import (
	"math"
)

// SharpeRatio returns (annualReturn - riskFreeRate) / annualVolatility.
// Zero volatility yields 0 rather than an infinite ratio.
func SharpeRatio(annualReturn, annualVolatility, riskFreeRate float64) float64 {
	if annualVolatility == 0 || math.IsNaN(annualVolatility) {
		return 0
	}
	return (annualReturn - riskFreeRate) / annualVolatility
}

// SortinoRatio is SharpeRatio with the semideviation as the risk term.
func SortinoRatio(annualReturn, semiDeviation, riskFreeRate float64) float64 {
	return SharpeRatio(annualReturn, semiDeviation, riskFreeRate)
}

// SemiVariance calculates the annualized semivariance of periodic returns
// against a benchmark:
//
//	sum(min(r - benchmark, 0)^2) / len(r) * periodsPerYear
//
// Every period counts in the denominator, not just the downside ones.
func SemiVariance(returns []float64, benchmark float64, periodsPerYear int) float64 {
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		if d := r - benchmark; d < 0 {
			sum += d * d
		}
	}

	return sum / float64(len(returns)) * float64(periodsPerYear)
}

// SemiDeviation is the square root of SemiVariance.
func SemiDeviation(returns []float64, benchmark float64, periodsPerYear int) float64 {
	return math.Sqrt(SemiVariance(returns, benchmark, periodsPerYear))
}
