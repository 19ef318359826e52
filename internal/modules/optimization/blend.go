package optimization

import "math"

// blendTargets combines two predecessor metrics into one target. Each value
// is weighted by its own magnitude, |x| / (|a| + |b|). A failed predecessor is
// left out; with both failed, or both zero, the target is 0.
func blendTargets(a float64, aOK bool, b float64, bOK bool) float64 {
	switch {
	case aOK && bOK:
		total := math.Abs(a) + math.Abs(b)
		if total == 0 {
			return 0
		}
		return a*math.Abs(a)/total + b*math.Abs(b)/total
	case aOK:
		return a
	case bOK:
		return b
	default:
		return 0
	}
}

// BlendedTargetReturn derives the semivariance efficient-return target from
// the max-Sharpe and min-volatility expected returns.
func BlendedTargetReturn(maxSharpe, minVolatility Result) float64 {
	return blendTargets(
		maxSharpe.Performance.ExpectedReturn, maxSharpe.Success,
		minVolatility.Performance.ExpectedReturn, minVolatility.Success,
	)
}

// BlendedTargetRisk derives the semivariance efficient-risk target from the
// max-Sharpe volatility and the min-semivariance semideviation.
func BlendedTargetRisk(maxSharpe, minSemivariance Result) float64 {
	return blendTargets(
		maxSharpe.Performance.Risk, maxSharpe.Success,
		minSemivariance.Performance.Risk, minSemivariance.Success,
	)
}
