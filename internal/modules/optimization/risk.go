package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RiskModelBuilder builds annualized covariance matrices from periodic returns.
type RiskModelBuilder struct {
	frequency int
	log       zerolog.Logger
}

// NewRiskModelBuilder creates a new risk model builder.
func NewRiskModelBuilder(frequency int, log zerolog.Logger) *RiskModelBuilder {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}
	return &RiskModelBuilder{
		frequency: frequency,
		log:       log.With().Str("component", "risk_model").Logger(),
	}
}

// SampleCovariance returns the sample covariance (N-1 denominator) of the
// return columns, scaled by the frequency. A single return row yields an
// all-NaN matrix, which the mean-variance optimizer rejects as degenerate.
func (rb *RiskModelBuilder) SampleCovariance(returns *mat.Dense) (*mat.SymDense, error) {
	rows, cols := returns.Dims()
	if rows < 1 {
		return nil, &InsufficientDataError{Observations: rows + 1}
	}

	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, returns, nil)
	cov.ScaleSym(float64(rb.frequency), cov)

	return cov, nil
}

// Correlation converts a covariance matrix into a correlation matrix.
// Zero-variance assets get zero correlation with everything but themselves.
func Correlation(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			vi, vj := cov.At(i, i), cov.At(j, j)
			if vi > 0 && vj > 0 {
				corr.SetSym(i, j, cov.At(i, j)/math.Sqrt(vi*vj))
			}
		}
	}
	return corr
}

// checkCovariance rejects matrices no optimizer can use: non-finite entries,
// negative variances, asymmetry, or no variance at all.
func checkCovariance(cov mat.Symmetric) error {
	n := cov.SymmetricDim()
	var trace, scale float64
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("covariance has non-finite variance for asset %d", i)
		}
		if v < 0 {
			return fmt.Errorf("covariance has negative variance for asset %d", i)
		}
		trace += v
		scale = math.Max(scale, v)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := cov.At(i, j), cov.At(j, i)
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return fmt.Errorf("covariance has non-finite entry at (%d, %d)", i, j)
			}
			if math.Abs(a-b) > 1e-10*(1+scale) {
				return fmt.Errorf("covariance is not symmetric at (%d, %d)", i, j)
			}
		}
	}

	if trace <= 1e-14 {
		return fmt.Errorf("covariance is degenerate: assets have zero variance")
	}

	return nil
}
