package optimization

import (
	"math"

	"github.com/aristath/frontier/pkg/formulas"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// portfolioVariance returns wᵀΣw.
func portfolioVariance(w []float64, cov mat.Symmetric) float64 {
	x := mat.NewVecDense(len(w), w)
	return mat.Inner(x, cov, x)
}

// meanVariancePerformance returns (μᵀw, √(wᵀΣw), Sharpe).
func meanVariancePerformance(w, mu []float64, cov mat.Symmetric, riskFreeRate float64) Performance {
	ret := floats.Dot(w, mu)
	vol := math.Sqrt(math.Max(0, portfolioVariance(w, cov)))
	return Performance{
		ExpectedReturn: ret,
		Risk:           vol,
		Ratio:          formulas.SharpeRatio(ret, vol, riskFreeRate),
	}
}

// portfolioReturns returns the per-period portfolio returns R w.
func portfolioReturns(returns *mat.Dense, w []float64) []float64 {
	rows, _ := returns.Dims()
	var out mat.VecDense
	out.MulVec(returns, mat.NewVecDense(len(w), w))
	res := make([]float64, rows)
	for i := 0; i < rows; i++ {
		res[i] = out.AtVec(i)
	}
	return res
}

// semivariancePerformance returns (μᵀw, semideviation, Sortino).
func semivariancePerformance(w, mu []float64, returns *mat.Dense, benchmark float64, frequency int, riskFreeRate float64) Performance {
	ret := floats.Dot(w, mu)
	semidev := formulas.SemiDeviation(portfolioReturns(returns, w), benchmark, frequency)
	return Performance{
		ExpectedReturn: ret,
		Risk:           semidev,
		Ratio:          formulas.SortinoRatio(ret, semidev, riskFreeRate),
	}
}

func weightsToSlice(w WeightVector, tickers []string) []float64 {
	out := make([]float64, len(tickers))
	for i, t := range tickers {
		out[i] = w[t]
	}
	return out
}

func sliceToWeights(x []float64, tickers []string) WeightVector {
	w := make(WeightVector, len(tickers))
	for i, t := range tickers {
		w[t] = x[i]
	}
	return w
}
