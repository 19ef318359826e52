package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EfficientSemivariance optimizes against downside risk only.
//
// With B = (R - benchmark) / √T, the annualized semivariance of w is
// freq · Σ_t min(B_t w, 0)². Introducing one downside variable d_t per period,
//
//	minimize   freq · Σ d_t²
//	subject to d_t ≥ -B_t w, d_t ≥ 0
//
// is a convex QP whose optimum equals the portfolio semivariance.
type EfficientSemivariance struct {
	tickers   []string
	mu        []float64
	returns   *mat.Dense // T x k
	bounds    Bounds
	solver    Solver
	benchmark float64
	frequency int
	log       zerolog.Logger
}

// NewEfficientSemivariance creates a semivariance optimizer. returns holds one
// column per ticker, in tickers order.
func NewEfficientSemivariance(expectedReturns map[string]float64, returns *mat.Dense, tickers []string, opts ...Option) (*EfficientSemivariance, error) {
	mu, err := orderedReturns(expectedReturns, tickers)
	if err != nil {
		return nil, err
	}
	if returns == nil {
		return nil, fmt.Errorf("returns matrix is required")
	}
	rows, cols := returns.Dims()
	if cols != len(tickers) {
		return nil, fmt.Errorf("returns matrix has %d columns, expected %d", cols, len(tickers))
	}
	if rows < 1 {
		return nil, &InsufficientDataError{Observations: rows + 1}
	}

	o, err := buildOptions(len(tickers), opts)
	if err != nil {
		return nil, err
	}

	return &EfficientSemivariance{
		tickers:   append([]string(nil), tickers...),
		mu:        mu,
		returns:   returns,
		bounds:    *o.bounds,
		solver:    o.solver,
		benchmark: o.benchmark,
		frequency: o.frequency,
		log:       o.log.With().Str("component", "efficient_semivariance").Logger(),
	}, nil
}

// Optimize dispatches on objective. Targets are taken by absolute value.
func (es *EfficientSemivariance) Optimize(ctx context.Context, objective Objective, target *float64) (WeightVector, error) {
	switch objective {
	case ObjectiveMinSemivariance:
		return es.MinSemivariance(ctx)
	case ObjectiveSemivarianceEfficientReturn:
		if target == nil {
			return nil, fmt.Errorf("target return required for %s", objective)
		}
		return es.EfficientReturn(ctx, *target)
	case ObjectiveSemivarianceEfficientRisk:
		if target == nil {
			return nil, fmt.Errorf("target semideviation required for %s", objective)
		}
		return es.EfficientRisk(ctx, *target)
	default:
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}
}

// MinSemivariance returns the portfolio with the lowest downside deviation.
func (es *EfficientSemivariance) MinSemivariance(ctx context.Context) (WeightVector, error) {
	w, err := es.minSemivariance(ctx, nil)
	if err != nil {
		return nil, optimizationFailure(ObjectiveMinSemivariance, "", err)
	}
	return sliceToWeights(w, es.tickers), nil
}

// EfficientReturn minimizes semivariance for a required return |targetReturn|.
func (es *EfficientSemivariance) EfficientReturn(ctx context.Context, targetReturn float64) (WeightVector, error) {
	target := math.Abs(targetReturn)
	if maxRet := maxAchievableReturn(es.mu, es.bounds); target > maxRet+1e-12 {
		return nil, optimizationFailure(ObjectiveSemivarianceEfficientReturn,
			fmt.Sprintf("target return %.4f exceeds maximum achievable return %.4f", target, maxRet), ErrInfeasible)
	}

	w, err := es.minSemivariance(ctx, &target)
	if err != nil {
		return nil, optimizationFailure(ObjectiveSemivarianceEfficientReturn, "", err)
	}
	return sliceToWeights(w, es.tickers), nil
}

// EfficientRisk maximizes return with semideviation at most |targetSemideviation|.
func (es *EfficientSemivariance) EfficientRisk(ctx context.Context, targetSemideviation float64) (WeightVector, error) {
	target := math.Abs(targetSemideviation)

	minW, err := es.minSemivariance(ctx, nil)
	if err != nil {
		return nil, optimizationFailure(ObjectiveSemivarianceEfficientRisk, "", err)
	}
	minRisk := es.semideviation(minW)
	if target < minRisk-1e-9 {
		return nil, optimizationFailure(ObjectiveSemivarianceEfficientRisk,
			fmt.Sprintf("target semideviation %.4f is below minimum achievable %.4f", target, minRisk), ErrInfeasible)
	}

	eval := func(ctx context.Context, r float64) ([]float64, float64, error) {
		w, err := es.minSemivariance(ctx, &r)
		if err != nil {
			return nil, 0, err
		}
		return w, es.semideviation(w), nil
	}

	maxW := maxReturnWeights(es.mu, es.bounds)
	w, err := maximizeReturnUnderRisk(ctx, target,
		frontierPoint{weights: minW, ret: floats.Dot(minW, es.mu), risk: minRisk},
		frontierPoint{weights: maxW, ret: floats.Dot(maxW, es.mu), risk: es.semideviation(maxW)},
		eval)
	if err != nil {
		return nil, optimizationFailure(ObjectiveSemivarianceEfficientRisk, "", err)
	}

	es.log.Debug().
		Float64("target", target).
		Float64("achieved", es.semideviation(w)).
		Msg("Semivariance efficient risk solved")

	return sliceToWeights(w, es.tickers), nil
}

// Performance returns expected return, semideviation and Sortino ratio of w.
func (es *EfficientSemivariance) Performance(w WeightVector, riskFreeRate float64) Performance {
	return semivariancePerformance(weightsToSlice(w, es.tickers), es.mu, es.returns, es.benchmark, es.frequency, riskFreeRate)
}

func (es *EfficientSemivariance) semideviation(w []float64) float64 {
	return semivariancePerformance(w, es.mu, es.returns, es.benchmark, es.frequency, 0).Risk
}

// minSemivariance solves the downside QP over variables (w, d), optionally
// with μᵀw ≥ target.
func (es *EfficientSemivariance) minSemivariance(ctx context.Context, targetReturn *float64) ([]float64, error) {
	periods, k := es.returns.Dims()
	dim := k + periods
	scale := 1 / math.Sqrt(float64(periods))

	p := mat.NewSymDense(dim, nil)
	for t := 0; t < periods; t++ {
		p.SetSym(k+t, k+t, 2*float64(es.frequency))
	}

	eq := newRowBuilder(dim)
	addBudget(eq, 0, k)

	ineq := newRowBuilder(dim)
	for t := 0; t < periods; t++ {
		// -B_t w - d_t ≤ 0
		row := make([]float64, dim)
		for j := 0; j < k; j++ {
			row[j] = -(es.returns.At(t, j) - es.benchmark) * scale
		}
		row[k+t] = -1
		ineq.add(row, 0, false)

		nonNeg := make([]float64, dim)
		nonNeg[k+t] = -1
		ineq.add(nonNeg, 0, false)
	}
	addWeightBounds(ineq, 0, es.bounds)
	if targetReturn != nil {
		row := make([]float64, dim)
		floats.ScaleTo(row[:k], -1, es.mu)
		ineq.add(row, -*targetReturn, false)
	}
	if ineq.infeasible {
		return nil, ErrInfeasible
	}

	a, b := eq.dense()
	g, h := ineq.dense()
	sol, err := es.solver.Solve(ctx, &QuadraticProgram{P: p, Q: make([]float64, dim), A: a, B: b, G: g, H: h})
	if err != nil {
		return nil, err
	}

	es.log.Debug().
		Int("periods", periods).
		Int("iterations", sol.Iterations).
		Msg("Semivariance program solved")

	return polishWeights(sol.X[:k], es.bounds), nil
}
