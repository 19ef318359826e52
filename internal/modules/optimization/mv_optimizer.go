package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type optimizerOptions struct {
	bounds    *Bounds
	solver    Solver
	log       zerolog.Logger
	frequency int
	benchmark float64
}

// Option configures an optimizer.
type Option func(*optimizerOptions)

// WithBounds overrides the default long-only [0, 1] bounds.
func WithBounds(b Bounds) Option {
	return func(o *optimizerOptions) { o.bounds = &b }
}

// WithSolver swaps the QP backend.
func WithSolver(s Solver) Option {
	return func(o *optimizerOptions) { o.solver = s }
}

// WithLogger sets the logger used by the optimizer and its default solver.
func WithLogger(log zerolog.Logger) Option {
	return func(o *optimizerOptions) { o.log = log }
}

// WithFrequency sets the periods per year used to annualize semivariance.
func WithFrequency(f int) Option {
	return func(o *optimizerOptions) { o.frequency = f }
}

// WithBenchmark sets the per-period return below which a period counts as downside.
func WithBenchmark(b float64) Option {
	return func(o *optimizerOptions) { o.benchmark = b }
}

func buildOptions(n int, opts []Option) (optimizerOptions, error) {
	o := optimizerOptions{log: zerolog.Nop(), frequency: DefaultFrequency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bounds == nil {
		b := UniformBounds(n, DefaultMinWeight, DefaultMaxWeight)
		o.bounds = &b
	}
	if err := o.bounds.Validate(n); err != nil {
		return o, err
	}
	if o.solver == nil {
		o.solver = NewInteriorPointSolver(DefaultSolverSettings(), o.log)
	}
	if o.frequency <= 0 {
		o.frequency = DefaultFrequency
	}
	return o, nil
}

func orderedReturns(expectedReturns map[string]float64, tickers []string) ([]float64, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers provided")
	}
	mu := make([]float64, len(tickers))
	for i, t := range tickers {
		r, ok := expectedReturns[t]
		if !ok {
			return nil, fmt.Errorf("missing expected return for %s", t)
		}
		mu[i] = r
	}
	return mu, nil
}

// EfficientFrontier performs mean-variance (Markowitz) optimization.
//
// Mathematical formulation:
//   - min_volatility: minimize wᵀΣw
//   - max_sharpe: maximize (μᵀw - r_f) / √(wᵀΣw), solved through the Schaible
//     substitution y = κw, which turns it into a convex QP
//   - efficient_return: minimize wᵀΣw subject to μᵀw ≥ target
//   - efficient_risk: maximize μᵀw subject to √(wᵀΣw) ≤ target
//
// Constraints:
//   - Σw = 1 (weights sum to 1)
//   - lower_i ≤ w_i ≤ upper_i
type EfficientFrontier struct {
	tickers []string
	mu      []float64
	cov     *mat.SymDense
	bounds  Bounds
	solver  Solver
	log     zerolog.Logger
}

// NewEfficientFrontier creates a mean-variance optimizer over tickers.
// cov is indexed in the same order as tickers.
func NewEfficientFrontier(expectedReturns map[string]float64, cov *mat.SymDense, tickers []string, opts ...Option) (*EfficientFrontier, error) {
	mu, err := orderedReturns(expectedReturns, tickers)
	if err != nil {
		return nil, err
	}
	if cov == nil || cov.SymmetricDim() != len(tickers) {
		return nil, fmt.Errorf("covariance matrix size doesn't match %d tickers", len(tickers))
	}

	o, err := buildOptions(len(tickers), opts)
	if err != nil {
		return nil, err
	}

	return &EfficientFrontier{
		tickers: append([]string(nil), tickers...),
		mu:      mu,
		cov:     cov,
		bounds:  *o.bounds,
		solver:  o.solver,
		log:     o.log.With().Str("component", "efficient_frontier").Logger(),
	}, nil
}

// Optimize dispatches on objective. target is required for efficient_return
// (a return) and efficient_risk (a volatility).
func (ef *EfficientFrontier) Optimize(ctx context.Context, objective Objective, target *float64, riskFreeRate float64) (WeightVector, error) {
	switch objective {
	case ObjectiveMaxSharpe:
		return ef.MaxSharpe(ctx, riskFreeRate)
	case ObjectiveMinVolatility:
		return ef.MinVolatility(ctx)
	case ObjectiveEfficientReturn:
		if target == nil {
			return nil, fmt.Errorf("target return required for %s", objective)
		}
		return ef.EfficientReturn(ctx, *target)
	case ObjectiveEfficientRisk:
		if target == nil {
			return nil, fmt.Errorf("target volatility required for %s", objective)
		}
		return ef.EfficientRisk(ctx, *target)
	default:
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}
}

// MinVolatility returns the global minimum-variance portfolio.
func (ef *EfficientFrontier) MinVolatility(ctx context.Context) (WeightVector, error) {
	if err := checkCovariance(ef.cov); err != nil {
		return nil, optimizationFailure(ObjectiveMinVolatility, "", err)
	}

	x, err := ef.minVariance(ctx, nil)
	if err != nil {
		return nil, optimizationFailure(ObjectiveMinVolatility, "", err)
	}

	return sliceToWeights(x, ef.tickers), nil
}

// MaxSharpe returns the tangency portfolio for riskFreeRate.
func (ef *EfficientFrontier) MaxSharpe(ctx context.Context, riskFreeRate float64) (WeightVector, error) {
	if err := checkCovariance(ef.cov); err != nil {
		return nil, optimizationFailure(ObjectiveMaxSharpe, "", err)
	}

	n := len(ef.mu)
	excess := make([]float64, n)
	best := math.Inf(-1)
	for i, r := range ef.mu {
		excess[i] = r - riskFreeRate
		if ef.bounds.Upper[i] > 0 {
			best = math.Max(best, excess[i])
		}
	}
	if best <= 0 {
		return nil, optimizationFailure(ObjectiveMaxSharpe,
			fmt.Sprintf("at least one asset must have an expected return above the risk-free rate %.4f", riskFreeRate), nil)
	}

	// Variables: y (n), κ. minimize yᵀΣy
	// subject to (μ - r_f)ᵀy = 1, Σy = κ, lower·κ ≤ y ≤ upper·κ, κ ≥ 0.
	dim := n + 1
	p := mat.NewSymDense(dim, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			p.SetSym(i, j, 2*ef.cov.At(i, j))
		}
	}

	eq := newRowBuilder(dim)
	row := make([]float64, dim)
	copy(row, excess)
	eq.add(row, 1, true)
	row = make([]float64, dim)
	for i := 0; i < n; i++ {
		row[i] = 1
	}
	row[n] = -1
	eq.add(row, 0, true)

	ineq := newRowBuilder(dim)
	for i := 0; i < n; i++ {
		lo := make([]float64, dim)
		lo[i] = -1
		lo[n] = ef.bounds.Lower[i]
		ineq.add(lo, 0, false)

		if ef.bounds.Upper[i] < 1 {
			up := make([]float64, dim)
			up[i] = 1
			up[n] = -ef.bounds.Upper[i]
			ineq.add(up, 0, false)
		}
	}
	kappa := make([]float64, dim)
	kappa[n] = -1
	ineq.add(kappa, 0, false)

	a, b := eq.dense()
	g, h := ineq.dense()
	sol, err := ef.solver.Solve(ctx, &QuadraticProgram{P: p, Q: make([]float64, dim), A: a, B: b, G: g, H: h})
	if err != nil {
		return nil, optimizationFailure(ObjectiveMaxSharpe, "", err)
	}

	k := sol.X[n]
	if k <= 1e-12 {
		return nil, optimizationFailure(ObjectiveMaxSharpe, "scaling variable collapsed to zero", ErrNumerical)
	}

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = sol.X[i] / k
	}

	ef.log.Debug().Int("iterations", sol.Iterations).Msg("Max Sharpe solved")

	return sliceToWeights(polishWeights(w, ef.bounds), ef.tickers), nil
}

// EfficientReturn minimizes volatility for a required return.
func (ef *EfficientFrontier) EfficientReturn(ctx context.Context, targetReturn float64) (WeightVector, error) {
	if err := checkCovariance(ef.cov); err != nil {
		return nil, optimizationFailure(ObjectiveEfficientReturn, "", err)
	}

	if maxRet := maxAchievableReturn(ef.mu, ef.bounds); targetReturn > maxRet+1e-12 {
		return nil, optimizationFailure(ObjectiveEfficientReturn,
			fmt.Sprintf("target return %.4f exceeds maximum achievable return %.4f", targetReturn, maxRet), ErrInfeasible)
	}

	x, err := ef.minVariance(ctx, &targetReturn)
	if err != nil {
		return nil, optimizationFailure(ObjectiveEfficientReturn, "", err)
	}

	return sliceToWeights(x, ef.tickers), nil
}

// EfficientRisk maximizes return for a volatility ceiling.
func (ef *EfficientFrontier) EfficientRisk(ctx context.Context, targetVolatility float64) (WeightVector, error) {
	if err := checkCovariance(ef.cov); err != nil {
		return nil, optimizationFailure(ObjectiveEfficientRisk, "", err)
	}

	minW, err := ef.minVariance(ctx, nil)
	if err != nil {
		return nil, optimizationFailure(ObjectiveEfficientRisk, "", err)
	}
	minVol := math.Sqrt(math.Max(0, portfolioVariance(minW, ef.cov)))
	if targetVolatility < minVol-1e-9 {
		return nil, optimizationFailure(ObjectiveEfficientRisk,
			fmt.Sprintf("target volatility %.4f is below minimum achievable volatility %.4f", targetVolatility, minVol), ErrInfeasible)
	}

	eval := func(ctx context.Context, r float64) ([]float64, float64, error) {
		w, err := ef.minVariance(ctx, &r)
		if err != nil {
			return nil, 0, err
		}
		return w, math.Sqrt(math.Max(0, portfolioVariance(w, ef.cov))), nil
	}

	maxW := maxReturnWeights(ef.mu, ef.bounds)
	maxVol := math.Sqrt(math.Max(0, portfolioVariance(maxW, ef.cov)))
	w, err := maximizeReturnUnderRisk(ctx, targetVolatility,
		frontierPoint{weights: minW, ret: floats.Dot(minW, ef.mu), risk: minVol},
		frontierPoint{weights: maxW, ret: floats.Dot(maxW, ef.mu), risk: maxVol},
		eval)
	if err != nil {
		return nil, optimizationFailure(ObjectiveEfficientRisk, "", err)
	}

	return sliceToWeights(w, ef.tickers), nil
}

// Performance returns expected return, volatility and Sharpe ratio of w.
func (ef *EfficientFrontier) Performance(w WeightVector, riskFreeRate float64) Performance {
	return meanVariancePerformance(weightsToSlice(w, ef.tickers), ef.mu, ef.cov, riskFreeRate)
}

// minVariance solves min wᵀΣw over the bounded simplex, optionally with μᵀw ≥ target.
func (ef *EfficientFrontier) minVariance(ctx context.Context, targetReturn *float64) ([]float64, error) {
	n := len(ef.mu)
	p := mat.NewSymDense(n, nil)
	p.ScaleSym(2, ef.cov)

	eq := newRowBuilder(n)
	addBudget(eq, 0, n)

	ineq := newRowBuilder(n)
	addWeightBounds(ineq, 0, ef.bounds)
	if targetReturn != nil {
		row := make([]float64, n)
		floats.ScaleTo(row, -1, ef.mu)
		ineq.add(row, -*targetReturn, false)
	}
	if ineq.infeasible {
		return nil, ErrInfeasible
	}

	a, b := eq.dense()
	g, h := ineq.dense()
	sol, err := ef.solver.Solve(ctx, &QuadraticProgram{P: p, Q: make([]float64, n), A: a, B: b, G: g, H: h})
	if err != nil {
		return nil, err
	}

	return polishWeights(sol.X, ef.bounds), nil
}

// riskEvaluator solves the minimum-risk portfolio for a required return and
// reports its risk.
type riskEvaluator func(ctx context.Context, targetReturn float64) ([]float64, float64, error)

// frontierPoint is a portfolio with its return and risk.
type frontierPoint struct {
	weights []float64
	ret     float64
	risk    float64
}

// maximizeReturnUnderRisk finds the highest return level between the
// minimum-risk portfolio lo and the maximum-return portfolio hi whose
// minimum-risk portfolio stays within targetRisk. Risk is non-decreasing in
// the return level on that interval, so the answer is bracketed by lo
// (risk ≤ target) and hi; the root is refined with the Illinois variant of
// regula falsi.
func maximizeReturnUnderRisk(ctx context.Context, targetRisk float64, lo, hi frontierPoint, eval riskEvaluator) ([]float64, error) {
	if hi.risk <= targetRisk {
		return hi.weights, nil
	}
	if hi.ret <= lo.ret+1e-12 {
		return lo.weights, nil
	}

	tol := 1e-9 * (1 + targetRisk)
	best := lo.weights
	a, b := lo.ret, hi.ret
	fA, fB := lo.risk-targetRisk, hi.risk-targetRisk
	side := 0

	for iter := 0; iter < 100; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r := (a*fB - b*fA) / (fB - fA)
		if math.IsNaN(r) || r <= a || r >= b {
			r = 0.5 * (a + b)
		}

		w, risk, err := eval(ctx, r)
		if err != nil {
			return nil, err
		}
		f := risk - targetRisk
		if f <= tol {
			best = w
		}
		if math.Abs(f) <= tol {
			break
		}

		if f <= 0 {
			a, fA = r, f
			if side == -1 {
				fB /= 2
			}
			side = -1
		} else {
			b, fB = r, f
			if side == 1 {
				fA /= 2
			}
			side = 1
		}

		if b-a <= 1e-10*(1+math.Abs(b)) {
			break
		}
	}

	return best, nil
}
