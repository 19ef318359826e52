package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Defaults for a run
const (
	DefaultRiskFreeRate = 0.02
)

// ServiceConfig holds the tunables of an optimization run.
type ServiceConfig struct {
	RiskFreeRate       float64
	Benchmark          float64
	WeightCutoff       float64
	MaxWeight          float64 // per-asset cap; 0 means uncapped
	ParallelObjectives bool
	Estimator          EstimatorConfig
	Solver             SolverSettings
}

// RunInput identifies what to optimize.
type RunInput struct {
	Tickers    []string `json:"tickers"`
	WindowSize int      `json:"window_size"`
	TotalValue float64  `json:"total_portfolio_value"`
}

// ErrInvalidInput wraps every RunInput validation failure.
var ErrInvalidInput = errors.New("invalid run input")

// Validate checks the run parameters.
func (in RunInput) Validate() error {
	if len(in.Tickers) == 0 {
		return fmt.Errorf("%w: at least one ticker is required", ErrInvalidInput)
	}
	if in.WindowSize < 2 {
		return fmt.Errorf("%w: window size must be at least 2 days, got %d", ErrInvalidInput, in.WindowSize)
	}
	if math.IsNaN(in.TotalValue) || math.IsInf(in.TotalValue, 0) || in.TotalValue <= 0 {
		return fmt.Errorf("%w: total portfolio value must be positive, got %.2f", ErrInvalidInput, in.TotalValue)
	}
	return nil
}

// OptimizerService runs every objective over one price window and allocates
// each resulting portfolio into whole shares.
type OptimizerService struct {
	prices         domain.PriceSource
	estimator      *Estimator
	constraintsMgr *ConstraintsManager
	allocator      Allocator
	solver         Solver
	cfg            ServiceConfig
	log            zerolog.Logger
}

// NewOptimizerService creates a new optimizer service.
func NewOptimizerService(
	prices domain.PriceSource,
	allocator Allocator,
	cfg ServiceConfig,
	log zerolog.Logger,
) *OptimizerService {
	// Unset (zero) means the default; configuration rejects an explicit 0
	if cfg.WeightCutoff <= 0 {
		cfg.WeightCutoff = DefaultWeightCutoff
	}
	constraintsMgr := NewConstraintsManager(log)
	if cfg.MaxWeight > 0 {
		constraintsMgr.SetMaxConcentration(cfg.MaxWeight)
	}
	return &OptimizerService{
		prices:         prices,
		estimator:      NewEstimator(cfg.Estimator, log),
		constraintsMgr: constraintsMgr,
		allocator:      allocator,
		solver:         NewInteriorPointSolver(cfg.Solver, log),
		cfg:            cfg,
		log:            log.With().Str("component", "optimizer_service").Logger(),
	}
}

// Config returns the service configuration.
func (os *OptimizerService) Config() ServiceConfig {
	return os.cfg
}

// SetSolver swaps the QP backend used by every objective.
func (os *OptimizerService) SetSolver(s Solver) {
	os.solver = s
}

// Run fetches prices, estimates the return and risk model, then solves in order:
//
//  1. max Sharpe, min volatility and min semivariance (independent)
//  2. semivariance efficient return at the blend of (1)'s returns
//  3. semivariance efficient risk at the blend of max Sharpe volatility and
//     min semivariance semideviation
//
// Objective failures are recorded in the report. Missing data and
// unallocatable budgets abort the run.
func (os *OptimizerService) Run(ctx context.Context, in RunInput) (*Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if os.prices == nil {
		return nil, fmt.Errorf("no price source configured")
	}

	history, err := os.prices.GetPrices(ctx, in.Tickers, universe.LookbackDays(in.WindowSize))
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	return os.RunHistory(ctx, in, history)
}

// RunHistory is Run over an already loaded price history. Tickers in the
// history that are not in in.Tickers are ignored.
func (os *OptimizerService) RunHistory(ctx context.Context, in RunInput, history *domain.PriceHistory) (*Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Five objectives, each bounded by the solver timeout
	defer utils.OperationTimer("optimization_run", 5*os.cfg.Solver.Timeout, os.log)()

	start := time.Now()
	os.log.Info().
		Strs("tickers", in.Tickers).
		Int("window_size", in.WindowSize).
		Float64("total_value", in.TotalValue).
		Msg("Starting optimization run")

	history, err := selectTickers(history, in.Tickers)
	if err != nil {
		return nil, err
	}

	est, err := os.estimator.Estimate(history)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate returns: %w", err)
	}

	bounds, err := os.constraintsMgr.WeightBounds(est.Tickers, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weight bounds: %w", err)
	}

	r, err := os.newRun(est, bounds, in.TotalValue)
	if err != nil {
		return nil, err
	}

	stage1 := []Objective{ObjectiveMaxSharpe, ObjectiveMinVolatility, ObjectiveMinSemivariance}
	first, err := os.solveAll(ctx, r, stage1)
	if err != nil {
		return nil, err
	}
	maxSharpe, minVol, minSemi := first[0], first[1], first[2]

	targetReturn := BlendedTargetReturn(maxSharpe, minVol)
	effReturn, err := r.solve(ctx, ObjectiveSemivarianceEfficientReturn, &targetReturn)
	if err != nil {
		return nil, err
	}

	targetRisk := BlendedTargetRisk(maxSharpe, minSemi)
	effRisk, err := r.solve(ctx, ObjectiveSemivarianceEfficientRisk, &targetRisk)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        uuid.New().String(),
		Tickers:      est.Tickers,
		WindowSize:   in.WindowSize,
		TotalValue:   in.TotalValue,
		Observations: est.Observations,
		LatestPrices: est.LatestPrices,
		GeneratedAt:  time.Now().UTC(),
		Results:      []Result{maxSharpe, minVol, minSemi, effReturn, effRisk},
	}

	succeeded := 0
	for _, res := range report.Results {
		if res.Success {
			succeeded++
		}
	}
	os.log.Info().
		Str("run_id", report.RunID).
		Int("succeeded", succeeded).
		Int("objectives", len(report.Results)).
		Float64("target_return", targetReturn).
		Float64("target_risk", targetRisk).
		Dur("duration", time.Since(start)).
		Msg("Optimization run completed")

	return report, nil
}

// selectTickers narrows history to tickers, in the requested order.
func selectTickers(history *domain.PriceHistory, tickers []string) (*domain.PriceHistory, error) {
	if history == nil {
		return nil, &InsufficientDataError{}
	}
	out := &domain.PriceHistory{
		Dates:   history.Dates,
		Tickers: make([]string, 0, len(tickers)),
		Closes:  make(map[string][]float64, len(tickers)),
	}
	for _, t := range tickers {
		col, ok := history.Closes[t]
		if !ok {
			return nil, &InsufficientDataError{Asset: t}
		}
		out.Tickers = append(out.Tickers, t)
		out.Closes[t] = col
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price history: %w", err)
	}
	return out, nil
}

// solveAll runs independent objectives, concurrently when configured.
func (os *OptimizerService) solveAll(ctx context.Context, r *run, objectives []Objective) ([]Result, error) {
	results := make([]Result, len(objectives))

	if !os.cfg.ParallelObjectives {
		for i, obj := range objectives {
			res, err := r.solve(ctx, obj, nil)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, obj := range objectives {
		i, obj := i, obj
		g.Go(func() error {
			res, err := r.solve(gctx, obj, nil)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// run holds the read-only model shared by every objective of one Run.
type run struct {
	est          *Estimate
	frontier     *EfficientFrontier
	semivariance *EfficientSemivariance
	budget       float64
	svc          *OptimizerService
}

func (os *OptimizerService) newRun(est *Estimate, bounds Bounds, budget float64) (*run, error) {
	opts := []Option{
		WithBounds(bounds),
		WithSolver(os.solver),
		WithLogger(os.log),
		WithFrequency(os.estimator.frequency),
		WithBenchmark(os.cfg.Benchmark),
	}

	ef, err := NewEfficientFrontier(est.ExpectedReturns, est.Covariance, est.Tickers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create efficient frontier: %w", err)
	}
	es, err := NewEfficientSemivariance(est.ExpectedReturns, est.Returns, est.Tickers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create semivariance optimizer: %w", err)
	}

	return &run{est: est, frontier: ef, semivariance: es, budget: budget, svc: os}, nil
}

// solve runs one objective. An OptimizationError becomes a failed Result;
// cancellation and any other error abort the run.
func (r *run) solve(ctx context.Context, objective Objective, target *float64) (Result, error) {
	log := r.svc.log.With().Str("objective", string(objective)).Logger()
	rf := r.svc.cfg.RiskFreeRate

	var (
		raw  WeightVector
		perf Performance
		err  error
	)
	if objective.IsSemivariance() {
		raw, err = r.semivariance.Optimize(ctx, objective, target)
		if err == nil {
			perf = r.semivariance.Performance(raw, rf)
		}
	} else {
		raw, err = r.frontier.Optimize(ctx, objective, target, rf)
		if err == nil {
			perf = r.frontier.Performance(raw, rf)
		}
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("%s: %w", objective, ctxErr)
		}
		if IsOptimizationError(err) {
			log.Warn().Err(err).Msg("Objective failed")
			return failedResult(objective, target, err), nil
		}
		return Result{}, fmt.Errorf("%s: %w", objective, err)
	}

	alloc, err := r.svc.allocator.Greedy(raw, r.est.LatestPrices, r.budget)
	if err != nil {
		return Result{}, fmt.Errorf("%s allocation: %w", objective, err)
	}

	log.Debug().
		Float64("expected_return", perf.ExpectedReturn).
		Float64("risk", perf.Risk).
		Float64("ratio", perf.Ratio).
		Float64("leftover", alloc.Leftover).
		Msg("Objective solved")

	return Result{
		Objective:   objective,
		Success:     true,
		Performance: perf,
		Weights:     NonZero(CleanWeights(raw, r.svc.cfg.WeightCutoff)),
		RawWeights:  raw,
		Allocation:  alloc.Shares,
		Leftover:    alloc.Leftover,
		Target:      target,
	}, nil
}
