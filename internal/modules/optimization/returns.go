package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// ReturnsMethod selects how expected returns are annualized.
type ReturnsMethod string

const (
	// ReturnsMean is the arithmetic mean of simple returns times the frequency.
	ReturnsMean ReturnsMethod = "mean"
	// ReturnsCompounded is the geometric average, (Π(1+r))^(freq/T) - 1.
	ReturnsCompounded ReturnsMethod = "compounded"
	// ReturnsLog is the mean log return times the frequency.
	ReturnsLog ReturnsMethod = "log"
)

// DefaultFrequency is the number of trading periods per year.
const DefaultFrequency = 252

// EstimatorConfig configures an Estimator.
type EstimatorConfig struct {
	Frequency int
	Method    ReturnsMethod
}

// Estimate is the read-only input shared by every objective of a run.
type Estimate struct {
	Tickers         []string
	ExpectedReturns map[string]float64
	Covariance      *mat.SymDense // annualized
	Returns         *mat.Dense    // per-period simple returns, T x n
	LatestPrices    map[string]float64
	Observations    int // aligned price rows
}

// Estimator derives expected returns and risk models from a price history.
type Estimator struct {
	frequency int
	method    ReturnsMethod
	risk      *RiskModelBuilder
	log       zerolog.Logger
}

// NewEstimator creates a new estimator.
func NewEstimator(cfg EstimatorConfig, log zerolog.Logger) *Estimator {
	if cfg.Frequency <= 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Method == "" {
		cfg.Method = ReturnsMean
	}
	return &Estimator{
		frequency: cfg.Frequency,
		method:    cfg.Method,
		risk:      NewRiskModelBuilder(cfg.Frequency, log),
		log:       log.With().Str("component", "estimator").Logger(),
	}
}

// Frequency returns the periods per year used for annualization.
func (e *Estimator) Frequency() int {
	return e.frequency
}

// Estimate computes every input the optimizers need.
func (e *Estimator) Estimate(history *domain.PriceHistory) (*Estimate, error) {
	prices, rows, err := e.alignPrices(history)
	if err != nil {
		return nil, err
	}

	returns := e.returnsMatrix(prices, history.Tickers, rows)

	mu, err := e.expectedReturns(prices, history.Tickers)
	if err != nil {
		return nil, err
	}

	cov, err := e.risk.SampleCovariance(returns)
	if err != nil {
		return nil, fmt.Errorf("failed to build covariance matrix: %w", err)
	}

	latest := make(map[string]float64, len(history.Tickers))
	for _, t := range history.Tickers {
		latest[t] = prices[t][rows-1]
	}

	e.log.Debug().
		Int("assets", len(history.Tickers)).
		Int("observations", rows).
		Str("method", string(e.method)).
		Msg("Built return and risk estimates")

	return &Estimate{
		Tickers:         append([]string(nil), history.Tickers...),
		ExpectedReturns: mu,
		Covariance:      cov,
		Returns:         returns,
		LatestPrices:    latest,
		Observations:    rows,
	}, nil
}

// ExpectedReturns returns the annualized expected return per ticker.
func (e *Estimator) ExpectedReturns(history *domain.PriceHistory) (map[string]float64, error) {
	prices, _, err := e.alignPrices(history)
	if err != nil {
		return nil, err
	}
	return e.expectedReturns(prices, history.Tickers)
}

// Returns returns the per-period simple returns, one column per ticker.
func (e *Estimator) Returns(history *domain.PriceHistory) (*mat.Dense, error) {
	prices, rows, err := e.alignPrices(history)
	if err != nil {
		return nil, err
	}
	return e.returnsMatrix(prices, history.Tickers, rows), nil
}

// Covariance returns the annualized sample covariance of returns.
func (e *Estimator) Covariance(history *domain.PriceHistory) (*mat.SymDense, error) {
	returns, err := e.Returns(history)
	if err != nil {
		return nil, err
	}
	return e.risk.SampleCovariance(returns)
}

// alignPrices forward-fills interior gaps and drops leading rows in which any
// ticker has not started trading yet. Every ticker needs at least two valid
// closes before alignment and the aligned window needs at least two rows.
func (e *Estimator) alignPrices(history *domain.PriceHistory) (map[string][]float64, int, error) {
	if history == nil {
		return nil, 0, &InsufficientDataError{}
	}
	if err := history.Validate(); err != nil {
		return nil, 0, fmt.Errorf("invalid price history: %w", err)
	}

	start := 0
	limiting := ""
	filledCount := 0
	filled := make(map[string][]float64, len(history.Tickers))

	for _, t := range history.Tickers {
		col := history.Closes[t]
		out := make([]float64, len(col))

		valid := 0
		first := -1
		last := math.NaN()
		for i, p := range col {
			if domain.IsValidPrice(p) {
				valid++
				if first < 0 {
					first = i
				}
				last = p
				out[i] = p
				continue
			}
			if !math.IsNaN(last) {
				filledCount++
			}
			out[i] = last
		}

		if valid < 2 {
			return nil, 0, &InsufficientDataError{Asset: t, Observations: valid}
		}
		if first > start {
			start = first
			limiting = t
		}
		filled[t] = out
	}

	rows := history.Len() - start
	if rows < 2 {
		return nil, 0, &InsufficientDataError{Asset: limiting, Observations: rows}
	}

	if filledCount > 0 || start > 0 {
		e.log.Warn().
			Int("filled_data_points", filledCount).
			Int("dropped_leading_rows", start).
			Msg("Filled missing price data")
	}

	for t, col := range filled {
		filled[t] = col[start:]
	}

	return filled, rows, nil
}

func (e *Estimator) returnsMatrix(prices map[string][]float64, tickers []string, rows int) *mat.Dense {
	returns := mat.NewDense(rows-1, len(tickers), nil)
	for j, t := range tickers {
		returns.SetCol(j, formulas.CalculateReturns(prices[t]))
	}
	return returns
}

func (e *Estimator) expectedReturns(prices map[string][]float64, tickers []string) (map[string]float64, error) {
	mu := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		switch e.method {
		case ReturnsMean:
			mu[t] = formulas.AnnualizedMeanReturn(formulas.CalculateReturns(prices[t]), e.frequency)
		case ReturnsCompounded:
			mu[t] = formulas.CompoundedAnnualReturn(formulas.CalculateReturns(prices[t]), e.frequency)
		case ReturnsLog:
			mu[t] = formulas.AnnualizedMeanReturn(formulas.CalculateLogReturns(prices[t]), e.frequency)
		default:
			return nil, fmt.Errorf("unknown returns method %q", e.method)
		}
	}
	return mu, nil
}
