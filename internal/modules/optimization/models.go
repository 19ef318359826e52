package optimization

import (
	"sort"
	"time"
)

// Objective names an optimization objective.
type Objective string

const (
	ObjectiveMaxSharpe                   Objective = "max_sharpe"
	ObjectiveMinVolatility               Objective = "min_volatility"
	ObjectiveEfficientReturn             Objective = "efficient_return"
	ObjectiveEfficientRisk               Objective = "efficient_risk"
	ObjectiveMinSemivariance             Objective = "min_semivariance"
	ObjectiveSemivarianceEfficientReturn Objective = "semivariance_efficient_return"
	ObjectiveSemivarianceEfficientRisk   Objective = "semivariance_efficient_risk"
)

// Title is the section heading used in reports.
func (o Objective) Title() string {
	switch o {
	case ObjectiveMaxSharpe:
		return "Maximises Sharpe"
	case ObjectiveMinVolatility:
		return "Minimise Volatility"
	case ObjectiveEfficientReturn:
		return "Efficient Return"
	case ObjectiveEfficientRisk:
		return "Efficient Risk"
	case ObjectiveMinSemivariance:
		return "Minimise Semivariance"
	case ObjectiveSemivarianceEfficientReturn:
		return "Semivariance Efficient Return"
	case ObjectiveSemivarianceEfficientRisk:
		return "Semivariance Efficient Risk"
	default:
		return string(o)
	}
}

// IsSemivariance reports whether the objective measures risk as semideviation.
func (o Objective) IsSemivariance() bool {
	switch o {
	case ObjectiveMinSemivariance, ObjectiveSemivarianceEfficientReturn, ObjectiveSemivarianceEfficientRisk:
		return true
	}
	return false
}

// WeightVector maps ticker to portfolio weight.
type WeightVector map[string]float64

// Tickers returns the keys in sorted order.
func (w WeightVector) Tickers() []string {
	out := make([]string, 0, len(w))
	for t := range w {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Performance is the (return, risk, ratio) tuple of a portfolio.
// Risk is annual volatility for mean-variance objectives and annual
// semideviation for semivariance objectives; Ratio is Sharpe or Sortino
// accordingly.
type Performance struct {
	ExpectedReturn float64 `json:"expected_return" msgpack:"expected_return"`
	Risk           float64 `json:"risk" msgpack:"risk"`
	Ratio          float64 `json:"ratio" msgpack:"ratio"`
}

// Result is the tagged outcome of one objective.
// When Success is false every numeric field is zero and the maps are empty.
type Result struct {
	Objective     Objective      `json:"objective" msgpack:"objective"`
	Success       bool           `json:"success" msgpack:"success"`
	Performance   Performance    `json:"performance" msgpack:"performance"`
	Weights       WeightVector   `json:"weights" msgpack:"weights"`
	RawWeights    WeightVector   `json:"raw_weights,omitempty" msgpack:"raw_weights,omitempty"`
	Allocation    map[string]int `json:"allocation" msgpack:"allocation"`
	Leftover      float64        `json:"leftover" msgpack:"leftover"`
	Target        *float64       `json:"target,omitempty" msgpack:"target,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty" msgpack:"failure_reason,omitempty"`
}

func failedResult(objective Objective, target *float64, err error) Result {
	return Result{
		Objective:     objective,
		Success:       false,
		Weights:       WeightVector{},
		Allocation:    map[string]int{},
		Target:        target,
		FailureReason: err.Error(),
	}
}

// Report is the outcome of a full optimization run.
type Report struct {
	RunID        string             `json:"run_id" msgpack:"run_id"`
	Tickers      []string           `json:"tickers" msgpack:"tickers"`
	WindowSize   int                `json:"window_size" msgpack:"window_size"`
	TotalValue   float64            `json:"total_value" msgpack:"total_value"`
	Observations int                `json:"observations" msgpack:"observations"`
	LatestPrices map[string]float64 `json:"latest_prices" msgpack:"latest_prices"`
	GeneratedAt  time.Time          `json:"generated_at" msgpack:"generated_at"`
	Results      []Result           `json:"results" msgpack:"results"`
}

// Result returns the result for objective, if present.
func (r *Report) Result(objective Objective) (Result, bool) {
	for _, res := range r.Results {
		if res.Objective == objective {
			return res, true
		}
	}
	return Result{}, false
}
