// Package optimization provides portfolio optimization functionality.
package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Default weight bounds: long-only, no leverage.
const (
	DefaultMinWeight = 0.0
	DefaultMaxWeight = 1.0
)

// Bounds holds per-asset weight limits, aligned with the optimizer's tickers.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// UniformBounds applies the same [lower, upper] to n assets.
func UniformBounds(n int, lower, upper float64) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := 0; i < n; i++ {
		b.Lower[i] = lower
		b.Upper[i] = upper
	}
	return b
}

// Validate checks 0 ≤ lower ≤ upper ≤ 1 per asset and that a fully invested
// portfolio fits inside the box.
func (b Bounds) Validate(n int) error {
	if len(b.Lower) != n || len(b.Upper) != n {
		return fmt.Errorf("bounds cover %d/%d assets, expected %d", len(b.Lower), len(b.Upper), n)
	}

	var sumLower, sumUpper float64
	for i := 0; i < n; i++ {
		l, u := b.Lower[i], b.Upper[i]
		if math.IsNaN(l) || math.IsNaN(u) || l < 0 || u > 1 || l > u {
			return fmt.Errorf("invalid bounds [%v, %v] for asset %d", l, u, i)
		}
		sumLower += l
		sumUpper += u
	}

	if sumLower > 1+1e-12 {
		return fmt.Errorf("lower bounds sum to %.4f, above 1", sumLower)
	}
	if sumUpper < 1-1e-12 {
		return fmt.Errorf("upper bounds sum to %.4f, below 1", sumUpper)
	}

	return nil
}

// ConstraintsManager translates per-ticker weight limits into optimizer bounds.
type ConstraintsManager struct {
	maxConcentration float64
	log              zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		maxConcentration: DefaultMaxWeight,
		log:              log.With().Str("component", "constraints").Logger(),
	}
}

// SetMaxConcentration caps every asset's upper bound.
func (cm *ConstraintsManager) SetMaxConcentration(max float64) {
	cm.maxConcentration = max
}

// WeightBounds builds bounds for tickers. Tickers missing from minWeights or
// maxWeights get the long-only defaults; upper bounds are capped at the
// manager's max concentration. When the cap makes a fully invested portfolio
// impossible it is relaxed to 1/n so the problem stays feasible.
func (cm *ConstraintsManager) WeightBounds(tickers []string, minWeights, maxWeights map[string]float64) (Bounds, error) {
	n := len(tickers)
	b := UniformBounds(n, DefaultMinWeight, DefaultMaxWeight)

	concentration := cm.maxConcentration
	if n > 0 && concentration*float64(n) < 1 {
		cm.log.Warn().
			Float64("max_concentration", concentration).
			Int("assets", n).
			Msg("Concentration cap infeasible for universe size, relaxing")
		concentration = 1 / float64(n)
	}

	for i, t := range tickers {
		if v, ok := minWeights[t]; ok {
			b.Lower[i] = v
		}
		if v, ok := maxWeights[t]; ok {
			b.Upper[i] = v
		}
		b.Upper[i] = math.Min(b.Upper[i], concentration)
	}

	if err := b.Validate(n); err != nil {
		return Bounds{}, err
	}

	return b, nil
}

// maxReturnWeights is the portfolio with the largest μᵀw over the
// box-constrained simplex: start every asset at its lower bound and pour the
// rest into the highest returns first.
func maxReturnWeights(mu []float64, b Bounds) []float64 {
	n := len(mu)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return mu[order[a]] > mu[order[b]] })

	w := make([]float64, n)
	remaining := 1.0
	for i := 0; i < n; i++ {
		w[i] = b.Lower[i]
		remaining -= b.Lower[i]
	}
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(b.Upper[i]-b.Lower[i], remaining)
		w[i] += add
		remaining -= add
	}
	return w
}

// maxAchievableReturn is μᵀw of maxReturnWeights.
func maxAchievableReturn(mu []float64, b Bounds) float64 {
	var ret float64
	for i, v := range maxReturnWeights(mu, b) {
		ret += mu[i] * v
	}
	return ret
}

// rowBuilder accumulates linear constraint rows over a fixed variable count.
type rowBuilder struct {
	n          int
	rows       [][]float64
	rhs        []float64
	infeasible bool
}

func newRowBuilder(n int) *rowBuilder {
	return &rowBuilder{n: n}
}

// add appends row·x (≤ or =) rhs. All-zero rows are dropped when trivially
// satisfied and flag the system infeasible otherwise.
func (rb *rowBuilder) add(row []float64, rhs float64, equality bool) {
	for _, v := range row {
		if v != 0 {
			rb.rows = append(rb.rows, row)
			rb.rhs = append(rb.rhs, rhs)
			return
		}
	}
	if (equality && math.Abs(rhs) > 1e-12) || (!equality && rhs < -1e-12) {
		rb.infeasible = true
	}
}

func (rb *rowBuilder) dense() (*mat.Dense, []float64) {
	if len(rb.rows) == 0 {
		return nil, nil
	}
	d := mat.NewDense(len(rb.rows), rb.n, nil)
	for i, row := range rb.rows {
		d.SetRow(i, row)
	}
	return d, append([]float64(nil), rb.rhs...)
}

// addWeightBounds appends lower ≤ x[offset+i] ≤ upper rows. Upper rows at 1
// are implied by the budget constraint and skipped.
func addWeightBounds(rb *rowBuilder, offset int, b Bounds) {
	for i := range b.Lower {
		lo := make([]float64, rb.n)
		lo[offset+i] = -1
		rb.add(lo, -b.Lower[i], false)

		if b.Upper[i] < 1 {
			up := make([]float64, rb.n)
			up[offset+i] = 1
			rb.add(up, b.Upper[i], false)
		}
	}
}

// addBudget appends Σ x[offset:offset+k] = 1.
func addBudget(rb *rowBuilder, offset, k int) {
	row := make([]float64, rb.n)
	for i := 0; i < k; i++ {
		row[offset+i] = 1
	}
	rb.add(row, 1, true)
}
