// Package allocation converts fractional portfolio weights into whole-share
// purchases under a cash budget.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// Allocation is an integer share count per ticker plus the cash left over.
// Only tickers with at least one share appear in Shares.
type Allocation struct {
	Shares   map[string]int `json:"shares" msgpack:"shares"`
	Leftover float64        `json:"leftover" msgpack:"leftover"`
}

// Spent returns the cash committed to shares at the given prices.
func (a *Allocation) Spent(prices map[string]float64) float64 {
	var total float64
	for ticker, n := range a.Shares {
		total += float64(n) * prices[ticker]
	}
	return total
}

// AllocationError means the budget cannot fund any whole share, or the inputs
// to the allocator are unusable.
type AllocationError struct {
	Reason   string
	Budget   float64
	MinPrice float64
}

func (e *AllocationError) Error() string {
	if e.MinPrice > 0 {
		return fmt.Sprintf("allocation failed: %s (budget %.2f, cheapest price %.2f)", e.Reason, e.Budget, e.MinPrice)
	}
	return fmt.Sprintf("allocation failed: %s", e.Reason)
}

// DiscreteAllocator implements greedy integer-share rounding.
type DiscreteAllocator struct {
	log zerolog.Logger
}

// NewDiscreteAllocator creates a new allocator.
func NewDiscreteAllocator(log zerolog.Logger) *DiscreteAllocator {
	return &DiscreteAllocator{
		log: log.With().Str("component", "discrete_allocation").Logger(),
	}
}

type candidate struct {
	ticker string
	weight float64
	price  float64
	ideal  float64
	shares int
}

// Greedy allocates budget across the positive-weight tickers.
//
// Every ticker first receives floor(weight*budget/price) shares. Remaining cash
// then buys one share at a time of the affordable ticker whose
// (shares+1)/ideal ratio is lowest, i.e. the one furthest below its target,
// until no ticker is affordable. Ties go to the larger weight, then to the
// alphabetically first ticker.
//
// On error the zero allocation (leftover equal to the budget) is returned
// alongside the *AllocationError so callers can surface it.
func (da *DiscreteAllocator) Greedy(weights map[string]float64, prices map[string]float64, budget float64) (*Allocation, error) {
	zero := &Allocation{Shares: map[string]int{}, Leftover: budget}

	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget <= 0 {
		return zero, &AllocationError{Reason: "budget must be a positive amount", Budget: budget}
	}

	candidates, err := buildCandidates(weights, prices)
	if err != nil {
		err.Budget = budget
		return zero, err
	}

	minPrice := math.Inf(1)
	var totalWeight float64
	for _, c := range candidates {
		minPrice = math.Min(minPrice, c.price)
		totalWeight += c.weight
	}

	if budget < minPrice {
		return zero, &AllocationError{
			Reason:   "budget is smaller than the cheapest asset price",
			Budget:   budget,
			MinPrice: minPrice,
		}
	}

	remaining := budget
	for _, c := range candidates {
		c.ideal = c.weight / totalWeight * budget / c.price
		c.shares = int(math.Floor(c.ideal))
		remaining -= float64(c.shares) * c.price
	}

	for {
		best := pickUnderweight(candidates, remaining)
		if best == nil {
			break
		}
		best.shares++
		remaining -= best.price
	}

	alloc := &Allocation{Shares: make(map[string]int, len(candidates))}
	spent := 0.0
	for _, c := range candidates {
		if c.shares > 0 {
			alloc.Shares[c.ticker] = c.shares
			spent += float64(c.shares) * c.price
		}
	}
	alloc.Leftover = budget - spent
	if alloc.Leftover < 0 && alloc.Leftover > -1e-9*budget {
		alloc.Leftover = 0
	}

	da.log.Debug().
		Int("positions", len(alloc.Shares)).
		Float64("budget", budget).
		Float64("leftover", alloc.Leftover).
		Msg("Greedy allocation complete")

	return alloc, nil
}

func buildCandidates(weights map[string]float64, prices map[string]float64) ([]*candidate, *AllocationError) {
	tickers := make([]string, 0, len(weights))
	for t := range weights {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var out []*candidate
	for _, t := range tickers {
		w := weights[t]
		if math.IsNaN(w) || w < 0 {
			return nil, &AllocationError{Reason: fmt.Sprintf("invalid weight %v for %s", w, t)}
		}
		if w == 0 {
			continue
		}

		p, ok := prices[t]
		if !ok {
			return nil, &AllocationError{Reason: fmt.Sprintf("no latest price for %s", t)}
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return nil, &AllocationError{Reason: fmt.Sprintf("invalid price %v for %s", p, t)}
		}

		out = append(out, &candidate{ticker: t, weight: w, price: p})
	}

	if len(out) == 0 {
		return nil, &AllocationError{Reason: "no asset has a positive weight"}
	}

	return out, nil
}

// pickUnderweight returns the affordable candidate furthest below its target,
// or nil when nothing is affordable.
func pickUnderweight(candidates []*candidate, remaining float64) *candidate {
	var best *candidate
	var bestRatio float64

	for _, c := range candidates {
		if c.price > remaining {
			continue
		}
		ratio := float64(c.shares+1) / c.ideal
		switch {
		case best == nil:
		case ratio < bestRatio-1e-12:
		case math.Abs(ratio-bestRatio) <= 1e-12 && c.weight > best.weight:
		default:
			continue
		}
		best, bestRatio = c, ratio
	}

	return best
}
