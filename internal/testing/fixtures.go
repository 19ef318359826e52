package testing

import (
	"math"
	"math/rand"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// AssetSpec describes a synthetic asset: annual drift and volatility of its
// log returns, and the first close.
type AssetSpec struct {
	Ticker     string
	Drift      float64
	Volatility float64
	Start      float64
}

// DefaultAssets mirrors the default universe with plausible parameters.
func DefaultAssets() []AssetSpec {
	return []AssetSpec{
		{Ticker: "QLD", Drift: 0.30, Volatility: 0.45, Start: 70},
		{Ticker: "SSO", Drift: 0.22, Volatility: 0.32, Start: 60},
		{Ticker: "DDM", Drift: 0.14, Volatility: 0.28, Start: 80},
		{Ticker: "UBT", Drift: 0.02, Volatility: 0.30, Start: 30},
	}
}

// FixtureStart is the first date of every synthetic history.
var FixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// TradingDates returns n weekdays starting at from.
func TradingDates(from time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	for d := from; len(dates) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// NewPriceHistoryFixture generates days of geometric Brownian motion closes
// per asset. The same seed always yields the same history.
func NewPriceHistoryFixture(assets []AssetSpec, days int, seed int64) *domain.PriceHistory {
	rng := rand.New(rand.NewSource(seed))
	dates := TradingDates(FixtureStart, days)

	tickers := make([]string, len(assets))
	for i, a := range assets {
		tickers[i] = a.Ticker
	}
	h := domain.NewPriceHistory(tickers, dates)

	const dt = 1.0 / 252
	for _, a := range assets {
		col := h.Closes[a.Ticker]
		price := a.Start
		for i := range col {
			if i > 0 {
				shock := rng.NormFloat64()
				price *= math.Exp((a.Drift-0.5*a.Volatility*a.Volatility)*dt + a.Volatility*math.Sqrt(dt)*shock)
			}
			col[i] = price
		}
	}

	return h
}

// NewConstantHistory returns a history in which every ticker closes at the
// same price on every day: zero returns and zero variance.
func NewConstantHistory(prices map[string]float64, tickers []string, days int) *domain.PriceHistory {
	h := domain.NewPriceHistory(tickers, TradingDates(FixtureStart, days))
	for _, t := range tickers {
		for i := range h.Closes[t] {
			h.Closes[t][i] = prices[t]
		}
	}
	return h
}
