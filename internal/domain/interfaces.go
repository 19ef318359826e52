package domain

import "context"

// PriceSource supplies aligned close histories for a set of tickers.
// lookbackDays is in calendar days counted back from the latest stored date.
type PriceSource interface {
	GetPrices(ctx context.Context, tickers []string, lookbackDays int) (*PriceHistory, error)
}
