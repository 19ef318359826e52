// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceHistory is a date x ticker matrix of adjusted closes.
// Closes[ticker][i] is the close on Dates[i]; NaN marks a missing observation.
type PriceHistory struct {
	Dates   []time.Time          `json:"dates"`
	Tickers []string             `json:"tickers"`
	Closes  map[string][]float64 `json:"closes"`
}

// NewPriceHistory allocates a history with every close set to NaN.
func NewPriceHistory(tickers []string, dates []time.Time) *PriceHistory {
	h := &PriceHistory{
		Dates:   dates,
		Tickers: tickers,
		Closes:  make(map[string][]float64, len(tickers)),
	}
	for _, t := range tickers {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		h.Closes[t] = col
	}
	return h
}

// Len returns the number of dates.
func (h *PriceHistory) Len() int {
	return len(h.Dates)
}

// Validate checks the shape invariants: unique tickers, one column per ticker
// matching the date axis, and strictly increasing dates.
func (h *PriceHistory) Validate() error {
	if len(h.Tickers) == 0 {
		return fmt.Errorf("price history has no tickers")
	}

	seen := make(map[string]struct{}, len(h.Tickers))
	for _, t := range h.Tickers {
		if _, dup := seen[t]; dup {
			return fmt.Errorf("duplicate ticker %s", t)
		}
		seen[t] = struct{}{}

		col, ok := h.Closes[t]
		if !ok {
			return fmt.Errorf("no closes for ticker %s", t)
		}
		if len(col) != len(h.Dates) {
			return fmt.Errorf("ticker %s has %d closes for %d dates", t, len(col), len(h.Dates))
		}
	}

	for i := 1; i < len(h.Dates); i++ {
		if !h.Dates[i].After(h.Dates[i-1]) {
			return fmt.Errorf("dates not strictly increasing at %s", h.Dates[i].Format("2006-01-02"))
		}
	}

	return nil
}

// Latest returns the most recent valid close per ticker (the forward-filled last row).
// Tickers without any valid close are omitted.
func (h *PriceHistory) Latest() map[string]float64 {
	latest := make(map[string]float64, len(h.Tickers))
	for _, t := range h.Tickers {
		col := h.Closes[t]
		for i := len(col) - 1; i >= 0; i-- {
			if isValidPrice(col[i]) {
				latest[t] = col[i]
				break
			}
		}
	}
	return latest
}

// Since returns the rows dated on or after from. The result shares no slices with h.
func (h *PriceHistory) Since(from time.Time) *PriceHistory {
	start := len(h.Dates)
	for i, d := range h.Dates {
		if !d.Before(from) {
			start = i
			break
		}
	}

	dates := append([]time.Time(nil), h.Dates[start:]...)
	out := &PriceHistory{
		Dates:   dates,
		Tickers: append([]string(nil), h.Tickers...),
		Closes:  make(map[string][]float64, len(h.Tickers)),
	}
	for _, t := range h.Tickers {
		out.Closes[t] = append([]float64(nil), h.Closes[t][start:]...)
	}
	return out
}

// LastDate returns the final date, or the zero time for an empty history.
func (h *PriceHistory) LastDate() time.Time {
	if len(h.Dates) == 0 {
		return time.Time{}
	}
	return h.Dates[len(h.Dates)-1]
}

func isValidPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// IsValidPrice reports whether p is a usable close (finite and positive).
func IsValidPrice(p float64) bool {
	return isValidPrice(p)
}
