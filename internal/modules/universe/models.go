// Package universe loads and stores the daily price histories the optimizer
// runs on.
package universe

import (
	"math"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/utils"
)

// TradingDaysPerYear converts a trading-day window into calendar days.
const TradingDaysPerYear = 252

// DailyPrice is one adjusted close for a ticker.
type DailyPrice struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// LookbackDays returns how many calendar days cover window trading days:
// ceil(window * 365 / 252) + 1.
func LookbackDays(window int) int {
	if window <= 0 {
		return 0
	}
	return int(math.Ceil(float64(window)*365/TradingDaysPerYear)) + 1
}

// ParseTickers splits a comma-separated ticker list. Entries are trimmed and
// upper-cased; empty entries and duplicates are dropped, first occurrence wins.
func ParseTickers(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range utils.ParseCSV(s) {
		t := strings.ToUpper(v)
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
