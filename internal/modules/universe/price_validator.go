package universe

import (
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// Validation thresholds
	maxPriceMultiplier    = 10.0   // Price > 10x average is abnormal
	minPriceMultiplier    = 0.1    // Price < 0.1x average is abnormal
	maxPriceChangePercent = 1000.0 // >1000% change is a spike
	minPriceChangePercent = -90.0  // <-90% change is a crash
	contextWindowDays     = 30     // Use last 30 accepted closes for context
)

// InterpolationLog records when a close was replaced
type InterpolationLog struct {
	Ticker            string    `json:"ticker"`
	Date              time.Time `json:"date"`
	OriginalClose     float64   `json:"original_close"`
	InterpolatedClose float64   `json:"interpolated_close"`
	Method            string    `json:"method"` // "linear", "forward_fill", "backward_fill"
	Reason            string    `json:"reason"`
}

// PriceValidator detects abnormal closes in imported histories and replaces
// them with values interpolated from the surrounding accepted closes.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// ValidateClose checks price against the accepted closes before it, most
// recent first. Returns (isValid, reason).
func (v *PriceValidator) ValidateClose(price float64, context []float64) (bool, string) {
	if !domain.IsValidPrice(price) {
		return false, "invalid_price"
	}
	if len(context) == 0 {
		return true, ""
	}

	// Day-over-day change takes priority over the average checks
	prev := context[0]
	changePercent := (price - prev) / prev * 100.0
	if changePercent > maxPriceChangePercent {
		return false, "spike_detected"
	}
	if changePercent < minPriceChangePercent {
		return false, "crash_detected"
	}

	n := len(context)
	if n > contextWindowDays {
		n = contextWindowDays
	}
	var sum float64
	for _, c := range context[:n] {
		sum += c
	}
	avg := sum / float64(n)

	if price > avg*maxPriceMultiplier {
		return false, "price_too_high"
	}
	if price < avg*minPriceMultiplier {
		return false, "price_too_low"
	}

	return true, ""
}

// Clean returns a copy of history with abnormal closes interpolated. Missing
// closes (NaN) are left missing; the estimator forward-fills them.
func (v *PriceValidator) Clean(history *domain.PriceHistory) (*domain.PriceHistory, []InterpolationLog) {
	out := history.Since(time.Time{})
	var logs []InterpolationLog

	for _, t := range out.Tickers {
		col := out.Closes[t]
		reasons := make(map[int]string)
		var accepted []float64 // most recent first

		for i, c := range col {
			if math.IsNaN(c) {
				continue
			}
			ok, reason := v.ValidateClose(c, accepted)
			if !ok {
				reasons[i] = reason
				continue
			}
			accepted = append([]float64{c}, accepted...)
			if len(accepted) > contextWindowDays {
				accepted = accepted[:contextWindowDays]
			}
		}

		for i := range col {
			reason, bad := reasons[i]
			if !bad {
				continue
			}
			// A dropped close is logged with InterpolatedClose 0 so the log
			// stays JSON-encodable.
			value, method := interpolate(out.Dates, col, reasons, i)
			if method == "" {
				col[i] = math.NaN()
				method = "dropped"
			} else {
				col[i] = value
			}
			logs = append(logs, InterpolationLog{
				Ticker:            t,
				Date:              out.Dates[i],
				OriginalClose:     history.Closes[t][i],
				InterpolatedClose: value,
				Method:            method,
				Reason:            reason,
			})

			v.log.Warn().
				Str("ticker", t).
				Time("date", out.Dates[i]).
				Float64("original_close", history.Closes[t][i]).
				Float64("interpolated_close", value).
				Str("method", method).
				Str("reason", reason).
				Msg("Interpolated abnormal price")
		}
	}

	return out, logs
}

// interpolate estimates col[i] from the nearest accepted closes on either
// side, linear in calendar time.
func interpolate(dates []time.Time, col []float64, rejected map[int]string, i int) (float64, string) {
	usable := func(j int) bool {
		_, bad := rejected[j]
		return !bad && !math.IsNaN(col[j])
	}

	before, after := -1, -1
	for j := i - 1; j >= 0; j-- {
		if usable(j) {
			before = j
			break
		}
	}
	for j := i + 1; j < len(col); j++ {
		if usable(j) {
			after = j
			break
		}
	}

	switch {
	case before >= 0 && after >= 0:
		total := dates[after].Sub(dates[before]).Hours()
		if total <= 0 {
			return col[before], "forward_fill"
		}
		frac := dates[i].Sub(dates[before]).Hours() / total
		return col[before] + (col[after]-col[before])*frac, "linear"
	case before >= 0:
		return col[before], "forward_fill"
	case after >= 0:
		return col[after], "backward_fill"
	default:
		return 0, ""
	}
}
