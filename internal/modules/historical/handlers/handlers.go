// Package handlers provides HTTP handlers for the stored price history.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// maxImportBytes caps an uploaded CSV.
const maxImportBytes = 32 << 20

// Handler handles historical data HTTP requests
type Handler struct {
	historyDB *universe.HistoryDB
	validator *universe.PriceValidator
	estimator *optimization.Estimator
	log       zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(
	historyDB *universe.HistoryDB,
	validator *universe.PriceValidator,
	estimator *optimization.Estimator,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		historyDB: historyDB,
		validator: validator,
		estimator: estimator,
		log:       log.With().Str("handler", "historical").Logger(),
	}
}

// HandleGetDailyPrices handles GET /historical/prices/daily/{ticker}
func (h *Handler) HandleGetDailyPrices(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	prices, err := h.historyDB.GetDailyPrices(r.Context(), ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get daily prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to get daily prices")
		return
	}
	if prices == nil {
		prices = []universe.DailyPrice{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker": ticker,
			"prices": prices,
			"count":  len(prices),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetLatestPrice handles GET /historical/prices/latest/{ticker}
func (h *Handler) HandleGetLatestPrice(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)

	prices, err := h.historyDB.GetDailyPrices(r.Context(), ticker, 1)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get latest price")
		h.writeError(w, http.StatusInternalServerError, "Failed to get latest price")
		return
	}
	if len(prices) == 0 {
		h.writeError(w, http.StatusNotFound, "no prices stored for "+ticker)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker": ticker,
			"price":  prices[0],
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleImportPrices handles POST /historical/prices/import. The body is a
// wide CSV (date,TICKER1,TICKER2,...); abnormal closes are interpolated before
// the upsert.
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request) {
	history, err := universe.ReadPriceCSV(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cleaned, fixes := h.validator.Clean(history)
	if err := h.historyDB.SaveHistory(r.Context(), cleaned); err != nil {
		h.log.Error().Err(err).Msg("Failed to import prices")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fixes == nil {
		fixes = []universe.InterpolationLog{}
	}

	h.log.Info().
		Strs("tickers", cleaned.Tickers).
		Int("dates", cleaned.Len()).
		Int("interpolated", len(fixes)).
		Msg("Prices imported")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":        cleaned.Tickers,
		"dates":          cleaned.Len(),
		"interpolations": fixes,
	})
}

// HandleGetCorrelationMatrix handles GET /historical/returns/correlation-matrix?tickers=A,B&window=N
func (h *Handler) HandleGetCorrelationMatrix(w http.ResponseWriter, r *http.Request) {
	tickers := universe.ParseTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers parameter is required")
		return
	}

	window := 252
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			h.writeError(w, http.StatusBadRequest, "window must be an integer of at least 2")
			return
		}
		window = n
	}

	history, err := h.historyDB.GetPrices(r.Context(), tickers, universe.LookbackDays(window))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	est, err := h.estimator.Estimate(history)
	if err != nil {
		var dataErr *optimization.InsufficientDataError
		if errors.As(err, &dataErr) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	corr := optimization.Correlation(est.Covariance)
	n := len(est.Tickers)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			matrix[i][j] = corr.At(i, j)
		}
	}

	volatility := make(map[string]float64, n)
	for j, t := range est.Tickers {
		volatility[t] = formulas.AnnualizedVolatility(mat.Col(nil, j, est.Returns), h.estimator.Frequency())
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":          est.Tickers,
		"observations":     est.Observations,
		"expected_returns": est.ExpectedReturns,
		"volatility":       volatility,
		"correlation":      matrix,
	})
}

func tickerParam(r *http.Request) string {
	if t := universe.ParseTickers(chi.URLParam(r, "ticker")); len(t) > 0 {
		return t[0]
	}
	return ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
