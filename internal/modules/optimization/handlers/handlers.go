// Package handlers provides HTTP handlers for running and browsing portfolio
// optimizations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/report"
	"github.com/aristath/frontier/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RunStore persists completed reports.
type RunStore interface {
	Save(ctx context.Context, r *optimization.Report) error
	Get(ctx context.Context, runID string) (*optimization.Report, error)
	List(ctx context.Context, limit int) ([]report.RunSummary, error)
}

// Handler handles optimizer HTTP requests
type Handler struct {
	service *optimization.OptimizerService
	runs    RunStore
	log     zerolog.Logger
}

// NewHandler creates a new optimizer handler. runs may be nil, in which case
// reports are not stored and the history routes answer 503.
func NewHandler(service *optimization.OptimizerService, runs RunStore, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
		log:     log.With().Str("handler", "optimizer").Logger(),
	}
}

// InlinePrices is a price history sent with the request. Dates are
// YYYY-MM-DD; null closes mark missing observations.
type InlinePrices struct {
	Dates  []string              `json:"dates"`
	Closes map[string][]*float64 `json:"closes"`
}

// RunRequest is the body of POST /optimizer/run.
type RunRequest struct {
	optimization.RunInput
	Prices *InlinePrices `json:"prices,omitempty"`
}

// HandleGetStatus returns the optimizer configuration and objective list
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.Config()

	objectives := []map[string]string{}
	for _, obj := range []optimization.Objective{
		optimization.ObjectiveMaxSharpe,
		optimization.ObjectiveMinVolatility,
		optimization.ObjectiveMinSemivariance,
		optimization.ObjectiveSemivarianceEfficientReturn,
		optimization.ObjectiveSemivarianceEfficientRisk,
	} {
		objectives = append(objectives, map[string]string{"id": string(obj), "title": obj.Title()})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"risk_free_rate":      cfg.RiskFreeRate,
		"benchmark":           cfg.Benchmark,
		"weight_cutoff":       cfg.WeightCutoff,
		"parallel_objectives": cfg.ParallelObjectives,
		"objectives":          objectives,
		"history_enabled":     h.runs != nil,
	})
}

// HandleRun runs every objective. Prices come from the request body when
// given, otherwise from the configured price source.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Tickers = normalizeTickers(req.Tickers)

	var (
		rep *optimization.Report
		err error
	)
	if req.Prices != nil {
		history, perr := req.Prices.history()
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		rep, err = h.service.RunHistory(r.Context(), req.RunInput, history)
	} else {
		rep, err = h.service.Run(r.Context(), req.RunInput)
	}
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	if h.runs != nil {
		if err := h.runs.Save(r.Context(), rep); err != nil {
			h.log.Warn().Err(err).Str("run_id", rep.RunID).Msg("Failed to store optimization run")
		}
	}

	h.writeReport(w, r, http.StatusOK, rep)
}

// HandleListRuns returns the most recent stored runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun returns one stored report
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	rep, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, report.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeReport(w, r, http.StatusOK, rep)
}

func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	var (
		dataErr  *optimization.InsufficientDataError
		allocErr *allocation.AllocationError
	)

	switch {
	case errors.Is(err, optimization.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dataErr), errors.As(err, &allocErr):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("Optimization run failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeReport renders JSON, or the plain-text report when ?format=text.
func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, status int, rep *optimization.Report) {
	if r.URL.Query().Get("format") != string(report.FormatText) {
		h.writeJSON(w, status, rep)
		return
	}

	data, err := report.Encode(report.FormatText, rep)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", report.FormatText.ContentType())
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to write text report")
	}
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

func normalizeTickers(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		out = append(out, universe.ParseTickers(t)...)
	}
	return out
}

// history converts the inline payload into a PriceHistory.
func (p *InlinePrices) history() (*domain.PriceHistory, error) {
	if len(p.Dates) == 0 || len(p.Closes) == 0 {
		return nil, fmt.Errorf("prices must include dates and closes")
	}

	dates := make([]time.Time, len(p.Dates))
	for i, d := range p.Dates {
		parsed, err := utils.ParseDate(d)
		if err != nil {
			return nil, err
		}
		dates[i] = parsed
	}

	keys := make([]string, 0, len(p.Closes))
	for t := range p.Closes {
		keys = append(keys, t)
	}
	sort.Strings(keys)

	tickers := make([]string, 0, len(keys))
	for _, k := range keys {
		t := strings.ToUpper(strings.TrimSpace(k))
		if t == "" {
			return nil, fmt.Errorf("prices contain an empty ticker")
		}
		tickers = append(tickers, t)
	}
	h := domain.NewPriceHistory(tickers, dates)

	for i, k := range keys {
		col := p.Closes[k]
		if len(col) != len(dates) {
			return nil, fmt.Errorf("ticker %s has %d closes for %d dates", tickers[i], len(col), len(dates))
		}
		dst := h.Closes[tickers[i]]
		for j, v := range col {
			if v == nil {
				dst[j] = math.NaN()
				continue
			}
			dst[j] = *v
		}
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
