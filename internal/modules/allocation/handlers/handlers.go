// Package handlers provides HTTP handlers for whole-share allocation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/rs/zerolog"
)

// Handler handles allocation HTTP requests
type Handler struct {
	allocator *allocation.DiscreteAllocator
	log       zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(allocator *allocation.DiscreteAllocator, log zerolog.Logger) *Handler {
	return &Handler{
		allocator: allocator,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

// GreedyRequest is the body of POST /allocation/greedy.
type GreedyRequest struct {
	Weights map[string]float64 `json:"weights"`
	Prices  map[string]float64 `json:"prices"`
	Budget  float64            `json:"budget"`
}

// GreedyResponse reports the allocation and the cash it commits.
type GreedyResponse struct {
	allocation.Allocation
	Spent float64 `json:"spent"`
}

// HandleGreedy converts weights into whole shares under a budget
func (h *Handler) HandleGreedy(w http.ResponseWriter, r *http.Request) {
	var req GreedyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	alloc, err := h.allocator.Greedy(req.Weights, req.Prices, req.Budget)
	if err != nil {
		var allocErr *allocation.AllocationError
		if errors.As(err, &allocErr) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, GreedyResponse{
		Allocation: *alloc,
		Spent:      alloc.Spent(req.Prices),
	})
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
