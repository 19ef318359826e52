package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles process and database monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	historyDB *database.DB
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, historyDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		historyDB: historyDB,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse represents host and process status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	NumCPU        int     `json:"num_cpu"`
}

// DatabaseStatsResponse represents price store statistics
type DatabaseStatsResponse struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	SizeMB      float64 `json:"size_mb"`
	Tickers     int     `json:"tickers"`
	PriceRows   int     `json:"price_rows"`
	FirstDate   string  `json:"first_date,omitempty"`
	LastDate    string  `json:"last_date,omitempty"`
	StoredRuns  int     `json:"stored_runs"`
	LastChecked string  `json:"last_checked"`
}

// HandleSystemStatus returns process and host statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	cpuPercent, ramPercent := h.getSystemStats()

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(ms.HeapAlloc) / 1024 / 1024,
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		NumCPU:        runtime.NumCPU(),
	})
}

// HandleDatabaseStats returns row counts and file size of the price store
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.historyDB == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}

	resp := DatabaseStatsResponse{
		Name:        h.historyDB.Name(),
		Path:        h.historyDB.Path(),
		LastChecked: time.Now().Format(time.RFC3339),
	}
	if info, err := os.Stat(h.historyDB.Path()); err == nil {
		resp.SizeMB = float64(info.Size()) / 1024 / 1024
	}

	conn := h.historyDB.Conn()
	var first, last sql.NullInt64
	err := conn.QueryRowContext(r.Context(), `
		SELECT COUNT(DISTINCT ticker), COUNT(*), MIN(date), MAX(date)
		FROM daily_prices
	`).Scan(&resp.Tickers, &resp.PriceRows, &first, &last)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query price statistics")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if first.Valid && last.Valid {
		resp.FirstDate = time.Unix(first.Int64, 0).UTC().Format("2006-01-02")
		resp.LastDate = time.Unix(last.Int64, 0).UTC().Format("2006-01-02")
	}

	if err := conn.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM optimization_runs").Scan(&resp.StoredRuns); err != nil {
		h.log.Error().Err(err).Msg("Failed to count stored runs")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
