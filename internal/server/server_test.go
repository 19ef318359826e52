package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/report"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *universe.HistoryDB) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "history")
	t.Cleanup(cleanup)

	history := universe.NewHistoryDB(db.Conn(), zerolog.Nop())
	allocator := allocation.NewDiscreteAllocator(zerolog.Nop())
	svc := optimization.NewOptimizerService(history, allocator, optimization.ServiceConfig{
		RiskFreeRate: optimization.DefaultRiskFreeRate,
	}, zerolog.Nop())

	srv := New(Config{
		Log:       zerolog.Nop(),
		HistoryDB: db,
		Config:    &config.Config{Optimizer: config.OptimizerConfig{SolverTimeout: 30 * time.Second}},
		Port:      0,
		DevMode:   true,
		Optimizer: svc,
		Allocator: allocator,
		Runs:      report.NewRepository(db.Conn(), zerolog.Nop()),
		History:   history,
		Validator: universe.NewPriceValidator(zerolog.Nop()),
		Estimator: optimization.NewEstimator(optimization.EstimatorConfig{}, zerolog.Nop()),
	})
	return srv, history
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := get(t, srv.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "frontier", body["service"])
	assert.Equal(t, "ok", body["database"])
}

func TestHealth_WithoutDatabase(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop(), DevMode: true})

	rec, body := get(t, srv.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "database")
}

func TestSystemStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := get(t, srv.Router(), "/api/system/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Greater(t, body["goroutines"], 0.0)
	assert.Greater(t, body["num_cpu"], 0.0)
}

func TestDatabaseStats(t *testing.T) {
	srv, history := newTestServer(t)

	h := testingpkg.NewPriceHistoryFixture(testingpkg.DefaultAssets(), 20, 3)
	require.NoError(t, history.SaveHistory(context.Background(), h))

	rec, body := get(t, srv.Router(), "/api/system/database/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "history", body["name"])
	assert.Equal(t, float64(len(h.Tickers)), body["tickers"])
	assert.Equal(t, float64(len(h.Tickers)*20), body["price_rows"])
	assert.Equal(t, h.Dates[0].Format("2006-01-02"), body["first_date"])
	assert.Equal(t, 0.0, body["stored_runs"])
}

func TestDatabaseStats_WithoutDatabase(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop(), DevMode: true})

	rec, _ := get(t, srv.Router(), "/api/system/database/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptimizerRoutesMounted(t *testing.T) {
	srv, history := newTestServer(t)
	require.NoError(t, history.SaveHistory(context.Background(),
		testingpkg.NewPriceHistoryFixture(testingpkg.DefaultAssets(), 120, 5)))

	rec, body := get(t, srv.Router(), "/api/optimizer/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["history_enabled"])

	tickers := testingpkg.NewPriceHistoryFixture(testingpkg.DefaultAssets(), 1, 5).Tickers
	payload := `{"tickers":["` + strings.Join(tickers, `","`) + `"],"window_size":100,"total_portfolio_value":100000}`
	req := httptest.NewRequest("POST", "/api/optimizer/run", strings.NewReader(payload))
	runRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(runRec, req)
	require.Equal(t, http.StatusOK, runRec.Code, runRec.Body.String())

	var rep optimization.Report
	require.NoError(t, json.Unmarshal(runRec.Body.Bytes(), &rep))
	assert.Len(t, rep.Results, 5)

	rec, body = get(t, srv.Router(), "/api/optimizer/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])
}

func TestAllocationRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/allocation/greedy",
		strings.NewReader(`{"weights":{"A":1},"prices":{"A":10},"budget":35}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"A":3`)
}

func TestHistoricalRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/historical/prices/import",
		strings.NewReader("date,SPY\n2024-01-02,470\n2024-01-03,472\n"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := get(t, srv.Router(), "/api/historical/prices/latest/SPY")
	require.Equal(t, http.StatusOK, rec.Code)
	price := body["data"].(map[string]interface{})["price"].(map[string]interface{})
	assert.Equal(t, 472.0, price["close"])
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, requestTimeout(nil))
	assert.Equal(t, 60*time.Second, requestTimeout(&config.Config{}))
	assert.Equal(t, 160*time.Second, requestTimeout(&config.Config{
		Optimizer: config.OptimizerConfig{SolverTimeout: 30 * time.Second},
	}))
}
