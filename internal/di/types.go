package di

import (
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/report"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds every wired dependency
type Container struct {
	// Database
	HistoryDB *database.DB // daily_prices and optimization_runs

	// Repositories
	HistoryDBClient *universe.HistoryDB
	RunRepo         *report.Repository

	// Price sources
	PriceSource    domain.PriceSource // CSV when configured, otherwise HistoryDBClient
	PriceValidator *universe.PriceValidator

	// Services
	Allocator        *allocation.DiscreteAllocator
	Estimator        *optimization.Estimator // standalone, for the correlation endpoint
	OptimizerService *optimization.OptimizerService

	// Background jobs; nil until RegisterJobs
	Scheduler *scheduler.Scheduler
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}
