package di

import (
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/report"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the database-backed repositories
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.HistoryDBClient = universe.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.RunRepo = report.NewRepository(container.HistoryDB.Conn(), log)
}

// InitializeServices creates the price source, allocator and optimizer
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	if cfg.PriceCSVPath != "" {
		container.PriceSource = universe.NewCSVPriceSource(cfg.PriceCSVPath, log)
		log.Info().Str("path", cfg.PriceCSVPath).Msg("Using CSV price source")
	} else {
		container.PriceSource = container.HistoryDBClient
	}
	container.PriceValidator = universe.NewPriceValidator(log)

	serviceCfg := ServiceConfig(cfg)
	container.Allocator = allocation.NewDiscreteAllocator(log)
	container.Estimator = optimization.NewEstimator(serviceCfg.Estimator, log)
	container.OptimizerService = optimization.NewOptimizerService(
		container.PriceSource,
		container.Allocator,
		serviceCfg,
		log,
	)
}

// ServiceConfig maps application configuration onto the optimizer's.
func ServiceConfig(cfg *config.Config) optimization.ServiceConfig {
	return optimization.ServiceConfig{
		RiskFreeRate:       cfg.Optimizer.RiskFreeRate,
		Benchmark:          cfg.Optimizer.Benchmark,
		WeightCutoff:       cfg.Optimizer.WeightCutoff,
		MaxWeight:          cfg.Optimizer.MaxWeight,
		ParallelObjectives: cfg.Optimizer.ParallelObjectives,
		Estimator: optimization.EstimatorConfig{
			Frequency: cfg.Optimizer.Frequency,
			Method:    optimization.ReturnsMethod(cfg.Optimizer.ReturnsMethod),
		},
		Solver: optimization.SolverSettings{
			MaxIterations: cfg.Optimizer.SolverMaxIter,
			Timeout:       cfg.Optimizer.SolverTimeout,
		},
	}
}
