package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/report"
	"github.com/rs/zerolog"
)

// Optimizer is the part of the optimizer service the run job needs.
type Optimizer interface {
	Run(ctx context.Context, in optimization.RunInput) (*optimization.Report, error)
}

// OptimizationRunJob optimizes a fixed input and hands the report to a sink
type OptimizationRunJob struct {
	optimizer Optimizer
	input     optimization.RunInput
	sink      report.Sink
	timeout   time.Duration
	log       zerolog.Logger
}

// NewOptimizationRunJob creates a new OptimizationRunJob. A zero timeout
// means no deadline.
func NewOptimizationRunJob(
	optimizer Optimizer,
	input optimization.RunInput,
	sink report.Sink,
	timeout time.Duration,
	log zerolog.Logger,
) *OptimizationRunJob {
	return &OptimizationRunJob{
		optimizer: optimizer,
		input:     input,
		sink:      sink,
		timeout:   timeout,
		log:       log.With().Str("job", "optimization_run").Logger(),
	}
}

// Name returns the job name
func (j *OptimizationRunJob) Name() string {
	return "optimization_run"
}

// Run executes the optimization run job
func (j *OptimizationRunJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	rep, err := j.optimizer.Run(ctx, j.input)
	if err != nil {
		return fmt.Errorf("optimization run failed: %w", err)
	}

	if err := j.sink.Write(ctx, rep); err != nil {
		return fmt.Errorf("failed to deliver report %s: %w", rep.RunID, err)
	}

	j.log.Info().
		Str("run_id", rep.RunID).
		Strs("tickers", rep.Tickers).
		Msg("Scheduled optimization run delivered")

	return nil
}
