package optimization

import (
	"context"

	"github.com/aristath/frontier/internal/modules/allocation"
)

// Solver solves convex quadratic programs. Implementations must honour ctx.
type Solver interface {
	Solve(ctx context.Context, qp *QuadraticProgram) (*Solution, error)
}

// Allocator turns fractional weights into whole shares under a cash budget.
type Allocator interface {
	Greedy(weights map[string]float64, prices map[string]float64, budget float64) (*allocation.Allocation, error)
}
