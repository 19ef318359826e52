package optimization

import (
	"errors"
	"fmt"
)

// Solver failure causes. They surface wrapped in an OptimizationError.
var (
	ErrMaxIterations = errors.New("iteration limit reached")
	ErrInfeasible    = errors.New("problem is infeasible")
	ErrNumerical     = errors.New("numerical failure")
)

// InsufficientDataError means the estimator could not form a usable return or
// risk model because an asset has too few valid prices after alignment.
type InsufficientDataError struct {
	Asset        string
	Observations int
}

func (e *InsufficientDataError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("insufficient price data: %d aligned observations, need at least 2", e.Observations)
	}
	return fmt.Sprintf("insufficient price data for %s: %d valid observations, need at least 2", e.Asset, e.Observations)
}

// OptimizationError reports that an objective could not be solved: the program
// is infeasible, the target lies outside the achievable frontier, or the solver
// did not converge within its budget.
type OptimizationError struct {
	Objective string
	Reason    string
	Err       error
}

func (e *OptimizationError) Error() string {
	msg := fmt.Sprintf("%s optimization failed", e.Objective)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}

func optimizationFailure(objective Objective, reason string, err error) *OptimizationError {
	return &OptimizationError{Objective: string(objective), Reason: reason, Err: err}
}

// IsOptimizationError reports whether err carries an OptimizationError.
func IsOptimizationError(err error) bool {
	var oe *OptimizationError
	return errors.As(err, &oe)
}
