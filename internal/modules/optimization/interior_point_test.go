package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestSolver() *InteriorPointSolver {
	return NewInteriorPointSolver(DefaultSolverSettings(), zerolog.Nop())
}

func TestInteriorPoint_EqualityConstrained(t *testing.T) {
	// minimize ½(x1² + x2²) - x1 - x2  s.t. x1 + x2 = 1
	qp := &QuadraticProgram{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Q: []float64{-1, -1},
		A: mat.NewDense(1, 2, []float64{1, 1}),
		B: []float64{1},
	}

	sol, err := newTestSolver().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sol.X[0], 1e-9)
	assert.InDelta(t, 0.5, sol.X[1], 1e-9)
	assert.InDelta(t, -0.75, sol.Objective, 1e-9)
}

func TestInteriorPoint_WeightedEquality(t *testing.T) {
	// minimize ½(x1² + 3x2²)  s.t. x1 + x2 = 1  ->  x = (0.75, 0.25)
	qp := &QuadraticProgram{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 3}),
		Q: []float64{0, 0},
		A: mat.NewDense(1, 2, []float64{1, 1}),
		B: []float64{1},
	}

	sol, err := newTestSolver().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, sol.X[0], 1e-9)
	assert.InDelta(t, 0.25, sol.X[1], 1e-9)
}

func TestInteriorPoint_ActiveInequality(t *testing.T) {
	// minimize ½x² - 2x  s.t. x ≤ 1  ->  x = 1
	qp := &QuadraticProgram{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{-2},
		G: mat.NewDense(1, 1, []float64{1}),
		H: []float64{1},
	}

	sol, err := newTestSolver().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sol.X[0], 1e-7)
}

func TestInteriorPoint_InactiveInequality(t *testing.T) {
	// minimize ½x² - 0.5x  s.t. x ≤ 1  ->  x = 0.5
	qp := &QuadraticProgram{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{-0.5},
		G: mat.NewDense(1, 1, []float64{1}),
		H: []float64{1},
	}

	sol, err := newTestSolver().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sol.X[0], 1e-7)
}

func TestInteriorPoint_LinearProgram(t *testing.T) {
	// minimize -x1 - 2x2  s.t. x1 + x2 = 1, x ≥ 0  ->  x = (0, 1)
	qp := &QuadraticProgram{
		P: mat.NewSymDense(2, nil),
		Q: []float64{-1, -2},
		A: mat.NewDense(1, 2, []float64{1, 1}),
		B: []float64{1},
		G: mat.NewDense(2, 2, []float64{-1, 0, 0, -1}),
		H: []float64{0, 0},
	}

	sol, err := newTestSolver().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sol.X[0], 1e-6)
	assert.InDelta(t, 1.0, sol.X[1], 1e-6)
}

func TestInteriorPoint_Infeasible(t *testing.T) {
	// x ≥ 1 and x ≤ 0
	qp := &QuadraticProgram{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{0},
		G: mat.NewDense(2, 1, []float64{-1, 1}),
		H: []float64{-1, 0},
	}

	_, err := newTestSolver().Solve(context.Background(), qp)
	assert.Error(t, err)
}

func TestInteriorPoint_IterationLimit(t *testing.T) {
	solver := NewInteriorPointSolver(SolverSettings{MaxIterations: 1}, zerolog.Nop())
	qp := &QuadraticProgram{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{-2},
		G: mat.NewDense(1, 1, []float64{1}),
		H: []float64{1},
	}

	_, err := solver.Solve(context.Background(), qp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxIterations))
}

func TestInteriorPoint_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	qp := &QuadraticProgram{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{-2},
		G: mat.NewDense(1, 1, []float64{1}),
		H: []float64{1},
	}

	_, err := newTestSolver().Solve(ctx, qp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestQuadraticProgram_Validate(t *testing.T) {
	tests := []struct {
		name string
		qp   *QuadraticProgram
	}{
		{
			name: "no variables",
			qp:   &QuadraticProgram{P: mat.NewSymDense(1, nil)},
		},
		{
			name: "P wrong size",
			qp:   &QuadraticProgram{P: mat.NewSymDense(1, nil), Q: []float64{0, 0}},
		},
		{
			name: "A column mismatch",
			qp: &QuadraticProgram{
				P: mat.NewSymDense(2, nil), Q: []float64{0, 0},
				A: mat.NewDense(1, 3, nil), B: []float64{1},
			},
		},
		{
			name: "h length mismatch",
			qp: &QuadraticProgram{
				P: mat.NewSymDense(2, nil), Q: []float64{0, 0},
				G: mat.NewDense(1, 2, nil), H: []float64{1, 2},
			},
		},
		{
			name: "non-finite q",
			qp:   &QuadraticProgram{P: mat.NewSymDense(1, nil), Q: []float64{math.NaN()}},
		},
		{
			name: "non-finite P",
			qp:   &QuadraticProgram{P: mat.NewSymDense(1, []float64{math.Inf(1)}), Q: []float64{0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.qp.Validate())
			_, err := newTestSolver().Solve(context.Background(), tt.qp)
			assert.Error(t, err)
		})
	}
}

func TestQuadraticProgram_Objective(t *testing.T) {
	qp := &QuadraticProgram{
		P: mat.NewSymDense(2, []float64{2, 1, 1, 4}),
		Q: []float64{1, -1},
	}
	// ½(2+1+1+4) + (1-1) at x = (1, 1)
	assert.InDelta(t, 4.0, qp.Objective([]float64{1, 1}), 1e-12)
}
