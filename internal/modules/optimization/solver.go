package optimization

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// QuadraticProgram is
//
//	minimize   ½ xᵀPx + qᵀx
//	subject to Ax = b
//	           Gx ≤ h
//
// A and G may be nil when there are no constraints of that kind.
type QuadraticProgram struct {
	P *mat.SymDense
	Q []float64
	A *mat.Dense
	B []float64
	G *mat.Dense
	H []float64
}

// Dims returns the number of variables, equality rows and inequality rows.
func (qp *QuadraticProgram) Dims() (n, p, m int) {
	n = len(qp.Q)
	if qp.A != nil {
		p, _ = qp.A.Dims()
	}
	if qp.G != nil {
		m, _ = qp.G.Dims()
	}
	return n, p, m
}

// Validate checks that every block has a consistent shape and finite entries.
func (qp *QuadraticProgram) Validate() error {
	n, p, m := qp.Dims()
	if n == 0 {
		return fmt.Errorf("quadratic program has no variables")
	}
	if qp.P == nil || qp.P.SymmetricDim() != n {
		return fmt.Errorf("P must be %dx%d", n, n)
	}
	if qp.A != nil {
		if _, c := qp.A.Dims(); c != n {
			return fmt.Errorf("A has %d columns, expected %d", c, n)
		}
		if len(qp.B) != p {
			return fmt.Errorf("b has %d entries, expected %d", len(qp.B), p)
		}
	}
	if qp.G != nil {
		if _, c := qp.G.Dims(); c != n {
			return fmt.Errorf("G has %d columns, expected %d", c, n)
		}
		if len(qp.H) != m {
			return fmt.Errorf("h has %d entries, expected %d", len(qp.H), m)
		}
	}

	for _, v := range [][]float64{qp.Q, qp.B, qp.H} {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("non-finite coefficient in program")
			}
		}
	}
	if err := finiteMatrix("P", qp.P); err != nil {
		return err
	}
	if qp.A != nil {
		if err := finiteMatrix("A", qp.A); err != nil {
			return err
		}
	}
	if qp.G != nil {
		if err := finiteMatrix("G", qp.G); err != nil {
			return err
		}
	}

	return nil
}

func finiteMatrix(name string, m mat.Matrix) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if x := m.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("non-finite entry in %s at (%d, %d)", name, i, j)
			}
		}
	}
	return nil
}

// Objective evaluates ½ xᵀPx + qᵀx.
func (qp *QuadraticProgram) Objective(x []float64) float64 {
	n := len(x)
	var quad, lin float64
	for i := 0; i < n; i++ {
		var row float64
		for j := 0; j < n; j++ {
			row += qp.P.At(i, j) * x[j]
		}
		quad += x[i] * row
		lin += qp.Q[i] * x[i]
	}
	return 0.5*quad + lin
}

// Solution is the primal optimum of a QuadraticProgram.
type Solution struct {
	X          []float64
	Objective  float64
	Iterations int
}

// SolverSettings bounds the work a solver may do.
type SolverSettings struct {
	MaxIterations  int
	Timeout        time.Duration // zero means no solver-imposed deadline
	FeasibilityTol float64
	GapTol         float64
}

// DefaultSolverSettings returns the settings used when none are configured.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		MaxIterations:  200,
		Timeout:        30 * time.Second,
		FeasibilityTol: 1e-8,
		GapTol:         1e-9,
	}
}

func (s SolverSettings) withDefaults() SolverSettings {
	d := DefaultSolverSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.FeasibilityTol <= 0 {
		s.FeasibilityTol = d.FeasibilityTol
	}
	if s.GapTol <= 0 {
		s.GapTol = d.GapTol
	}
	return s
}
