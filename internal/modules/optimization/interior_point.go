package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// InteriorPointSolver is a dense primal-dual interior-point method with
// Mehrotra predictor-corrector steps.
//
// Each iteration solves the reduced Newton system
//
//	(P + GᵀWG) dx + Aᵀdy = r
//	A dx                 = -r_p
//
// with W = diag(z/s), eliminating the equality block through the Schur
// complement A(P + GᵀWG)⁻¹Aᵀ. The inequality rows are kept in sparse form, so
// programs with many simple rows (bounds, per-period downside slacks) stay cheap.
type InteriorPointSolver struct {
	settings SolverSettings
	log      zerolog.Logger
}

// NewInteriorPointSolver creates a solver. Zero-valued settings fall back to defaults.
func NewInteriorPointSolver(settings SolverSettings, log zerolog.Logger) *InteriorPointSolver {
	return &InteriorPointSolver{
		settings: settings.withDefaults(),
		log:      log.With().Str("component", "interior_point").Logger(),
	}
}

// Solve implements Solver.
func (ip *InteriorPointSolver) Solve(ctx context.Context, qp *QuadraticProgram) (*Solution, error) {
	if err := qp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}

	if ip.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ip.settings.Timeout)
		defer cancel()
	}

	n, p, m := qp.Dims()
	g := newSparseRows(qp.G, n)
	a := newSparseRows(qp.A, n)

	if m == 0 {
		return ip.solveEqualityOnly(qp, a)
	}

	kkt := newReducedKKT(qp.P, qp.A, g, a)

	// Starting point: least-squares fit of [P+GᵀG, Aᵀ; A, 0], slacks and
	// multipliers shifted into the positive orthant.
	ones := make([]float64, m)
	for i := range ones {
		ones[i] = 1
	}
	if err := kkt.factor(ones); err != nil {
		return nil, err
	}
	r1 := make([]float64, n)
	g.mulTransVecAdd(r1, qp.H)
	floats.SubTo(r1, r1, qp.Q)
	x, y := kkt.solve(r1, qp.B)

	s := make([]float64, m)
	g.mulVec(s, x)
	floats.SubTo(s, qp.H, s)
	z := make([]float64, m)
	floats.ScaleTo(z, -1, s)
	shiftPositive(s)
	shiftPositive(z)

	var (
		rd = make([]float64, n)
		rp = make([]float64, p)
		ri = make([]float64, m)
		rc = make([]float64, m)
		w  = make([]float64, m)

		scaleP = 1 + math.Max(normInf(qp.B), normInf(qp.H))
		scaleD = 1 + normInf(qp.Q)
		stalls int
	)

	for iter := 1; iter <= ip.settings.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("solver interrupted after %d iterations: %w", iter-1, err)
		}

		ip.residuals(qp, g, a, x, y, z, s, rd, rp, ri)
		mu := floats.Dot(s, z) / float64(m)
		obj := qp.Objective(x)

		pres := math.Max(normInf(rp), normInf(ri)) / scaleP
		dres := normInf(rd) / scaleD
		gap := floats.Dot(s, z) / (1 + math.Abs(obj))

		ip.log.Debug().
			Int("iter", iter).
			Float64("objective", obj).
			Float64("primal_res", pres).
			Float64("dual_res", dres).
			Float64("gap", gap).
			Msg("Interior point iteration")

		if pres <= ip.settings.FeasibilityTol && dres <= ip.settings.FeasibilityTol && gap <= ip.settings.GapTol {
			return &Solution{X: x, Objective: obj, Iterations: iter}, nil
		}
		if normInf(z) > 1e12 || normInf(x) > 1e12 {
			return nil, fmt.Errorf("%w: iterates diverged after %d iterations", ErrInfeasible, iter)
		}

		for i := range w {
			w[i] = z[i] / s[i]
		}
		if err := kkt.factor(w); err != nil {
			if nearOptimal(pres, dres, gap, ip.settings) {
				return &Solution{X: x, Objective: obj, Iterations: iter}, nil
			}
			return nil, err
		}

		// Predictor (affine scaling) step.
		for i := range rc {
			rc[i] = s[i] * z[i]
		}
		_, _, dza, dsa := ip.newtonStep(kkt, g, rd, rp, ri, rc, s, z, w)
		alphaAff := maxStep(s, dsa, z, dza)

		muAff := 0.0
		for i := 0; i < m; i++ {
			muAff += (s[i] + alphaAff*dsa[i]) * (z[i] + alphaAff*dza[i])
		}
		muAff /= float64(m)
		sigma := math.Pow(math.Max(0, muAff/mu), 3)
		if sigma > 1 {
			sigma = 1
		}

		// Corrector step.
		for i := range rc {
			rc[i] = s[i]*z[i] + dsa[i]*dza[i] - sigma*mu
		}
		dx, dy, dz, ds := ip.newtonStep(kkt, g, rd, rp, ri, rc, s, z, w)
		alpha := math.Min(1, 0.99*maxStep(s, ds, z, dz))

		if alpha < 1e-10 {
			stalls++
			if stalls >= 3 {
				if nearOptimal(pres, dres, gap, ip.settings) {
					return &Solution{X: x, Objective: obj, Iterations: iter}, nil
				}
				return nil, fmt.Errorf("%w: step length collapsed after %d iterations", ErrNumerical, iter)
			}
		} else {
			stalls = 0
		}

		floats.AddScaled(x, alpha, dx)
		floats.AddScaled(y, alpha, dy)
		floats.AddScaled(z, alpha, dz)
		floats.AddScaled(s, alpha, ds)
	}

	return nil, fmt.Errorf("%w: %d iterations", ErrMaxIterations, ip.settings.MaxIterations)
}

// residuals fills
//
//	rd = Px + q + Aᵀy + Gᵀz
//	rp = Ax - b
//	ri = Gx + s - h
func (ip *InteriorPointSolver) residuals(qp *QuadraticProgram, g, a *sparseRows, x, y, z, s, rd, rp, ri []float64) {
	symMulVec(rd, qp.P, x)
	floats.Add(rd, qp.Q)
	a.mulTransVecAdd(rd, y)
	g.mulTransVecAdd(rd, z)

	a.mulVec(rp, x)
	floats.Sub(rp, qp.B)

	g.mulVec(ri, x)
	floats.Add(ri, s)
	floats.Sub(ri, qp.H)
}

// newtonStep solves for (dx, dy, dz, ds) given the complementarity target rc.
func (ip *InteriorPointSolver) newtonStep(kkt *reducedKKT, g *sparseRows, rd, rp, ri, rc, s, z, w []float64) (dx, dy, dz, ds []float64) {
	m := len(s)

	// t = W∘ri - rc/s
	t := make([]float64, m)
	for i := 0; i < m; i++ {
		t[i] = w[i]*ri[i] - rc[i]/s[i]
	}

	r1 := make([]float64, len(rd))
	floats.ScaleTo(r1, -1, rd)
	neg := make([]float64, m)
	floats.ScaleTo(neg, -1, t)
	g.mulTransVecAdd(r1, neg)

	r2 := make([]float64, len(rp))
	floats.ScaleTo(r2, -1, rp)

	dx, dy = kkt.solve(r1, r2)

	dz = make([]float64, m)
	g.mulVec(dz, dx)
	for i := 0; i < m; i++ {
		dz[i] = w[i]*(dz[i]+ri[i]) - rc[i]/s[i]
	}

	ds = make([]float64, m)
	for i := 0; i < m; i++ {
		ds[i] = (-rc[i] - s[i]*dz[i]) / z[i]
	}

	return dx, dy, dz, ds
}

func (ip *InteriorPointSolver) solveEqualityOnly(qp *QuadraticProgram, a *sparseRows) (*Solution, error) {
	n := len(qp.Q)
	kkt := newReducedKKT(qp.P, qp.A, newSparseRows(nil, n), a)
	if err := kkt.factor(nil); err != nil {
		return nil, err
	}

	r1 := make([]float64, n)
	floats.ScaleTo(r1, -1, qp.Q)
	x, _ := kkt.solve(r1, qp.B)

	return &Solution{X: x, Objective: qp.Objective(x), Iterations: 1}, nil
}

func nearOptimal(pres, dres, gap float64, s SolverSettings) bool {
	return pres <= 1e3*s.FeasibilityTol && dres <= 1e3*s.FeasibilityTol && gap <= 1e3*s.GapTol
}

// maxStep returns the largest α ≤ 1 keeping s + α ds and z + α dz non-negative.
func maxStep(s, ds, z, dz []float64) float64 {
	alpha := 1.0
	for i := range s {
		if ds[i] < 0 {
			alpha = math.Min(alpha, -s[i]/ds[i])
		}
		if dz[i] < 0 {
			alpha = math.Min(alpha, -z[i]/dz[i])
		}
	}
	return alpha
}

func shiftPositive(v []float64) {
	shift := -floats.Min(v)
	if shift < 0 {
		return
	}
	for i := range v {
		v[i] += 1 + shift
	}
}

func normInf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func symMulVec(dst []float64, p *mat.SymDense, x []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if v := p.At(i, j); v != 0 {
				sum += v * x[j]
			}
		}
		dst[i] = sum
	}
}

// reducedKKT holds the factorization of M = P + GᵀWG and of the Schur
// complement S = A M⁻¹ Aᵀ for the current W.
type reducedKKT struct {
	p  *mat.SymDense
	a  *mat.Dense
	g  *sparseRows
	as *sparseRows

	m     *mat.SymDense
	cholM mat.Cholesky
	v     mat.Dense // M⁻¹Aᵀ
	cholS mat.Cholesky
	rows  int
}

func newReducedKKT(p *mat.SymDense, a *mat.Dense, g, as *sparseRows) *reducedKKT {
	n := p.SymmetricDim()
	k := &reducedKKT{p: p, a: a, g: g, as: as, m: mat.NewSymDense(n, nil)}
	if a != nil {
		k.rows, _ = a.Dims()
	}
	return k
}

func (k *reducedKKT) factor(w []float64) error {
	n := k.p.SymmetricDim()
	k.m.CopySym(k.p)
	if w != nil {
		k.g.addWeightedGram(k.m, w)
	}

	if err := factorizeRegularized(&k.cholM, k.m, n); err != nil {
		return fmt.Errorf("%w: reduced KKT matrix is not positive definite", ErrNumerical)
	}

	if k.rows == 0 {
		return nil
	}

	if err := ignoreCondition(k.cholM.SolveTo(&k.v, k.a.T())); err != nil {
		return fmt.Errorf("%w: %v", ErrNumerical, err)
	}

	var av mat.Dense
	av.Mul(k.a, &k.v)
	schur := mat.NewSymDense(k.rows, nil)
	for i := 0; i < k.rows; i++ {
		for j := i; j < k.rows; j++ {
			schur.SetSym(i, j, 0.5*(av.At(i, j)+av.At(j, i)))
		}
	}
	if err := factorizeRegularized(&k.cholS, schur, k.rows); err != nil {
		return fmt.Errorf("%w: equality constraints are linearly dependent", ErrNumerical)
	}

	return nil
}

// solve returns (dx, dy) with [M Aᵀ; A 0][dx; dy] = [r1; r2].
func (k *reducedKKT) solve(r1, r2 []float64) (dx, dy []float64) {
	n := len(r1)
	var u mat.VecDense
	_ = ignoreCondition(k.cholM.SolveVecTo(&u, mat.NewVecDense(n, append([]float64(nil), r1...))))

	dx = make([]float64, n)
	copy(dx, u.RawVector().Data)
	if k.rows == 0 {
		return dx, nil
	}

	// S dy = A u - r2
	rhs := make([]float64, k.rows)
	k.as.mulVec(rhs, dx)
	floats.Sub(rhs, r2)

	var dyv mat.VecDense
	_ = ignoreCondition(k.cholS.SolveVecTo(&dyv, mat.NewVecDense(k.rows, rhs)))
	dy = make([]float64, k.rows)
	copy(dy, dyv.RawVector().Data)

	// dx = u - V dy
	var vdy mat.VecDense
	vdy.MulVec(&k.v, &dyv)
	floats.Sub(dx, vdy.RawVector().Data)

	return dx, dy
}

// factorizeRegularized factors sym, adding a growing multiple of the identity
// to the diagonal when the plain factorization fails.
func factorizeRegularized(chol *mat.Cholesky, sym *mat.SymDense, n int) error {
	if chol.Factorize(sym) {
		return nil
	}

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(sym.At(i, i)))
	}
	delta := 1e-12 * (1 + maxDiag)
	for attempt := 0; attempt < 4; attempt++ {
		for i := 0; i < n; i++ {
			sym.SetSym(i, i, sym.At(i, i)+delta)
		}
		if chol.Factorize(sym) {
			return nil
		}
		delta *= 100
	}
	return ErrNumerical
}

func ignoreCondition(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

// sparseRows is a row-compressed copy of a constraint matrix.
type sparseRows struct {
	cols [][]int
	vals [][]float64
}

func newSparseRows(d *mat.Dense, n int) *sparseRows {
	sr := &sparseRows{}
	if d == nil {
		return sr
	}
	r, c := d.Dims()
	sr.cols = make([][]int, r)
	sr.vals = make([][]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c && j < n; j++ {
			if v := d.At(i, j); v != 0 {
				sr.cols[i] = append(sr.cols[i], j)
				sr.vals[i] = append(sr.vals[i], v)
			}
		}
	}
	return sr
}

// mulVec sets dst = D x.
func (sr *sparseRows) mulVec(dst, x []float64) {
	for i := range sr.cols {
		var sum float64
		for k, j := range sr.cols[i] {
			sum += sr.vals[i][k] * x[j]
		}
		dst[i] = sum
	}
}

// mulTransVecAdd adds Dᵀy to dst.
func (sr *sparseRows) mulTransVecAdd(dst, y []float64) {
	for i := range sr.cols {
		if y[i] == 0 {
			continue
		}
		for k, j := range sr.cols[i] {
			dst[j] += sr.vals[i][k] * y[i]
		}
	}
}

// addWeightedGram adds Dᵀ diag(w) D to the upper triangle of m.
func (sr *sparseRows) addWeightedGram(m *mat.SymDense, w []float64) {
	for i := range sr.cols {
		cols, vals := sr.cols[i], sr.vals[i]
		for a := range cols {
			for b := a; b < len(cols); b++ {
				ja, jb := cols[a], cols[b]
				v := w[i] * vals[a] * vals[b]
				if ja == jb {
					m.SetSym(ja, ja, m.At(ja, ja)+v)
					continue
				}
				m.SetSym(ja, jb, m.At(ja, jb)+v)
			}
		}
	}
}
