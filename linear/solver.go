package linear

import (
	"math"
	"slices"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Solution is the outcome of a least-squares solve.
type Solution struct {
	// Coef holds one coefficient per column of the design matrix. Removed
	// columns are 0.
	Coef []float64
	// Scale is (XᵀWX)⁻¹ (or its pseudo-inverse), sized to the full design
	// matrix with zero rows and columns at removed positions. The covariance
	// of Coef is MSE × Scale.
	Scale *mat.Dense
	// Removed lists the design-matrix columns dropped as collinear.
	Removed []int
}

// Solver fits weighted ordinary least squares. w is nil for an unweighted
// fit.
type Solver interface {
	Solve(x *mat.Dense, y *mat.VecDense, w []float64) (*Solution, error)
}

// NormalEquations solves (XᵀWX)β = XᵀWy by inversion. When XᵀWX is singular
// it drops constant columns (never column 0 when Intercept is set) and the
// second column of each linearly dependent pair, then retries once.
type NormalEquations struct {
	Intercept bool
}

// Solve implements Solver.
func (s NormalEquations) Solve(x *mat.Dense, y *mat.VecDense, w []float64) (*Solution, error) {
	const op = "NormalEquations.Solve"
	_, cols := x.Dims()

	inv, xtw, err := invertGram(x, w)
	var removed []int
	if err != nil {
		removed = s.collinear(x)
		if len(removed) == 0 || len(removed) == cols {
			return nil, errors.NewUnstableSolutionError(op, removed)
		}
		x = dropColumns(x, removed)
		inv, xtw, err = invertGram(x, w)
		if err != nil {
			return nil, errors.NewUnstableSolutionError(op, removed)
		}
	}

	n, _ := inv.Dims()
	for i := 0; i < n; i++ {
		if inv.At(i, i) < 0 {
			return nil, errors.NewUnstableSolutionError(op, removed)
		}
	}

	// (XᵀW)y first keeps the product small.
	var xtwy, beta mat.VecDense
	xtwy.MulVec(xtw, y)
	beta.MulVec(inv, &xtwy)

	kept := make([]int, 0, n)
	for j := 0; j < cols; j++ {
		if !slices.Contains(removed, j) {
			kept = append(kept, j)
		}
	}
	coef := make([]float64, cols)
	scale := mat.NewDense(cols, cols, nil)
	for a, i := range kept {
		coef[i] = beta.AtVec(a)
		for b, j := range kept {
			scale.Set(i, j, inv.At(a, b))
		}
	}
	return &Solution{Coef: coef, Scale: scale, Removed: removed}, nil
}

// invertGram returns (XᵀWX)⁻¹ and XᵀW. Any inversion error, including a
// mat.Condition warning, is treated as singular.
func invertGram(x *mat.Dense, w []float64) (*mat.Dense, *mat.Dense, error) {
	var xtw mat.Dense
	xtw.CloneFrom(x.T())
	if w != nil {
		r, c := xtw.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				xtw.Set(i, j, xtw.At(i, j)*w[j])
			}
		}
	}
	var gram, inv mat.Dense
	gram.Mul(&xtw, x)
	if err := inv.Inverse(&gram); err != nil {
		return nil, nil, errors.Wrap(errors.ErrSingularMatrix, err.Error())
	}
	return &inv, &xtw, nil
}

// collinear returns the sorted columns to drop: constant columns first, then
// the second column of every dependent pair among the rest.
func (s NormalEquations) collinear(x *mat.Dense) []int {
	_, cols := x.Dims()
	start := 0
	if s.Intercept {
		start = 1
	}

	var removed, varying []int
	for j := start; j < cols; j++ {
		if constant(mat.Col(nil, j, x)) {
			removed = append(removed, j)
		} else {
			varying = append(varying, j)
		}
	}
	for a := 0; a < len(varying); a++ {
		for b := a + 1; b < len(varying); b++ {
			i, j := varying[a], varying[b]
			if !slices.Contains(removed, j) && dependent(mat.Col(nil, i, x), mat.Col(nil, j, x)) {
				removed = append(removed, j)
			}
		}
	}
	slices.Sort(removed)
	return removed
}

func constant(v []float64) bool {
	for _, x := range v {
		if x != v[0] {
			return false
		}
	}
	return true
}

// dependent reports whether a and b are parallel, i.e. (a·b)² = |a|²|b|² up to
// rounding.
func dependent(a, b []float64) bool {
	va, vb := mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b)
	ab := mat.Dot(va, vb)
	aa := mat.Dot(va, va)
	bb := mat.Dot(vb, vb)
	if aa == 0 || bb == 0 {
		return true
	}
	return math.Abs(ab*ab-aa*bb) <= 1e-10*aa*bb
}

func dropColumns(x *mat.Dense, removed []int) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols-len(removed), nil)
	k := 0
	for j := 0; j < cols; j++ {
		if slices.Contains(removed, j) {
			continue
		}
		out.SetCol(k, mat.Col(nil, j, x))
		k++
	}
	return out
}

// SVDSolver finds the minimum-norm weighted least-squares solution through a
// thin singular value decomposition. It succeeds on rank-deficient designs.
type SVDSolver struct {
	// RCond is the relative cutoff below which singular values count as zero.
	// Zero selects max(rows, cols) × machine epsilon.
	RCond float64
}

// Solve implements Solver.
func (s SVDSolver) Solve(x *mat.Dense, y *mat.VecDense, w []float64) (*Solution, error) {
	const op = "SVDSolver.Solve"
	rows, cols := x.Dims()

	xw := mat.DenseCopyOf(x)
	yw := mat.VecDenseCopyOf(y)
	if w != nil {
		for i := 0; i < rows; i++ {
			sw := math.Sqrt(w[i])
			row := xw.RawRowView(i)
			for j := range row {
				row[j] *= sw
			}
			yw.SetVec(i, yw.AtVec(i)*sw)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(xw, mat.SVDThin); !ok {
		return nil, errors.NewUnstableSolutionError(op, nil)
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rcond := s.RCond
	if rcond == 0 {
		rcond = float64(max(rows, cols)) * 2.220446049250313e-16
	}
	cutoff := 0.0
	if len(values) > 0 {
		cutoff = values[0] * rcond
	}

	// β = V Σ⁺ Uᵀ y and Scale = V Σ⁺² Vᵀ.
	var uty mat.VecDense
	uty.MulVec(u.T(), yw)
	inv := make([]float64, len(values))
	inv2 := make([]float64, len(values))
	for i, sv := range values {
		if sv > cutoff {
			inv[i] = 1 / sv
			inv2[i] = 1 / (sv * sv)
			uty.SetVec(i, uty.AtVec(i)*inv[i])
		} else {
			uty.SetVec(i, 0)
		}
	}
	var beta mat.VecDense
	beta.MulVec(&v, &uty)

	var vs mat.Dense
	vs.CloneFrom(&v)
	r, c := vs.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			vs.Set(i, j, vs.At(i, j)*inv2[j])
		}
	}
	var scale mat.Dense
	scale.Mul(&vs, v.T())

	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	return &Solution{Coef: coef, Scale: &scale}, nil
}
