// Package spline implements 2D thin-plate-spline interpolation: a smooth
// scalar function through scattered control points, used to carry sparse
// UV-to-image correspondences across the whole UV domain. One spline is
// fitted per image axis.
package spline

import (
	"errors"
	"fmt"
	"math"

	"facetex/pkg/geometry"
)

// ErrSingular means the augmented system could not be solved; the caller
// falls back to a simpler mapping strategy.
var ErrSingular = errors.New("spline: singular system")

// ThinPlateSpline is a fitted interpolant: per-control radial weights plus
// a 3-term affine tail (constant and two linear terms). Created fresh per
// photo and discarded after the dense mapping step.
type ThinPlateSpline struct {
	controls []geometry.Point2D
	weights  []float64 // len(controls) radial terms
	affine   [3]float64
}

// kernel is the thin-plate radial basis U(r) = r^2 * ln(r), expressed on
// the squared distance to avoid the sqrt. U(0) = 0 by continuity.
func kernel(d2 float64) float64 {
	if d2 < 1e-20 {
		return 0
	}
	return 0.5 * d2 * math.Log(d2)
}

// Fit solves the augmented (N+3)x(N+3) thin-plate system for one target
// channel. ridge is a small Tikhonov term added to the radial diagonal for
// stability on near-coincident controls. Any control count >= 3 fits;
// callers with their own minimums must gate separately.
func Fit(controls []geometry.Point2D, targets []float64, ridge float64) (*ThinPlateSpline, error) {
	n := len(controls)
	if n != len(targets) {
		return nil, fmt.Errorf("spline: %d controls vs %d targets", n, len(targets))
	}
	if n < 3 {
		return nil, fmt.Errorf("spline: need at least 3 controls, got %d", n)
	}

	size := n + 3
	a := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
	}
	b := make([]float64, size)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx := controls[i].X - controls[j].X
			dy := controls[i].Y - controls[j].Y
			a[i][j] = kernel(dx*dx + dy*dy)
		}
		a[i][i] += ridge
		a[i][n] = 1
		a[i][n+1] = controls[i].X
		a[i][n+2] = controls[i].Y
		a[n][i] = 1
		a[n+1][i] = controls[i].X
		a[n+2][i] = controls[i].Y
		b[i] = targets[i]
	}

	sol, ok := solveLinear(a, b)
	if !ok {
		return nil, ErrSingular
	}

	s := &ThinPlateSpline{
		controls: append([]geometry.Point2D(nil), controls...),
		weights:  sol[:n],
	}
	copy(s.affine[:], sol[n:])
	return s, nil
}

// Eval returns the interpolated value at p.
func (s *ThinPlateSpline) Eval(p geometry.Point2D) float64 {
	v := s.affine[0] + s.affine[1]*p.X + s.affine[2]*p.Y
	for i, c := range s.controls {
		dx := p.X - c.X
		dy := p.Y - c.Y
		v += s.weights[i] * kernel(dx*dx+dy*dy)
	}
	return v
}

// ControlCount returns the number of control points.
func (s *ThinPlateSpline) ControlCount() int {
	return len(s.controls)
}

// solveLinear runs Gaussian elimination with partial pivoting in place.
// Columns whose best pivot is near zero are skipped (their unknowns stay
// zero) rather than divided through; the overall fit degrades gracefully
// instead of producing NaNs.
func solveLinear(a [][]float64, b []float64) ([]float64, bool) {
	const pivotEps = 1e-12
	n := len(a)
	skipped := make([]bool, n)

	for col := 0; col < n; col++ {
		pivotRow := col
		best := math.Abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(a[r][col]); v > best {
				best = v
				pivotRow = r
			}
		}
		if best < pivotEps {
			skipped[col] = true
			continue
		}
		if pivotRow != col {
			a[col], a[pivotRow] = a[pivotRow], a[col]
			b[col], b[pivotRow] = b[pivotRow], b[col]
		}
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	solvedAny := false
	for col := n - 1; col >= 0; col-- {
		if skipped[col] {
			x[col] = 0
			continue
		}
		sum := b[col]
		for c := col + 1; c < n; c++ {
			sum -= a[col][c] * x[c]
		}
		x[col] = sum / a[col][col]
		if math.IsNaN(x[col]) || math.IsInf(x[col], 0) {
			return nil, false
		}
		solvedAny = true
	}
	return x, solvedAny
}
