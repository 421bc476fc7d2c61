// Package shapefit refines the template's linear shape coefficients so the
// projected mesh tracks the detected 2D landmarks. It alternates between
// re-fitting an isotropic weak-perspective camera and solving a regularized
// linear system for the coefficients.
package shapefit

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"facetex/internal/camera"
	"facetex/internal/correspond"
	"facetex/internal/landmark"
	"facetex/internal/logger"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// ErrNoBasis means the template carries no shape basis to fit.
var ErrNoBasis = errors.New("shapefit: template has no shape basis")

// ErrNotPositiveDefinite means the normal matrix stayed non-PD through all
// ridge retries.
var ErrNotPositiveDefinite = errors.New("shapefit: normal matrix not positive definite")

// Options holds the shape fitting tunables.
type Options struct {
	// Iterations is the fixed camera/shape alternation count. Convergence
	// is not verified; per-iteration errors are logged for diagnostics.
	Iterations int
	// MaxComponents caps how many basis components are solved for.
	MaxComponents int
	// Regularization is the base Tikhonov weight; RegularizationGrowth
	// scales it up linearly toward the last (lowest-variance) component.
	Regularization       float64
	RegularizationGrowth float64
	// ClampBase bounds the first coefficient after fitting; the bound
	// tapers to 30% of it for the last component.
	ClampBase float64
	// RidgeRetries is the retry budget when Cholesky fails.
	RidgeRetries int
	// Camera configures the per-iteration camera fits.
	Camera camera.Options
}

// DefaultOptions returns shape fitting defaults.
func DefaultOptions() Options {
	return Options{
		Iterations:           5,
		MaxComponents:        40,
		Regularization:       0.05,
		RegularizationGrowth: 3,
		ClampBase:            2.5,
		RidgeRetries:         4,
		Camera:               camera.DefaultOptions(),
	}
}

// Result is a completed shape fit.
type Result struct {
	// Coefficients are the clamped shape coefficients, one per solved
	// basis component.
	Coefficients []float64
	// Camera is the final isotropic weak-perspective camera fitted
	// against the deformed sample positions.
	Camera *camera.PerspectiveCamera
	// IterationErrors holds the mean reprojection error after each
	// camera re-fit.
	IterationErrors []float64
	// FinalError is the mean reprojection error of the final camera over
	// the deformed samples.
	FinalError float64
}

// Fit runs the alternating optimization. The camera is solved in isotropic
// mode so image-space anisotropy is absorbed by the shape coefficients
// instead of the projection.
func Fit(tmpl *mesh.Template, lm *landmark.Set, opts Options) (*Result, error) {
	nComp := tmpl.ComponentCount
	if nComp == 0 {
		return nil, ErrNoBasis
	}
	if opts.MaxComponents > 0 && nComp > opts.MaxComponents {
		nComp = opts.MaxComponents
	}

	coeffs := make([]float64, nComp)
	var cam *camera.PerspectiveCamera
	var iterErrs []float64

	// The basis Jacobian at each sample depends only on the template
	// topology, not on the current coefficients; interpolate it once.
	baseSet := correspond.Build(tmpl, lm, nil)
	if baseSet.Count() < opts.Camera.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d",
			camera.ErrInsufficientSamples, baseSet.Count(), opts.Camera.MinSamples)
	}
	sampleBasis := interpolateSampleBasis(tmpl, lm, nComp)

	for iter := 0; iter < opts.Iterations; iter++ {
		positions := tmpl.Deform(coeffs)
		set := correspond.Build(tmpl, lm, positions)

		fitted, meanErr, err := camera.FitWeakPerspective(
			set.MeshPoints(), set.ImagePoints(), camera.ScaleIsotropic, opts.Camera)
		if fitted == nil {
			return nil, fmt.Errorf("shapefit iteration %d: %w", iter, err)
		}
		// A rejected-but-solved camera is still the best available
		// estimate mid-iteration; later iterations tighten it.
		cam = fitted
		iterErrs = append(iterErrs, meanErr)
		logger.Log.Debug("shape fit iteration",
			zap.Int("iteration", iter),
			zap.Float64("reproj_error", meanErr),
			zap.Float64("yaw", cam.Yaw),
			zap.Float64("pitch", cam.Pitch),
			zap.Float64("roll", cam.Roll))

		next, err := solveCoefficients(tmpl, baseSet, sampleBasis, cam, nComp, opts)
		if err != nil {
			return nil, fmt.Errorf("shapefit iteration %d: %w", iter, err)
		}
		coeffs = next
	}

	clampCoefficients(coeffs, opts.ClampBase)

	positions := tmpl.Deform(coeffs)
	set := correspond.Build(tmpl, lm, positions)
	fitted, finalErr, err := camera.FitWeakPerspective(
		set.MeshPoints(), set.ImagePoints(), camera.ScaleIsotropic, opts.Camera)
	if fitted == nil {
		return nil, fmt.Errorf("shapefit final camera: %w", err)
	}

	return &Result{
		Coefficients:    coeffs,
		Camera:          fitted,
		IterationErrors: iterErrs,
		FinalError:      finalErr,
	}, nil
}

// interpolateSampleBasis barycentrically interpolates the per-vertex basis
// displacement at each usable embedding entry. Indexed [sample][component].
func interpolateSampleBasis(tmpl *mesh.Template, lm *landmark.Set, nComp int) [][]geometry.Point3D {
	var out [][]geometry.Point3D
	for _, entry := range tmpl.Embedding {
		if !lm.Valid(entry.Landmark) {
			continue
		}
		f := tmpl.Faces[entry.Face]
		row := make([]geometry.Point3D, nComp)
		for c := 0; c < nComp; c++ {
			row[c] = geometry.Interpolate3D(
				tmpl.BasisDisplacement(f[0], c),
				tmpl.BasisDisplacement(f[1], c),
				tmpl.BasisDisplacement(f[2], c),
				entry.Weights[0], entry.Weights[1], entry.Weights[2])
		}
		out = append(out, row)
	}
	return out
}

// solveCoefficients solves the camera-fixed half step: a Tikhonov-damped
// least squares whose design matrix is the rotated and scaled basis
// Jacobian and whose target is observed 2D minus the projected undeformed
// template.
func solveCoefficients(tmpl *mesh.Template, baseSet *correspond.Set, sampleBasis [][]geometry.Point3D, cam *camera.PerspectiveCamera, nComp int, opts Options) ([]float64, error) {
	n := baseSet.Count()
	rows := 2 * n

	design := mat.NewDense(rows, nComp, nil)
	target := mat.NewVecDense(rows, nil)
	for i, smp := range baseSet.Samples {
		proj := cam.ProjectWeak(smp.MeshPoint)
		target.SetVec(2*i, smp.ImagePoint.X-proj.X)
		target.SetVec(2*i+1, smp.ImagePoint.Y-proj.Y)
		for c := 0; c < nComp; c++ {
			rb := cam.R.Apply(sampleBasis[i][c])
			design.Set(2*i, c, cam.ScaleX*rb.X)
			design.Set(2*i+1, c, cam.ScaleY*rb.Y)
		}
	}

	// Normal equations with per-component Tikhonov damping, weighted
	// more heavily toward higher-order components.
	normal := mat.NewSymDense(nComp, nil)
	var tmp mat.Dense
	tmp.Mul(design.T(), design)
	for i := 0; i < nComp; i++ {
		for j := i; j < nComp; j++ {
			normal.SetSym(i, j, tmp.At(i, j))
		}
	}
	denom := float64(nComp - 1)
	if denom < 1 {
		denom = 1
	}
	for c := 0; c < nComp; c++ {
		frac := float64(c) / denom
		lambda := opts.Regularization * float64(n) * (1 + opts.RegularizationGrowth*frac)
		normal.SetSym(c, c, normal.At(c, c)+lambda)
	}

	rhs := mat.NewVecDense(nComp, nil)
	rhs.MulVec(design.T(), target)

	// Cholesky with automatic ridge retry on non-PD systems.
	var chol mat.Cholesky
	ridge := 0.0
	for attempt := 0; ; attempt++ {
		work := mat.NewSymDense(nComp, nil)
		work.CopySym(normal)
		if ridge > 0 {
			for c := 0; c < nComp; c++ {
				work.SetSym(c, c, work.At(c, c)+ridge)
			}
		}
		if chol.Factorize(work) {
			break
		}
		if attempt >= opts.RidgeRetries {
			return nil, ErrNotPositiveDefinite
		}
		if ridge == 0 {
			ridge = meanDiagonal(normal) * 1e-6
			if ridge <= 0 {
				ridge = 1e-9
			}
		} else {
			ridge *= 10
		}
		logger.Log.Debug("cholesky ridge retry",
			zap.Int("attempt", attempt+1),
			zap.Float64("ridge", ridge))
	}

	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return nil, fmt.Errorf("shapefit: cholesky solve: %w", err)
	}
	out := make([]float64, nComp)
	for c := 0; c < nComp; c++ {
		out[c] = sol.AtVec(c)
	}
	return out, nil
}

// clampCoefficients bounds each coefficient, tighter for later (lower
// variance) components, to keep a noisy fit from producing unrealistic
// deformation.
func clampCoefficients(coeffs []float64, clampBase float64) {
	denom := float64(len(coeffs) - 1)
	if denom < 1 {
		denom = 1
	}
	for c := range coeffs {
		limit := clampBase * (1 - 0.7*float64(c)/denom)
		coeffs[c] = geometry.Clamp(coeffs[c], limit)
	}
}

func meanDiagonal(m *mat.SymDense) float64 {
	n := m.SymmetricDim()
	var sum float64
	for i := 0; i < n; i++ {
		sum += m.At(i, i)
	}
	return sum / float64(n)
}
