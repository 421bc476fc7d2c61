// Package camera fits projection models from sparse 3D-to-2D landmark
// correspondences. Two fits are provided behind one contract: a direct
// affine mapping and a weak/perspective model built on a rotation
// heuristic. Both gate acceptance on mean reprojection error.
package camera

import (
	"errors"

	"facetex/pkg/geometry"
)

// Expected degenerate conditions. These flow back as values so the
// pipeline driver can pick a simpler strategy instead of unwinding.
var (
	// ErrInsufficientSamples means fewer correspondences than MinSamples.
	ErrInsufficientSamples = errors.New("camera: insufficient samples")
	// ErrDegenerateFit means the solve produced a singular, near-zero or
	// non-finite parameterization.
	ErrDegenerateFit = errors.New("camera: degenerate fit")
	// ErrFitRejected means the fit solved but reprojects worse than the
	// configured tolerance.
	ErrFitRejected = errors.New("camera: reprojection error above threshold")
)

// Model projects mesh-space points into normalized image coordinates.
// ok is false when the point is not projectable (behind the camera).
type Model interface {
	Project(p geometry.Point3D) (geometry.Point2D, bool)
}

// ScaleMode selects how the weak-perspective scale is solved.
type ScaleMode int

const (
	// ScaleAnisotropic solves independent X and Y scales; most accurate
	// for texture mapping.
	ScaleAnisotropic ScaleMode = iota
	// ScaleIsotropic solves one scale with a fixed Y sign flip, forcing
	// any anisotropy into the shape coefficients during shape fitting.
	ScaleIsotropic
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleAnisotropic:
		return "anisotropic"
	case ScaleIsotropic:
		return "isotropic"
	default:
		return "unknown"
	}
}

// Options holds the camera fitting tunables.
type Options struct {
	// MinSamples is the minimum correspondence count for any fit.
	MinSamples int
	// MaxReprojError is the acceptance gate on mean reprojection error,
	// in normalized image units.
	MaxReprojError float64
	// YawClamp, PitchClamp and RollClamp bound the recovered Euler
	// angles in radians.
	YawClamp   float64
	PitchClamp float64
	RollClamp  float64
	// DepthFactor sets the nominal camera distance as a multiple of the
	// mesh radius.
	DepthFactor float64
}

// DefaultOptions returns fitting defaults for near-frontal portraits.
func DefaultOptions() Options {
	return Options{
		MinSamples:     10,
		MaxReprojError: 0.1,
		YawClamp:       0.6,
		PitchClamp:     0.6,
		RollClamp:      0.35,
		DepthFactor:    8,
	}
}

// MeanReprojectionError returns the mean Euclidean distance between the
// projected mesh points and their observed image points. Unprojectable
// points count as full-frame misses.
func MeanReprojectionError(m Model, meshPts []geometry.Point3D, imgPts []geometry.Point2D) float64 {
	if len(meshPts) == 0 {
		return 0
	}
	var total float64
	for i, p := range meshPts {
		proj, ok := m.Project(p)
		if !ok {
			total += 1
			continue
		}
		total += proj.Distance(imgPts[i])
	}
	return total / float64(len(meshPts))
}
