package camera

import (
	"fmt"
	"math"

	"facetex/pkg/geometry"
)

// PerspectiveCamera is a weak-perspective fit promoted to a perspective
// projector: a head rotation, per-axis (or isotropic) scales and a 2D
// translation, plus a depth model that places the camera DepthFactor mesh
// radii in front of the rotated mesh. At the mean sample depth the
// perspective projection coincides with the fitted weak projection.
type PerspectiveCamera struct {
	R geometry.Matrix3
	// Yaw, Pitch, Roll are the clamped Euler angles R was built from.
	Yaw, Pitch, Roll float64
	// ScaleX and ScaleY include the image-Y sign flip when the fit ran
	// in isotropic mode.
	ScaleX, ScaleY float64
	TX, TY         float64
	// CameraDist is the camera plane position along rotated +Z.
	CameraDist float64
	// MeanDepth is the mean of (CameraDist - z) over the fitting samples.
	MeanDepth float64
	// Mode records which scale variant produced this camera.
	Mode ScaleMode
}

// ProjectWeak applies the plain weak-perspective mapping the fit solved:
// rotate, scale, translate, no depth division.
func (c *PerspectiveCamera) ProjectWeak(p geometry.Point3D) geometry.Point2D {
	q := c.R.Apply(p)
	return geometry.Point2D{
		X: c.ScaleX*q.X + c.TX,
		Y: c.ScaleY*q.Y + c.TY,
	}
}

// Project applies the perspective mapping used by the dense stage: each
// rotated point is divided by its camera-space depth. ok is false for
// points at or behind the camera plane.
func (c *PerspectiveCamera) Project(p geometry.Point3D) (geometry.Point2D, bool) {
	q := c.R.Apply(p)
	depth := c.CameraDist - q.Z
	if depth <= 0 {
		return geometry.Point2D{}, false
	}
	fx := c.ScaleX * c.MeanDepth
	fy := c.ScaleY * c.MeanDepth
	return geometry.Point2D{
		X: fx*q.X/depth + c.TX,
		Y: fy*q.Y/depth + c.TY,
	}, true
}

// ViewDirection returns the mesh-space unit vector pointing from the mesh
// toward the camera. Face normals are compared against it for visibility.
func (c *PerspectiveCamera) ViewDirection() geometry.Point3D {
	return c.R.Transpose().Apply(geometry.Point3D{Z: 1}).Normalized()
}

// FitWeakPerspective estimates rotation, scale and translation from the
// correspondence set. The rotation comes from a correlation heuristic, not
// a rigorous PnP solve: covariances between centered 3D and centered 2D
// coordinates yield approximate yaw/pitch/roll through arctangent ratios,
// refined over a few passes and clamped to a plausible frontal range.
// Returns the camera, its mean reprojection error, and a non-nil error
// when the fit is degenerate or rejected by the error gate.
func FitWeakPerspective(meshPts []geometry.Point3D, imgPts []geometry.Point2D, mode ScaleMode, opts Options) (*PerspectiveCamera, float64, error) {
	n := len(meshPts)
	if n != len(imgPts) {
		return nil, 0, fmt.Errorf("camera: point count mismatch: %d vs %d", n, len(imgPts))
	}
	if n < opts.MinSamples {
		return nil, 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, n, opts.MinSamples)
	}

	var yaw, pitch, roll float64
	// Three refinement passes are plenty for frontal portraits; the
	// residual angles shrink fast once the bulk rotation is removed.
	for pass := 0; pass < 3; pass++ {
		r := geometry.RotationFromEuler(yaw, pitch, roll)
		dy, dp, dr, err := estimateAngleResiduals(r, meshPts, imgPts)
		if err != nil {
			return nil, 0, err
		}
		yaw = geometry.Clamp(yaw+dy, opts.YawClamp)
		pitch = geometry.Clamp(pitch+dp, opts.PitchClamp)
		roll = geometry.Clamp(roll+dr, opts.RollClamp)
	}

	r := geometry.RotationFromEuler(yaw, pitch, roll)
	rotated := make([]geometry.Point3D, n)
	for i, p := range meshPts {
		rotated[i] = r.Apply(p)
	}

	st := newStats(rotated, imgPts)
	var sx, sy, tx, ty float64
	switch mode {
	case ScaleIsotropic:
		denom := st.varQX + st.varQY
		if denom < 1e-12 {
			return nil, 0, fmt.Errorf("%w: flat point cloud", ErrDegenerateFit)
		}
		s := (st.covQXU - st.covQYV) / denom
		sx, sy = s, -s
	default:
		if st.varQX < 1e-12 || st.varQY < 1e-12 {
			return nil, 0, fmt.Errorf("%w: flat point cloud", ErrDegenerateFit)
		}
		sx = st.covQXU / st.varQX
		sy = st.covQYV / st.varQY
	}
	tx = st.meanU - sx*st.meanQX
	ty = st.meanV - sy*st.meanQY

	if !isFinite(sx) || !isFinite(sy) || !isFinite(tx) || !isFinite(ty) ||
		math.Abs(sx) < 1e-9 || math.Abs(sy) < 1e-9 {
		return nil, 0, fmt.Errorf("%w: scale sx=%.3g sy=%.3g", ErrDegenerateFit, sx, sy)
	}

	// Depth model: place the camera DepthFactor radii beyond the rotated
	// centroid so every sample has positive depth and the perspective at
	// mean depth matches the weak fit exactly.
	var radius float64
	for _, q := range rotated {
		d := q.Sub(geometry.Point3D{X: st.meanQX, Y: st.meanQY, Z: st.meanQZ}).Length()
		radius = math.Max(radius, d)
	}
	if radius < 1e-9 {
		return nil, 0, fmt.Errorf("%w: collapsed point cloud", ErrDegenerateFit)
	}
	cameraDist := st.meanQZ + opts.DepthFactor*radius

	cam := &PerspectiveCamera{
		R:          r,
		Yaw:        yaw,
		Pitch:      pitch,
		Roll:       roll,
		ScaleX:     sx,
		ScaleY:     sy,
		TX:         tx,
		TY:         ty,
		CameraDist: cameraDist,
		MeanDepth:  cameraDist - st.meanQZ,
		Mode:       mode,
	}

	var total float64
	for i, p := range meshPts {
		total += cam.ProjectWeak(p).Distance(imgPts[i])
	}
	meanErr := total / float64(n)
	if meanErr > opts.MaxReprojError {
		return cam, meanErr, fmt.Errorf("%w: mean error %.4f > %.4f", ErrFitRejected, meanErr, opts.MaxReprojError)
	}
	return cam, meanErr, nil
}

// estimateAngleResiduals recovers small residual Euler angles from the
// covariances between rotated 3D coordinates and observed 2D coordinates.
// First-order model: a residual yaw couples image-u to depth, a residual
// pitch couples image-v to depth, and a residual roll cross-couples u/y
// and v/x.
func estimateAngleResiduals(r geometry.Matrix3, meshPts []geometry.Point3D, imgPts []geometry.Point2D) (yaw, pitch, roll float64, err error) {
	rotated := make([]geometry.Point3D, len(meshPts))
	for i, p := range meshPts {
		rotated[i] = r.Apply(p)
	}
	st := newStats(rotated, imgPts)
	if st.varQX < 1e-12 || st.varQY < 1e-12 {
		return 0, 0, 0, fmt.Errorf("%w: flat point cloud", ErrDegenerateFit)
	}

	// Gross scale estimate; only the ratio matters for the angles.
	s0 := math.Sqrt((st.varU + st.varV) / (st.varQX + st.varQY))
	if s0 < 1e-12 || !isFinite(s0) {
		return 0, 0, 0, fmt.Errorf("%w: collapsed image points", ErrDegenerateFit)
	}

	if st.varQZ > 1e-12 {
		yaw = math.Atan(st.covQZU / (s0 * st.varQZ))
		pitch = math.Atan(st.covQZV / (s0 * st.varQZ))
	}
	roll = math.Atan(-(st.covQYU/st.varQY + st.covQXV/st.varQX) / (2 * s0))
	return yaw, pitch, roll, nil
}

// stats holds the centered first and second moments of a rotated-3D /
// observed-2D sample set.
type stats struct {
	meanQX, meanQY, meanQZ float64
	meanU, meanV           float64
	varQX, varQY, varQZ    float64
	varU, varV             float64
	covQXU, covQYV         float64
	covQZU, covQZV         float64
	covQYU, covQXV         float64
}

func newStats(rotated []geometry.Point3D, imgPts []geometry.Point2D) stats {
	var st stats
	n := float64(len(rotated))
	for i, q := range rotated {
		st.meanQX += q.X
		st.meanQY += q.Y
		st.meanQZ += q.Z
		st.meanU += imgPts[i].X
		st.meanV += imgPts[i].Y
	}
	st.meanQX /= n
	st.meanQY /= n
	st.meanQZ /= n
	st.meanU /= n
	st.meanV /= n
	for i, q := range rotated {
		qx := q.X - st.meanQX
		qy := q.Y - st.meanQY
		qz := q.Z - st.meanQZ
		u := imgPts[i].X - st.meanU
		v := imgPts[i].Y - st.meanV
		st.varQX += qx * qx
		st.varQY += qy * qy
		st.varQZ += qz * qz
		st.varU += u * u
		st.varV += v * v
		st.covQXU += qx * u
		st.covQYV += qy * v
		st.covQZU += qz * u
		st.covQZV += qz * v
		st.covQYU += qy * u
		st.covQXV += qx * v
	}
	st.varQX /= n
	st.varQY /= n
	st.varQZ /= n
	st.varU /= n
	st.varV /= n
	st.covQXU /= n
	st.covQYV /= n
	st.covQZU /= n
	st.covQZV /= n
	st.covQYU /= n
	st.covQXV /= n
	return st
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
