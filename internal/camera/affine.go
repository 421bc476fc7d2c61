package camera

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"facetex/pkg/geometry"
)

// AffineCamera maps 3D mesh points directly to image coordinates with two
// independent linear forms:
//
//	u = a*X + b*Y + c*Z + d
//	v = e*X + f*Y + g*Z + h
//
// No rotation is recovered; this is the workhorse of the spline-mapping
// path, where only a residual gate on the correspondence set is needed.
type AffineCamera struct {
	XCoef [4]float64
	YCoef [4]float64
}

// Project maps a mesh point to image coordinates. Affine projection is
// total, so ok is always true.
func (c *AffineCamera) Project(p geometry.Point3D) (geometry.Point2D, bool) {
	return geometry.Point2D{
		X: c.XCoef[0]*p.X + c.XCoef[1]*p.Y + c.XCoef[2]*p.Z + c.XCoef[3],
		Y: c.YCoef[0]*p.X + c.YCoef[1]*p.Y + c.YCoef[2]*p.Z + c.YCoef[3],
	}, true
}

// FitAffine solves the two 4-unknown systems by least squares over the
// correspondence set and returns the camera plus its RMS reprojection
// residual. The fit is rejected when the mean reprojection error exceeds
// opts.MaxReprojError.
func FitAffine(meshPts []geometry.Point3D, imgPts []geometry.Point2D, opts Options) (*AffineCamera, float64, error) {
	n := len(meshPts)
	if n != len(imgPts) {
		return nil, 0, fmt.Errorf("camera: point count mismatch: %d vs %d", n, len(imgPts))
	}
	if n < opts.MinSamples {
		return nil, 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, n, opts.MinSamples)
	}

	design := mat.NewDense(n, 4, nil)
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	for i, p := range meshPts {
		design.Set(i, 0, p.X)
		design.Set(i, 1, p.Y)
		design.Set(i, 2, p.Z)
		design.Set(i, 3, 1)
		bx.SetVec(i, imgPts[i].X)
		by.SetVec(i, imgPts[i].Y)
	}

	var qr mat.QR
	qr.Factorize(design)

	cam := &AffineCamera{}
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, bx); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}
	for k := 0; k < 4; k++ {
		cam.XCoef[k] = sol.AtVec(k)
	}
	if err := qr.SolveVecTo(&sol, false, by); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}
	for k := 0; k < 4; k++ {
		cam.YCoef[k] = sol.AtVec(k)
	}
	for k := 0; k < 4; k++ {
		if math.IsNaN(cam.XCoef[k]) || math.IsInf(cam.XCoef[k], 0) ||
			math.IsNaN(cam.YCoef[k]) || math.IsInf(cam.YCoef[k], 0) {
			return nil, 0, fmt.Errorf("%w: non-finite coefficients", ErrDegenerateFit)
		}
	}

	var sumSq float64
	for i, p := range meshPts {
		proj, _ := cam.Project(p)
		d := proj.Distance(imgPts[i])
		sumSq += d * d
	}
	rms := math.Sqrt(sumSq / float64(n))

	if meanErr := MeanReprojectionError(cam, meshPts, imgPts); meanErr > opts.MaxReprojError {
		return cam, rms, fmt.Errorf("%w: mean error %.4f > %.4f", ErrFitRejected, meanErr, opts.MaxReprojError)
	}
	return cam, rms, nil
}
