package shapefit

import (
	"errors"
	"math"
	"testing"

	"facetex/internal/camera"
	"facetex/internal/landmark"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// gridTemplate builds a flat 4x4 vertex grid with two basis components:
// component 0 stretches the mesh along X, component 1 along Y. Twelve
// embedding entries anchor landmarks directly on grid vertices.
func gridTemplate() *mesh.Template {
	levels := []float64{-0.075, -0.025, 0.025, 0.075}
	tmpl := &mesh.Template{ComponentCount: 2}
	for _, y := range levels {
		for _, x := range levels {
			tmpl.Vertices = append(tmpl.Vertices, geometry.Point3D{X: x, Y: y})
		}
	}
	vert := func(i, j int) int { return j*4 + i }
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			tmpl.Faces = append(tmpl.Faces,
				[3]int{vert(i, j), vert(i+1, j), vert(i, j+1)},
				[3]int{vert(i+1, j), vert(i+1, j+1), vert(i, j+1)})
		}
	}

	tmpl.ShapeBasis = make([]float64, len(tmpl.Vertices)*3*2)
	for v, p := range tmpl.Vertices {
		tmpl.ShapeBasis[(v*3+0)*2+0] = 2 * p.X // component 0: stretch X
		tmpl.ShapeBasis[(v*3+1)*2+1] = 2 * p.Y // component 1: stretch Y
	}

	// One embedding entry per vertex in the lower three rows, each pinned
	// to a face corner so the surface point is the vertex itself.
	lm := 0
	for j := 0; j < 3; j++ {
		for i := 0; i < 4; i++ {
			var face int
			if i < 3 {
				face = (j*3 + i) * 2 // first triangle of cell (i, j)
			} else {
				face = (j*3+2)*2 + 1 // second triangle of cell (2, j)
			}
			tmpl.Embedding = append(tmpl.Embedding, mesh.EmbeddingEntry{
				Landmark: lm,
				Face:     face,
				Weights:  [3]float64{1, 0, 0},
			})
			lm++
		}
	}
	return tmpl
}

// observe projects the deformed template through a frontal isotropic
// camera into one landmark point per embedding entry.
func observe(tmpl *mesh.Template, coeffs []float64, s float64) *landmark.Set {
	positions := tmpl.Deform(coeffs)
	points := make([]geometry.Point3D, len(tmpl.Embedding))
	for i, e := range tmpl.Embedding {
		p := tmpl.SurfacePoint(e, positions)
		points[i] = geometry.Point3D{X: s*p.X + 0.5, Y: -s*p.Y + 0.5}
	}
	return landmark.NewSet(points)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Regularization = 1e-4
	return opts
}

func TestFitConvergesOnDeformedTarget(t *testing.T) {
	tmpl := gridTemplate()
	trueCoeffs := []float64{0.4, -0.3}
	lm := observe(tmpl, trueCoeffs, 1.8)

	res, err := Fit(tmpl, lm, testOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.Coefficients) != 2 {
		t.Fatalf("got %d coefficients, want 2", len(res.Coefficients))
	}
	if res.FinalError > 5e-3 {
		t.Errorf("final error = %g, want < 5e-3", res.FinalError)
	}
	if len(res.IterationErrors) == 0 || res.FinalError >= res.IterationErrors[0] {
		t.Errorf("final error %g should improve on the first iteration's %v",
			res.FinalError, res.IterationErrors)
	}

	// Scale and stretch coefficients trade off freely for an axis-scaling
	// basis, so check the observable products instead of raw values.
	sx := 1.8 * (1 + 2*trueCoeffs[0])
	sy := 1.8 * (1 + 2*trueCoeffs[1])
	gotX := res.Camera.ScaleX * (1 + 2*res.Coefficients[0])
	gotY := -res.Camera.ScaleY * (1 + 2*res.Coefficients[1])
	if math.Abs(gotX-sx) > 0.05 {
		t.Errorf("x stretch product = %f, want %f", gotX, sx)
	}
	if math.Abs(gotY-sy) > 0.05 {
		t.Errorf("y stretch product = %f, want %f", gotY, sy)
	}
	if res.Coefficients[0] <= 0 || res.Coefficients[1] >= 0 {
		t.Errorf("coefficients = %v, want signs (+, -)", res.Coefficients)
	}
}

func TestFitUndeformedTargetStaysNearZero(t *testing.T) {
	tmpl := gridTemplate()
	lm := observe(tmpl, nil, 1.8)

	res, err := Fit(tmpl, lm, testOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, c := range res.Coefficients {
		if math.Abs(c) > 0.05 {
			t.Errorf("coefficient %d = %f, want near zero for an undeformed target", i, c)
		}
	}
	if res.FinalError > 1e-6 {
		t.Errorf("final error = %g, want ~0 on exact frontal data", res.FinalError)
	}
}

func TestFitCameraIsIsotropic(t *testing.T) {
	tmpl := gridTemplate()
	lm := observe(tmpl, []float64{0.2, 0.1}, 1.8)

	res, err := Fit(tmpl, lm, testOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Camera.Mode != camera.ScaleIsotropic {
		t.Errorf("camera mode = %v, want isotropic", res.Camera.Mode)
	}
	if math.Abs(res.Camera.ScaleX+res.Camera.ScaleY) > 1e-9 {
		t.Errorf("isotropic camera scales = (%f, %f), want mirrored",
			res.Camera.ScaleX, res.Camera.ScaleY)
	}
}

func TestFitNoBasis(t *testing.T) {
	tmpl := gridTemplate()
	tmpl.ComponentCount = 0
	tmpl.ShapeBasis = nil
	lm := observe(tmpl, nil, 1.8)

	if _, err := Fit(tmpl, lm, testOptions()); !errors.Is(err, ErrNoBasis) {
		t.Errorf("err = %v, want ErrNoBasis", err)
	}
}

func TestFitInsufficientLandmarks(t *testing.T) {
	tmpl := gridTemplate()
	lm := observe(tmpl, nil, 1.8)
	// Invalidate all but three landmarks.
	for i := 3; i < len(lm.Points); i++ {
		lm.Points[i].X = math.NaN()
	}

	if _, err := Fit(tmpl, lm, testOptions()); !errors.Is(err, camera.ErrInsufficientSamples) {
		t.Errorf("err = %v, want ErrInsufficientSamples", err)
	}
}

func TestClampCoefficients(t *testing.T) {
	coeffs := []float64{5, -5, 5}
	clampCoefficients(coeffs, 2.5)
	// The bound tapers from 2.5 down to 30% of it across components.
	if coeffs[0] != 2.5 {
		t.Errorf("coeff 0 = %f, want 2.5", coeffs[0])
	}
	if math.Abs(coeffs[2]-0.75) > 1e-12 {
		t.Errorf("coeff 2 = %f, want 0.75", coeffs[2])
	}
	if coeffs[1] >= 0 || coeffs[1] < -2.5 {
		t.Errorf("coeff 1 = %f, want clamped negative", coeffs[1])
	}
}
