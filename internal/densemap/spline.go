package densemap

import (
	"fmt"

	"facetex/internal/spline"
	"facetex/pkg/geometry"
)

// SplineStrategy interpolates a smooth UV-to-image correspondence field
// through the sparse landmark correspondences, one thin-plate spline per
// image axis. It has no notion of occlusion: every face is treated as
// fully visible, which is acceptable for the near-frontal photos this
// fallback serves.
type SplineStrategy struct {
	// Ridge stabilizes the spline system diagonal.
	Ridge float64
	// MinControls is the control-point count below which this strategy
	// refuses to run. The spline fitter itself accepts as few as 3; the
	// dense field is only trustworthy with a real spread of controls.
	MinControls int
}

// DefaultSplineStrategy returns the strategy with stock thresholds.
func DefaultSplineStrategy() *SplineStrategy {
	return &SplineStrategy{
		Ridge:       1e-6,
		MinControls: 10,
	}
}

// Name implements Strategy.
func (s *SplineStrategy) Name() string { return "thin-plate-spline" }

// Map implements Strategy.
func (s *SplineStrategy) Map(in Input) (*Mapping, error) {
	tmpl := in.Template
	if len(tmpl.UV) == 0 {
		return nil, fmt.Errorf("%w: template has no uv coordinates", ErrUnusable)
	}
	if in.Samples == nil || len(in.Samples.UVSamples) < s.MinControls {
		have := 0
		if in.Samples != nil {
			have = len(in.Samples.UVSamples)
		}
		return nil, fmt.Errorf("%w: %d uv controls, need %d", ErrUnusable, have, s.MinControls)
	}

	controls := make([]geometry.Point2D, len(in.Samples.UVSamples))
	targetX := make([]float64, len(in.Samples.UVSamples))
	targetY := make([]float64, len(in.Samples.UVSamples))
	for i, smp := range in.Samples.UVSamples {
		controls[i] = smp.UV
		targetX[i] = smp.ImagePoint.X
		targetY[i] = smp.ImagePoint.Y
	}

	splineX, err := spline.Fit(controls, targetX, s.Ridge)
	if err != nil {
		return nil, fmt.Errorf("%w: x channel: %v", ErrUnusable, err)
	}
	splineY, err := spline.Fit(controls, targetY, s.Ridge)
	if err != nil {
		return nil, fmt.Errorf("%w: y channel: %v", ErrUnusable, err)
	}

	m := &Mapping{
		ImagePoints:    make([]geometry.Point2D, len(tmpl.UV)),
		Valid:          make([]bool, len(tmpl.UV)),
		FaceVisibility: make([]float64, len(tmpl.Faces)),
	}
	for i, uv := range tmpl.UV {
		m.ImagePoints[i] = geometry.Point2D{X: splineX.Eval(uv), Y: splineY.Eval(uv)}
		m.Valid[i] = true
	}
	for i := range m.FaceVisibility {
		m.FaceVisibility[i] = 1
	}
	return m, nil
}
