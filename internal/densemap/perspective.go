package densemap

import (
	"fmt"

	"facetex/pkg/geometry"
)

// PerspectiveStrategy projects the full vertex set through the fitted
// perspective camera and derives smoothed backface visibility from the
// camera's view direction.
type PerspectiveStrategy struct {
	// BackfaceCut is the normal-dot-view value at and below which a face
	// is fully hidden; FrontFull the value at and above which it is
	// fully visible. Between them the weight ramps with a smoothstep so
	// silhouettes fade instead of tearing.
	BackfaceCut float64
	FrontFull   float64
	// MinValidFraction rejects a projection where too many vertices land
	// behind the camera, which indicates a broken fit rather than a pose.
	MinValidFraction float64
}

// DefaultPerspectiveStrategy returns the strategy with stock thresholds.
func DefaultPerspectiveStrategy() *PerspectiveStrategy {
	return &PerspectiveStrategy{
		BackfaceCut:      -0.1,
		FrontFull:        0.25,
		MinValidFraction: 0.5,
	}
}

// Name implements Strategy.
func (s *PerspectiveStrategy) Name() string { return "dense-perspective" }

// Map implements Strategy.
func (s *PerspectiveStrategy) Map(in Input) (*Mapping, error) {
	if in.Camera == nil {
		return nil, fmt.Errorf("%w: no fitted camera", ErrUnusable)
	}
	tmpl := in.Template
	if !tmpl.HasUVVertexMap() {
		return nil, fmt.Errorf("%w: template has no uv vertex map", ErrUnusable)
	}
	positions := in.Positions
	if positions == nil {
		positions = tmpl.Vertices
	}

	// Project position vertices once, then spread to UV vertices.
	posPoints := make([]geometry.Point2D, len(positions))
	posValid := make([]bool, len(positions))
	validCount := 0
	for i, p := range positions {
		pt, ok := in.Camera.Project(p)
		posPoints[i] = pt
		posValid[i] = ok
		if ok {
			validCount++
		}
	}
	if float64(validCount) < s.MinValidFraction*float64(len(positions)) {
		return nil, fmt.Errorf("%w: only %d of %d vertices projectable",
			ErrUnusable, validCount, len(positions))
	}

	m := &Mapping{
		ImagePoints:    make([]geometry.Point2D, len(tmpl.UV)),
		Valid:          make([]bool, len(tmpl.UV)),
		FaceVisibility: make([]float64, len(tmpl.Faces)),
	}
	for uvIdx := range tmpl.UV {
		posIdx := tmpl.UVToPos(uvIdx)
		m.ImagePoints[uvIdx] = posPoints[posIdx]
		m.Valid[uvIdx] = posValid[posIdx]
	}

	view := in.Camera.ViewDirection()
	for fi, f := range tmpl.Faces {
		n := geometry.TriangleNormal(positions[f[0]], positions[f[1]], positions[f[2]]).Normalized()
		m.FaceVisibility[fi] = s.visibility(n.Dot(view))
	}
	return m, nil
}

// visibility maps a normal-dot-view value to a weight in [0,1] with exact
// zero at and below the backface cutoff.
func (s *PerspectiveStrategy) visibility(dot float64) float64 {
	if dot <= s.BackfaceCut {
		return 0
	}
	if dot >= s.FrontFull {
		return 1
	}
	t := (dot - s.BackfaceCut) / (s.FrontFull - s.BackfaceCut)
	return t * t * (3 - 2*t)
}
