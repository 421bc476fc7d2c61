// Package densemap produces a dense per-UV-vertex image coordinate map
// from a fitted camera or, failing that, from a thin-plate-spline
// interpolation of the sparse correspondences. Strategies share one
// interface and are tried in order; the first success wins.
package densemap

import (
	"errors"

	"go.uber.org/zap"

	"facetex/internal/camera"
	"facetex/internal/correspond"
	"facetex/internal/logger"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// ErrUnusable means a strategy cannot produce a usable mapping for this
// input; the driver moves on to the next strategy.
var ErrUnusable = errors.New("densemap: strategy unusable")

// Mapping assigns an image coordinate to every UV vertex plus a visibility
// weight to every face.
type Mapping struct {
	// ImagePoints holds one image coordinate per UV vertex; only entries
	// with Valid true are meaningful.
	ImagePoints []geometry.Point2D
	Valid       []bool
	// FaceVisibility holds one weight in [0,1] per mesh face; 0 excludes
	// the face from rasterization.
	FaceVisibility []float64
	// Strategy names the strategy that produced the mapping.
	Strategy string
}

// Input carries everything a strategy may need.
type Input struct {
	Template *mesh.Template
	// Positions are the current (possibly deformed) vertex positions.
	Positions []geometry.Point3D
	// Samples are the sparse correspondences for spline fitting.
	Samples *correspond.Set
	// Camera is the fitted perspective camera; nil for camera-free
	// strategies.
	Camera *camera.PerspectiveCamera
}

// Strategy produces a dense mapping or reports itself unusable.
type Strategy interface {
	Name() string
	Map(in Input) (*Mapping, error)
}

// Resolve tries the strategies in order and returns the first successful
// mapping. Every skip is logged; silent degradation changes output quality
// materially and must stay observable.
func Resolve(strategies []Strategy, in Input) (*Mapping, error) {
	var lastErr error
	for _, s := range strategies {
		m, err := s.Map(in)
		if err == nil {
			m.Strategy = s.Name()
			return m, nil
		}
		lastErr = err
		logger.Log.Warn("dense mapping strategy failed",
			zap.String("strategy", s.Name()),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = ErrUnusable
	}
	return nil, lastErr
}
