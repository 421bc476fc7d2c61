package pipeline

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"facetex/internal/camera"
)

// StrategyNaiveCrop names the terminal mesh-unaware fallback.
const StrategyNaiveCrop = "naive-crop"

// Result is one completed pipeline run.
type Result struct {
	// Atlas is the composited RGBA texture.
	Atlas *image.RGBA
	// Stage is the terminal state the run reached.
	Stage Stage
	// Camera is the accepted perspective camera, nil when no fit
	// succeeded. Exposed for diagnostic overlays.
	Camera *camera.PerspectiveCamera
	// Diagnostics carries the quality-gating scalars.
	Diagnostics Diagnostics
}

// Diagnostics holds the per-run scalars used for automated quality gating
// and offline fallback monitoring.
type Diagnostics struct {
	// Strategy names the dense mapping strategy that produced the atlas.
	Strategy string `json:"strategy"`
	// Correspondences is the usable landmark sample count.
	Correspondences int `json:"correspondences"`
	// ReprojError is the accepted camera's mean reprojection error in
	// normalized image units; zero when no camera was fitted.
	ReprojError float64 `json:"reproj_error"`
	// Coverage is the fraction of fully mapped texels after
	// rasterization.
	Coverage float64 `json:"coverage"`
	// ShapeFitted reports whether the optional accuracy pass ran.
	ShapeFitted bool `json:"shape_fitted"`
	// ShapeIterationErrors holds the per-iteration reprojection errors
	// of the shape fit.
	ShapeIterationErrors []float64 `json:"shape_iteration_errors,omitempty"`
	// Fallbacks counts downgrade transitions taken during the run.
	Fallbacks int `json:"fallbacks"`
}

// Save writes the diagnostics as JSON, for quality gating next to the
// output texture.
func (d *Diagnostics) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal diagnostics: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
