// Package pipeline drives one photo through camera fitting, dense mapping,
// rasterization and compositing, downgrading to strictly simpler
// strategies when a numerically fragile step fails. Each invocation is
// independent and synchronous; only the mesh template is shared, and it is
// never mutated.
package pipeline

import (
	"errors"
	"image"

	"go.uber.org/zap"

	"facetex/internal/camera"
	"facetex/internal/compositor"
	"facetex/internal/config"
	"facetex/internal/correspond"
	"facetex/internal/densemap"
	"facetex/internal/landmark"
	"facetex/internal/logger"
	"facetex/internal/mesh"
	"facetex/internal/rasterize"
	"facetex/internal/shapefit"
)

// ErrNoPhoto is the only hard error: there is nothing to project.
var ErrNoPhoto = errors.New("pipeline: no usable photo")

// Stage is a step in the per-photo state machine.
type Stage int

const (
	StageIdle Stage = iota
	StageCorrespondencesBuilt
	StageCameraFitted
	StageShapeFitted
	StageDenseMapped
	StageRasterized
	StageComposited
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageCorrespondencesBuilt:
		return "correspondences-built"
	case StageCameraFitted:
		return "camera-fitted"
	case StageShapeFitted:
		return "shape-fitted"
	case StageDenseMapped:
		return "dense-mapped"
	case StageRasterized:
		return "rasterized"
	case StageComposited:
		return "composited"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Pipeline projects photos onto one shared mesh template.
type Pipeline struct {
	tmpl *mesh.Template
	cfg  *config.Config
}

// New creates a pipeline bound to a template and configuration. The
// template is referenced, not copied.
func New(tmpl *mesh.Template, cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Pipeline{tmpl: tmpl, cfg: cfg}
}

// Run projects one photo. It returns a filled atlas unless the photo
// itself is missing; every lesser failure downgrades the strategy instead.
func (p *Pipeline) Run(photo *image.RGBA, lm *landmark.Set) (*Result, error) {
	if photo == nil || photo.Bounds().Empty() {
		return nil, ErrNoPhoto
	}

	res := &Result{Stage: StageIdle}
	diag := &res.Diagnostics

	if !lm.Complete() {
		logger.Log.Debug("partial landmark set",
			zap.Int("points", lm.Len()), zap.Int("full", landmark.NumPoints))
	}

	set := correspond.Build(p.tmpl, lm, nil)
	diag.Correspondences = set.Count()
	res.Stage = StageCorrespondencesBuilt

	if set.Count() < p.cfg.Camera.MinSamples {
		logger.Log.Warn("too few correspondences, using naive crop",
			zap.Int("count", set.Count()),
			zap.Int("min", p.cfg.Camera.MinSamples))
		diag.Fallbacks++
		return p.finishNaiveCrop(res, photo, lm)
	}

	positions := p.tmpl.Vertices
	if p.cfg.Shape.Enabled && p.tmpl.ComponentCount > 0 {
		shaped, err := shapefit.Fit(p.tmpl, lm, p.shapeOptions())
		if err != nil {
			logger.Log.Warn("shape fit failed, keeping template shape", zap.Error(err))
			diag.Fallbacks++
		} else {
			positions = p.tmpl.Deform(shaped.Coefficients)
			set = correspond.Build(p.tmpl, lm, positions)
			diag.ShapeFitted = true
			diag.ShapeIterationErrors = shaped.IterationErrors
			res.Stage = StageShapeFitted
		}
	}

	// Texture mapping wants the most accurate projection, so the dense
	// stage always uses the anisotropic variant, fitted against the
	// final (possibly deformed) positions.
	cam, meanErr, err := camera.FitWeakPerspective(
		set.MeshPoints(), set.ImagePoints(), camera.ScaleAnisotropic, p.cameraOptions())
	if err != nil {
		logger.Log.Warn("perspective camera fit unusable", zap.Error(err))
		diag.Fallbacks++
		cam = nil
	} else {
		diag.ReprojError = meanErr
		res.Camera = cam
		if res.Stage < StageCameraFitted {
			res.Stage = StageCameraFitted
		}
	}

	mapping, err := densemap.Resolve(p.strategies(), densemap.Input{
		Template:  p.tmpl,
		Positions: positions,
		Samples:   set,
		Camera:    cam,
	})
	if err != nil {
		logger.Log.Warn("all dense mapping strategies failed, using naive crop", zap.Error(err))
		diag.Fallbacks++
		return p.finishNaiveCrop(res, photo, lm)
	}
	diag.Strategy = mapping.Strategy
	res.Stage = StageDenseMapped

	atlas := rasterize.Render(p.tmpl, mapping, photo, rasterize.Options{
		Resolution:    p.cfg.Texture.Resolution,
		Overscan:      p.cfg.Raster.Overscan,
		BaryTolerance: p.cfg.Raster.BaryTolerance,
		Workers:       p.cfg.Raster.Workers,
	})
	diag.Coverage = rasterize.Coverage(atlas)
	res.Stage = StageRasterized

	compositor.Process(atlas, p.tmpl.Albedo, compositor.Options{
		DelightStrength: p.cfg.Composite.DelightStrength,
		DelightRadius:   p.cfg.Composite.DelightRadius,
		DelightPasses:   p.cfg.Composite.DelightPasses,
		FeatherRadius:   p.cfg.Composite.FeatherRadius,
		FillRatioMin:    p.cfg.Composite.FillRatioMin,
		FillRatioMax:    p.cfg.Composite.FillRatioMax,
	})
	res.Stage = StageComposited

	res.Atlas = atlas
	res.Stage = StageDone
	logger.Log.Info("texture projected",
		zap.String("strategy", diag.Strategy),
		zap.Int("correspondences", diag.Correspondences),
		zap.Float64("reproj_error", diag.ReprojError),
		zap.Float64("coverage", diag.Coverage))
	return res, nil
}

// finishNaiveCrop runs the terminal fallback: a mesh-unaware crop of the
// face region scaled into the atlas.
func (p *Pipeline) finishNaiveCrop(res *Result, photo *image.RGBA, lm *landmark.Set) (*Result, error) {
	atlas := NaiveCrop(photo, lm, p.cfg.Texture.Resolution)
	res.Atlas = atlas
	res.Diagnostics.Strategy = StrategyNaiveCrop
	res.Diagnostics.Coverage = 1
	res.Stage = StageDone
	logger.Log.Info("texture projected",
		zap.String("strategy", StrategyNaiveCrop),
		zap.Int("correspondences", res.Diagnostics.Correspondences))
	return res, nil
}

func (p *Pipeline) cameraOptions() camera.Options {
	return camera.Options{
		MinSamples:     p.cfg.Camera.MinSamples,
		MaxReprojError: p.cfg.Camera.MaxReprojError,
		YawClamp:       p.cfg.Camera.YawClamp,
		PitchClamp:     p.cfg.Camera.PitchClamp,
		RollClamp:      p.cfg.Camera.RollClamp,
		DepthFactor:    p.cfg.Camera.DepthFactor,
	}
}

func (p *Pipeline) shapeOptions() shapefit.Options {
	return shapefit.Options{
		Iterations:           p.cfg.Shape.Iterations,
		MaxComponents:        p.cfg.Shape.MaxComponents,
		Regularization:       p.cfg.Shape.Regularization,
		RegularizationGrowth: p.cfg.Shape.RegularizationGrowth,
		ClampBase:            p.cfg.Shape.ClampBase,
		RidgeRetries:         p.cfg.Shape.RidgeRetries,
		Camera:               p.cameraOptions(),
	}
}

func (p *Pipeline) strategies() []densemap.Strategy {
	return []densemap.Strategy{
		&densemap.PerspectiveStrategy{
			BackfaceCut:      p.cfg.Visibility.BackfaceCut,
			FrontFull:        p.cfg.Visibility.FrontFull,
			MinValidFraction: 0.5,
		},
		&densemap.SplineStrategy{
			Ridge:       p.cfg.Spline.Ridge,
			MinControls: p.cfg.Spline.MinControls,
		},
	}
}
