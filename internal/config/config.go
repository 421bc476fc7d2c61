// Package config collects every numeric tunable of the projection pipeline
// behind named, documented parameters.
package config

// Config holds all pipeline settings.
type Config struct {
	Texture    TextureConfig    `yaml:"texture"`
	Camera     CameraConfig     `yaml:"camera"`
	Shape      ShapeConfig      `yaml:"shape"`
	Spline     SplineConfig     `yaml:"spline"`
	Visibility VisibilityConfig `yaml:"visibility"`
	Raster     RasterConfig     `yaml:"raster"`
	Composite  CompositeConfig  `yaml:"composite"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TextureConfig holds output atlas settings.
type TextureConfig struct {
	// Resolution is the square atlas edge in texels.
	Resolution int `yaml:"resolution"`
}

// CameraConfig holds camera fitting settings.
type CameraConfig struct {
	// MinSamples is the minimum correspondence count for any fit.
	MinSamples int `yaml:"min_samples"`
	// MaxReprojError rejects a fit whose mean reprojection error (in
	// normalized image units) exceeds it.
	MaxReprojError float64 `yaml:"max_reproj_error"`
	// YawClamp/PitchClamp/RollClamp bound the Euler angles recovered by
	// the correlation heuristic, in radians. Portraits are near-frontal;
	// anything beyond these is a heuristic blow-up, not a real pose.
	YawClamp   float64 `yaml:"yaw_clamp"`
	PitchClamp float64 `yaml:"pitch_clamp"`
	RollClamp  float64 `yaml:"roll_clamp"`
	// DepthFactor sets the nominal camera distance as a multiple of the
	// mesh radius; larger values flatten the perspective toward affine.
	DepthFactor float64 `yaml:"depth_factor"`
}

// ShapeConfig holds shape-coefficient fitting settings.
type ShapeConfig struct {
	// Enabled turns the optional accuracy pass on.
	Enabled bool `yaml:"enabled"`
	// Iterations is the fixed camera/shape alternation count.
	Iterations int `yaml:"iterations"`
	// MaxComponents caps how many basis components are solved for.
	MaxComponents int `yaml:"max_components"`
	// Regularization is the base Tikhonov weight; higher-order components
	// are weighted up by RegularizationGrowth times their relative order.
	Regularization       float64 `yaml:"regularization"`
	RegularizationGrowth float64 `yaml:"regularization_growth"`
	// ClampBase bounds the first coefficient; later components taper
	// linearly down to 30% of it.
	ClampBase float64 `yaml:"clamp_base"`
	// RidgeRetries is how many times a non-positive-definite normal
	// matrix is re-tried with a multiplied ridge term.
	RidgeRetries int `yaml:"ridge_retries"`
}

// SplineConfig holds thin-plate-spline settings.
type SplineConfig struct {
	// Ridge is the stabilizing diagonal term on the radial block.
	Ridge float64 `yaml:"ridge"`
	// MinControls is the control-point count below which the dense-mapper
	// spline strategy refuses to run. The fitter itself accepts fewer.
	MinControls int `yaml:"min_controls"`
}

// VisibilityConfig holds backface culling settings.
type VisibilityConfig struct {
	// BackfaceCut is the normal-dot-view value at and below which a face
	// is fully hidden.
	BackfaceCut float64 `yaml:"backface_cut"`
	// FrontFull is the dot value at and above which a face is fully
	// visible; between the two the weight ramps smoothly.
	FrontFull float64 `yaml:"front_full"`
}

// RasterConfig holds rasterization settings.
type RasterConfig struct {
	// Overscan tolerates photo-space samples this far outside [0,1]
	// before rejecting them as extrapolation.
	Overscan float64 `yaml:"overscan"`
	// BaryTolerance admits slightly negative barycentric weights so
	// texels on shared edges are written by at least one face.
	BaryTolerance float64 `yaml:"bary_tolerance"`
	// Workers is the number of parallel atlas bands; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// CompositeConfig holds texture post-processing settings.
type CompositeConfig struct {
	// DelightStrength blends the shading correction: 0 keeps the photo
	// lighting, 1 divides it out fully.
	DelightStrength float64 `yaml:"delight_strength"`
	// DelightRadius is the box-blur radius of the shading estimate.
	DelightRadius int `yaml:"delight_radius"`
	// DelightPasses is the iterated blur pass count (2+ approximates a
	// Gaussian).
	DelightPasses int `yaml:"delight_passes"`
	// FeatherRadius is the alpha-boundary blur radius.
	FeatherRadius int `yaml:"feather_radius"`
	// FillRatioMin/FillRatioMax clamp the per-channel color-correction
	// ratio applied to the fallback texture.
	FillRatioMin float64 `yaml:"fill_ratio_min"`
	FillRatioMax float64 `yaml:"fill_ratio_max"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with documented default values.
func Default() *Config {
	return &Config{
		Texture: TextureConfig{
			Resolution: 1024,
		},
		Camera: CameraConfig{
			MinSamples:     10,
			MaxReprojError: 0.1,
			YawClamp:       0.6,
			PitchClamp:     0.6,
			RollClamp:      0.35,
			DepthFactor:    8,
		},
		Shape: ShapeConfig{
			Enabled:              true,
			Iterations:           5,
			MaxComponents:        40,
			Regularization:       0.05,
			RegularizationGrowth: 3,
			ClampBase:            2.5,
			RidgeRetries:         4,
		},
		Spline: SplineConfig{
			Ridge:       1e-6,
			MinControls: 10,
		},
		Visibility: VisibilityConfig{
			BackfaceCut: -0.1,
			FrontFull:   0.25,
		},
		Raster: RasterConfig{
			Overscan:      0.05,
			BaryTolerance: 0.005,
			Workers:       0,
		},
		Composite: CompositeConfig{
			DelightStrength: 0.7,
			DelightRadius:   12,
			DelightPasses:   3,
			FeatherRadius:   2,
			FillRatioMin:    0.5,
			FillRatioMax:    2.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
