package pipeline

import (
	"errors"
	"image"
	"math"
	"testing"

	"facetex/internal/config"
	"facetex/internal/landmark"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// gridTemplate builds a flat 4x4 vertex grid whose UV parameterization
// spans the full atlas, with twelve landmarks pinned on grid vertices.
func gridTemplate(t *testing.T) *mesh.Template {
	t.Helper()
	levels := []float64{-0.075, -0.025, 0.025, 0.075}
	tmpl := &mesh.Template{}
	for _, y := range levels {
		for _, x := range levels {
			tmpl.Vertices = append(tmpl.Vertices, geometry.Point3D{X: x, Y: y})
			tmpl.UV = append(tmpl.UV, geometry.Point2D{
				X: (x + 0.075) / 0.15,
				Y: (y + 0.075) / 0.15,
			})
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
	tmpl.UVFaces = append([][3]int(nil), tmpl.Faces...)

	lm := 0
	for j := 0; j < 3; j++ {
		for i := 0; i < 4; i++ {
			var face int
			if i < 3 {
				face = (j*3 + i) * 2
			} else {
				face = (j*3+2)*2 + 1
			}
			tmpl.Embedding = append(tmpl.Embedding, mesh.EmbeddingEntry{
				Landmark: lm,
				Face:     face,
				Weights:  [3]float64{1, 0, 0},
			})
			lm++
		}
	}

	if err := tmpl.Validate(); err != nil {
		t.Fatalf("template: %v", err)
	}
	if err := tmpl.BuildUVVertexMap(); err != nil {
		t.Fatalf("uv map: %v", err)
	}
	return tmpl
}

// frontalLandmarks projects every embedded vertex with a frontal camera.
func frontalLandmarks(tmpl *mesh.Template) *landmark.Set {
	points := make([]geometry.Point3D, len(tmpl.Embedding))
	for i, e := range tmpl.Embedding {
		p := tmpl.SurfacePoint(e, nil)
		points[i] = geometry.Point3D{X: 1.8*p.X + 0.5, Y: -1.8*p.Y + 0.5}
	}
	return landmark.NewSet(points)
}

func solidPhoto(r, g, b uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = 255
	}
	return img
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Texture.Resolution = 64
	cfg.Raster.Workers = 1
	return cfg
}

func TestRunFullPipeline(t *testing.T) {
	tmpl := gridTemplate(t)
	p := New(tmpl, testConfig())

	res, err := p.Run(solidPhoto(180, 120, 60), frontalLandmarks(tmpl))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stage != StageDone {
		t.Errorf("stage = %v, want done", res.Stage)
	}
	if res.Diagnostics.Strategy != "dense-perspective" {
		t.Errorf("strategy = %q, want dense-perspective", res.Diagnostics.Strategy)
	}
	if res.Diagnostics.Correspondences != len(tmpl.Embedding) {
		t.Errorf("correspondences = %d, want %d",
			res.Diagnostics.Correspondences, len(tmpl.Embedding))
	}
	if res.Diagnostics.ReprojError > 0.01 {
		t.Errorf("reproj error = %f on exact synthetic data", res.Diagnostics.ReprojError)
	}
	if res.Diagnostics.Coverage < 0.5 {
		t.Errorf("coverage = %f, want most of the atlas mapped", res.Diagnostics.Coverage)
	}
	if res.Atlas.Bounds().Dx() != 64 || res.Atlas.Bounds().Dy() != 64 {
		t.Errorf("atlas bounds = %v, want 64x64", res.Atlas.Bounds())
	}
	for i := 3; i < len(res.Atlas.Pix); i += 4 {
		if res.Atlas.Pix[i] != 255 {
			t.Fatalf("alpha byte %d = %d, the composited atlas must be opaque", i, res.Atlas.Pix[i])
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	tmpl := gridTemplate(t)
	photo := solidPhoto(90, 140, 200)
	lm := frontalLandmarks(tmpl)

	a, err := New(tmpl, testConfig()).Run(photo, lm)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	cfg := testConfig()
	cfg.Raster.Workers = 4
	b, err := New(tmpl, cfg).Run(solidPhoto(90, 140, 200), lm)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(a.Atlas.Pix) != len(b.Atlas.Pix) {
		t.Fatal("atlas sizes differ")
	}
	for i := range a.Atlas.Pix {
		if a.Atlas.Pix[i] != b.Atlas.Pix[i] {
			t.Fatalf("atlas byte %d differs between runs", i)
		}
	}
}

func TestRunFallsBackToNaiveCrop(t *testing.T) {
	tmpl := gridTemplate(t)
	lm := frontalLandmarks(tmpl)
	// Leave only three usable landmarks.
	for i := 3; i < len(lm.Points); i++ {
		lm.Points[i].X = math.NaN()
	}

	res, err := New(tmpl, testConfig()).Run(solidPhoto(200, 200, 200), lm)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Diagnostics.Strategy != StrategyNaiveCrop {
		t.Errorf("strategy = %q, want %q", res.Diagnostics.Strategy, StrategyNaiveCrop)
	}
	if res.Diagnostics.Fallbacks == 0 {
		t.Error("fallback counter should record the downgrade")
	}
	if res.Stage != StageDone {
		t.Errorf("stage = %v, want done", res.Stage)
	}
	for i := 3; i < len(res.Atlas.Pix); i += 4 {
		if res.Atlas.Pix[i] != 255 {
			t.Fatalf("naive crop alpha byte %d = %d, want 255", i, res.Atlas.Pix[i])
		}
	}
}

func TestRunNoPhoto(t *testing.T) {
	tmpl := gridTemplate(t)
	if _, err := New(tmpl, testConfig()).Run(nil, frontalLandmarks(tmpl)); !errors.Is(err, ErrNoPhoto) {
		t.Errorf("err = %v, want ErrNoPhoto", err)
	}
	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if _, err := New(tmpl, testConfig()).Run(empty, nil); !errors.Is(err, ErrNoPhoto) {
		t.Errorf("err = %v, want ErrNoPhoto for an empty photo", err)
	}
}

func TestNaiveCropCentersWithoutLandmarks(t *testing.T) {
	photo := solidPhoto(50, 100, 150)
	atlas := NaiveCrop(photo, nil, 32)
	if atlas.Bounds().Dx() != 32 || atlas.Bounds().Dy() != 32 {
		t.Fatalf("atlas bounds = %v, want 32x32", atlas.Bounds())
	}
	i := atlas.PixOffset(16, 16)
	if atlas.Pix[i] != 50 || atlas.Pix[i+1] != 100 || atlas.Pix[i+2] != 150 {
		t.Errorf("center texel = (%d, %d, %d), want the photo color",
			atlas.Pix[i], atlas.Pix[i+1], atlas.Pix[i+2])
	}
	for p := 3; p < len(atlas.Pix); p += 4 {
		if atlas.Pix[p] != 255 {
			t.Fatalf("alpha byte %d = %d, want 255", p, atlas.Pix[p])
		}
	}
}

func TestCropRegionCoincidentLandmarks(t *testing.T) {
	photo := solidPhoto(90, 140, 200)
	// Landmarks so close together the pixel rect truncates to nothing.
	lm := landmark.NewSet([]geometry.Point3D{
		{X: 0.505, Y: 0.505}, {X: 0.5052, Y: 0.5052}, {X: 0.5051, Y: 0.505},
	})
	region := cropRegion(photo, lm)
	if region.Empty() {
		t.Fatalf("crop region %v is empty", region)
	}

	atlas := NaiveCrop(photo, lm, 32)
	r, g, b, a := atlas.At(16, 16).RGBA()
	if a>>8 != 255 {
		t.Errorf("center alpha = %d, want 255", a>>8)
	}
	if r>>8 != 90 || g>>8 != 140 || b>>8 != 200 {
		t.Errorf("center rgb = (%d, %d, %d), want photo color", r>>8, g>>8, b>>8)
	}
}

func TestCropRegionUsesLandmarkBounds(t *testing.T) {
	photo := solidPhoto(0, 0, 0)
	lm := landmark.NewSet([]geometry.Point3D{
		{X: 0.4, Y: 0.4}, {X: 0.6, Y: 0.6},
	})
	region := cropRegion(photo, lm)
	full := photo.Bounds()
	if region == full {
		t.Error("landmark-guided crop should be tighter than the full frame")
	}
	if !region.In(full) {
		t.Errorf("crop region %v escapes the photo bounds %v", region, full)
	}
	// The crop must cover the landmark box center.
	if c := image.Pt(32, 32); !c.In(region) {
		t.Errorf("crop region %v misses the landmark center", region)
	}
}

func TestStageString(t *testing.T) {
	if StageIdle.String() != "idle" || StageDone.String() != "done" {
		t.Error("stage names wrong")
	}
	if Stage(99).String() != "unknown" {
		t.Error("out-of-range stage should be unknown")
	}
}
