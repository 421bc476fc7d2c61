package rasterize

import (
	"image"
	"testing"

	"facetex/internal/densemap"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// fullQuadTemplate covers the whole UV square with two triangles.
func fullQuadTemplate(t *testing.T) *mesh.Template {
	t.Helper()
	tmpl := &mesh.Template{
		Vertices: []geometry.Point3D{
			{X: -0.1, Y: -0.1}, {X: 0.1, Y: -0.1}, {X: -0.1, Y: 0.1}, {X: 0.1, Y: 0.1},
		},
		Faces: [][3]int{{0, 1, 2}, {1, 3, 2}},
		UV: []geometry.Point2D{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1},
		},
		UVFaces: [][3]int{{0, 1, 2}, {1, 3, 2}},
	}
	if err := tmpl.BuildUVVertexMap(); err != nil {
		t.Fatalf("BuildUVVertexMap: %v", err)
	}
	return tmpl
}

func solidPhoto(r, g, b uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = 255
	}
	return img
}

func centerMapping(tmpl *mesh.Template) *densemap.Mapping {
	m := &densemap.Mapping{
		ImagePoints:    make([]geometry.Point2D, len(tmpl.UV)),
		Valid:          make([]bool, len(tmpl.UV)),
		FaceVisibility: make([]float64, len(tmpl.Faces)),
	}
	for i, uv := range tmpl.UV {
		// Map UV into the central half of the photo.
		m.ImagePoints[i] = geometry.Point2D{X: 0.25 + 0.5*uv.X, Y: 0.25 + 0.5*uv.Y}
		m.Valid[i] = true
	}
	for i := range m.FaceVisibility {
		m.FaceVisibility[i] = 1
	}
	return m
}

func TestRenderFillsAtlas(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	photo := solidPhoto(180, 120, 60)

	opts := DefaultOptions()
	opts.Resolution = 32
	atlas := Render(tmpl, m, photo, opts)

	if atlas.Bounds().Dx() != 32 || atlas.Bounds().Dy() != 32 {
		t.Fatalf("atlas size = %v, want 32x32", atlas.Bounds())
	}

	// Interior texels must be fully mapped with the photo color.
	for _, p := range [][2]int{{8, 8}, {16, 16}, {24, 24}, {8, 24}} {
		i := atlas.PixOffset(p[0], p[1])
		if atlas.Pix[i+3] != 255 {
			t.Errorf("texel %v alpha = %d, want 255", p, atlas.Pix[i+3])
		}
		if atlas.Pix[i] != 180 || atlas.Pix[i+1] != 120 || atlas.Pix[i+2] != 60 {
			t.Errorf("texel %v color = (%d, %d, %d), want (180, 120, 60)",
				p, atlas.Pix[i], atlas.Pix[i+1], atlas.Pix[i+2])
		}
	}

	if cov := Coverage(atlas); cov < 0.9 {
		t.Errorf("coverage = %f, want > 0.9 for a full-square quad", cov)
	}
}

func TestRenderDeterministic(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	photo := solidPhoto(10, 200, 90)

	opts := DefaultOptions()
	opts.Resolution = 64
	a := Render(tmpl, m, photo, opts)
	opts.Workers = 3
	b := Render(tmpl, m, photo, opts)

	if len(a.Pix) != len(b.Pix) {
		t.Fatal("atlas sizes differ")
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("pixel byte %d differs between worker counts", i)
		}
	}
}

func TestRenderSkipsInvisibleFaces(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	for i := range m.FaceVisibility {
		m.FaceVisibility[i] = 0
	}

	opts := DefaultOptions()
	opts.Resolution = 16
	atlas := Render(tmpl, m, solidPhoto(255, 255, 255), opts)
	if cov := Coverage(atlas); cov != 0 {
		t.Errorf("coverage = %f, want 0 with every face hidden", cov)
	}
}

func TestRenderPartialVisibilityAlpha(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	m.FaceVisibility[0] = 0.5
	m.FaceVisibility[1] = 0.5

	opts := DefaultOptions()
	opts.Resolution = 16
	atlas := Render(tmpl, m, solidPhoto(255, 255, 255), opts)

	i := atlas.PixOffset(8, 8)
	if a := atlas.Pix[i+3]; a < 126 || a > 129 {
		t.Errorf("half-visible texel alpha = %d, want ~128", a)
	}
	if cov := Coverage(atlas); cov != 0 {
		t.Errorf("coverage = %f; partially visible texels are not fully mapped", cov)
	}
}

func TestRenderRejectsOffPhotoSamples(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	// Push every sample far outside the photo.
	for i := range m.ImagePoints {
		m.ImagePoints[i].X += 5
	}

	opts := DefaultOptions()
	opts.Resolution = 16
	atlas := Render(tmpl, m, solidPhoto(255, 255, 255), opts)
	if cov := Coverage(atlas); cov != 0 {
		t.Errorf("coverage = %f, want 0 for off-photo samples", cov)
	}
}

func TestRenderSkipsInvalidVertices(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	m := centerMapping(tmpl)
	m.Valid[1] = false // shared by both faces

	opts := DefaultOptions()
	opts.Resolution = 16
	atlas := Render(tmpl, m, solidPhoto(255, 255, 255), opts)
	if cov := Coverage(atlas); cov != 0 {
		t.Errorf("coverage = %f, want 0 when a shared corner is invalid", cov)
	}
}

func TestCoverageMonotonicInValidSamples(t *testing.T) {
	tmpl := fullQuadTemplate(t)
	photo := solidPhoto(200, 200, 200)

	opts := DefaultOptions()
	opts.Resolution = 32

	// Enable UV vertices one at a time; the mapped fraction must never
	// shrink as more samples become usable.
	prev := -1.0
	for n := 0; n <= len(tmpl.UV); n++ {
		m := centerMapping(tmpl)
		for i := range m.Valid {
			m.Valid[i] = i < n
		}
		cov := Coverage(Render(tmpl, m, photo, opts))
		if cov < prev {
			t.Fatalf("coverage dropped from %f to %f at %d valid vertices", prev, cov, n)
		}
		prev = cov
	}
	if prev < 0.9 {
		t.Errorf("coverage with all vertices valid = %f, want > 0.9", prev)
	}
}

func TestBilinearSample(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	// Left texel black, right texel white.
	img.Pix[0], img.Pix[1], img.Pix[2], img.Pix[3] = 0, 0, 0, 255
	img.Pix[4], img.Pix[5], img.Pix[6], img.Pix[7] = 255, 255, 255, 255

	r, _, _ := BilinearSample(img, 0, 0)
	if r != 0 {
		t.Errorf("left edge r = %f, want 0", r)
	}
	r, _, _ = BilinearSample(img, 1, 0)
	if r != 255 {
		t.Errorf("right edge r = %f, want 255", r)
	}
	r, _, _ = BilinearSample(img, 0.5, 0)
	if r < 127 || r > 128 {
		t.Errorf("midpoint r = %f, want 127.5", r)
	}
	// Out-of-range coordinates clamp to the border.
	r, _, _ = BilinearSample(img, -3, 0.5)
	if r != 0 {
		t.Errorf("clamped sample r = %f, want 0", r)
	}
}

func TestCoverageEmptyAtlas(t *testing.T) {
	atlas := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if cov := Coverage(atlas); cov != 0 {
		t.Errorf("coverage of a blank atlas = %f, want 0", cov)
	}
}
