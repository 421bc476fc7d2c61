package overlay

import (
	"image"
	"testing"

	"facetex/internal/correspond"
	"facetex/pkg/geometry"
)

func blankPhoto() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestRenderMarksDetections(t *testing.T) {
	photo := blankPhoto()
	set := &correspond.Set{
		Samples: []correspond.Sample{
			{MeshPoint: geometry.Point3D{}, ImagePoint: geometry.Point2D{X: 0.5, Y: 0.5}},
		},
	}

	out := Render(photo, set, nil, DefaultOptions())

	// The marker center lands on the detection.
	i := out.PixOffset(32, 32)
	if out.Pix[i] == 0 && out.Pix[i+1] == 0 && out.Pix[i+2] == 0 {
		t.Error("detection marker missing at (32, 32)")
	}
	// The source photo is untouched.
	j := photo.PixOffset(32, 32)
	if photo.Pix[j] != 0 || photo.Pix[j+1] != 0 {
		t.Error("Render must not modify the source photo")
	}
}

type fixedCamera struct {
	at geometry.Point2D
}

func (c fixedCamera) Project(geometry.Point3D) (geometry.Point2D, bool) {
	return c.at, true
}

func TestRenderMarksReprojection(t *testing.T) {
	photo := blankPhoto()
	set := &correspond.Set{
		Samples: []correspond.Sample{
			{ImagePoint: geometry.Point2D{X: 0.25, Y: 0.5}},
		},
	}
	cam := fixedCamera{at: geometry.Point2D{X: 0.75, Y: 0.5}}

	out := Render(photo, set, cam, DefaultOptions())

	// Residual segment crosses the midpoint between the two markers.
	i := out.PixOffset(32, 32)
	if out.Pix[i] == 0 && out.Pix[i+1] == 0 && out.Pix[i+2] == 0 {
		t.Error("residual segment missing at the midpoint")
	}
	// Reprojection marker outline near (48, 32).
	found := false
	for dx := -6; dx <= 6 && !found; dx++ {
		for dy := -6; dy <= 6; dy++ {
			k := out.PixOffset(48+dx, 32+dy)
			if out.Pix[k] > 200 && out.Pix[k+1] < 100 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("reprojection marker missing near (48, 32)")
	}
}

func TestRenderEmptySet(t *testing.T) {
	photo := blankPhoto()
	out := Render(photo, nil, nil, DefaultOptions())
	for i := range out.Pix {
		if out.Pix[i] != photo.Pix[i] {
			t.Fatal("empty correspondence set must return an unmarked copy")
		}
	}
}
