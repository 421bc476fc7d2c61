package pipeline

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"facetex/internal/landmark"
	"facetex/pkg/geometry"
)

// NaiveCrop is the simplest terminal strategy: crop the face region out of
// the photo and scale it into the atlas, ignoring the mesh entirely. Used
// when no mesh-aware strategy can run; the result is usable as a flat
// texture even though it is not registered to the UV layout.
func NaiveCrop(photo *image.RGBA, lm *landmark.Set, resolution int) *image.RGBA {
	region := cropRegion(photo, lm)
	atlas := image.NewRGBA(image.Rect(0, 0, resolution, resolution))
	xdraw.BiLinear.Scale(atlas, atlas.Bounds(), photo, region, xdraw.Src, nil)

	// Force full alpha: the crop maps every texel.
	for i := 3; i < len(atlas.Pix); i += 4 {
		atlas.Pix[i] = 255
	}
	return atlas
}

// cropRegion picks the pixel rectangle to crop: the margin-expanded
// bounding box of the valid landmarks, or a centered square when no
// landmark survives validation.
func cropRegion(photo *image.RGBA, lm *landmark.Set) image.Rectangle {
	bounds := photo.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	if lm != nil {
		if box, ok := lm.Bounds(); ok && box.Width > 0 && box.Height > 0 {
			margin := 0.25 * (box.Width + box.Height) / 2
			box = box.Expand(margin)
			clipped := box.Intersect(geometry.NewRect(0, 0, 1, 1))
			if clipped.Width > 0 && clipped.Height > 0 {
				r := image.Rect(
					bounds.Min.X+int(clipped.X*w),
					bounds.Min.Y+int(clipped.Y*h),
					bounds.Min.X+int((clipped.X+clipped.Width)*w),
					bounds.Min.Y+int((clipped.Y+clipped.Height)*h),
				)
				// Near-coincident landmarks can truncate to an empty
				// pixel rect; treat that like having no landmarks.
				if !r.Empty() {
					return r
				}
			}
		}
	}

	// Centered square fallback.
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	cx := bounds.Min.X + bounds.Dx()/2
	cy := bounds.Min.Y + bounds.Dy()/2
	return image.Rect(cx-side/2, cy-side/2, cx+side/2, cy+side/2)
}
