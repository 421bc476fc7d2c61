// Package overlay renders fitting diagnostics onto a copy of the source
// photograph: detected landmark positions, their reprojected mesh
// locations, and the residual segment between each pair. The output is a
// debugging aid for judging camera and shape fit quality by eye.
package overlay

import (
	"image"
	"image/color"

	"facetex/internal/camera"
	"facetex/internal/correspond"
	"facetex/pkg/geometry"
)

// Options configures how the diagnostic markers are drawn.
type Options struct {
	// MarkerRadius is the landmark marker radius in pixels.
	MarkerRadius int
	// FillMarkers fills the detected-landmark markers instead of drawing
	// outlines only.
	FillMarkers bool
	// DrawResiduals joins each detected landmark to its reprojection.
	DrawResiduals bool
}

// DefaultOptions returns the stock marker style.
func DefaultOptions() Options {
	return Options{
		MarkerRadius:  4,
		FillMarkers:   true,
		DrawResiduals: true,
	}
}

var (
	detectedColor  = color.RGBA{R: 40, G: 200, B: 80, A: 255}
	projectedColor = color.RGBA{R: 230, G: 60, B: 50, A: 255}
	residualColor  = color.RGBA{R: 250, G: 210, B: 60, A: 255}
)

// Render returns a copy of the photo with one marker per correspondence:
// the detected landmark in green and, when a camera is given, its mesh
// reprojection in red with a residual segment between them. cam may be
// nil, in which case only detections are drawn.
func Render(photo *image.RGBA, set *correspond.Set, cam camera.Model, opts Options) *image.RGBA {
	out := image.NewRGBA(photo.Bounds())
	copy(out.Pix, photo.Pix)
	if set == nil {
		return out
	}

	w := float64(photo.Bounds().Dx())
	h := float64(photo.Bounds().Dy())
	toPixel := func(p geometry.Point2D) (int, int) {
		return photo.Bounds().Min.X + int(p.X*w), photo.Bounds().Min.Y + int(p.Y*h)
	}

	for _, smp := range set.Samples {
		dx, dy := toPixel(smp.ImagePoint)

		if cam != nil {
			if proj, ok := cam.Project(smp.MeshPoint); ok {
				px, py := toPixel(proj)
				if opts.DrawResiduals {
					drawSegment(out, dx, dy, px, py, residualColor)
				}
				drawCircle(out, px, py, opts.MarkerRadius, projectedColor)
			}
		}

		if opts.FillMarkers {
			fillCircle(out, dx, dy, opts.MarkerRadius, detectedColor)
			drawCircle(out, dx, dy, opts.MarkerRadius, darken(detectedColor, 0.3))
		} else {
			drawCircle(out, dx, dy, opts.MarkerRadius, detectedColor)
		}
	}
	return out
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := cx - r; x <= cx+r; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}

// drawCircle draws a circle outline using Bresenham's algorithm.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()
	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, c)
		}
	}

	x := r
	y := 0
	err := 0
	for x >= y {
		setPixel(cx+x, cy+y)
		setPixel(cx+y, cy+x)
		setPixel(cx-y, cy+x)
		setPixel(cx-x, cy+y)
		setPixel(cx-x, cy-y)
		setPixel(cx-y, cy-x)
		setPixel(cx+y, cy-x)
		setPixel(cx+x, cy-y)

		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// drawSegment draws a line using Bresenham's algorithm.
func drawSegment(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	bounds := img.Bounds()
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)

	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy
	for {
		if x1 >= bounds.Min.X && x1 < bounds.Max.X && y1 >= bounds.Min.Y && y1 < bounds.Max.Y {
			img.Set(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * (1 - factor)),
		G: uint8(float64(c.G) * (1 - factor)),
		B: uint8(float64(c.B) * (1 - factor)),
		A: c.A,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
