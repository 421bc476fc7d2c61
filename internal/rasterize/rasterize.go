// Package rasterize fills the texture atlas by walking every mesh face in
// UV space and sampling the photograph at barycentrically interpolated
// image coordinates. Faces never overlap in UV space, so no z-buffer is
// needed and the atlas can be filled in parallel row bands.
package rasterize

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"facetex/internal/densemap"
	"facetex/internal/mesh"
	"facetex/pkg/colorutil"
	"facetex/pkg/geometry"
)

// Options holds rasterization tunables.
type Options struct {
	// Resolution is the square atlas edge in texels.
	Resolution int
	// Overscan tolerates sample locations this far outside the photo's
	// [0,1] range before rejecting them as extrapolation.
	Overscan float64
	// BaryTolerance admits slightly negative barycentric weights so
	// texels along shared triangle edges are written by a face.
	BaryTolerance float64
	// Workers is the parallel band count; 0 means one per CPU.
	Workers int
}

// DefaultOptions returns stock rasterization settings.
func DefaultOptions() Options {
	return Options{
		Resolution:    1024,
		Overscan:      0.05,
		BaryTolerance: 0.005,
	}
}

// Render rasterizes every visible face into a fresh RGBA atlas. The alpha
// channel encodes mapping state: 255 for fully mapped texels, 1-254 for
// silhouette-blended ones, 0 for unmapped.
func Render(tmpl *mesh.Template, m *densemap.Mapping, photo *image.RGBA, opts Options) *image.RGBA {
	res := opts.Resolution
	atlas := image.NewRGBA(image.Rect(0, 0, res, res))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > res {
		workers = res
	}

	band := (res + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		y0 := w * band
		y1 := y0 + band
		if y1 > res {
			y1 = res
		}
		if y0 >= y1 {
			break
		}
		g.Go(func() error {
			renderBand(tmpl, m, photo, atlas, opts, y0, y1)
			return nil
		})
	}
	// Workers write disjoint rows and never fail.
	_ = g.Wait()
	return atlas
}

// renderBand fills atlas rows [y0, y1). Each band walks the full face list
// and clips writes to its own rows, so bands never touch the same texel.
func renderBand(tmpl *mesh.Template, m *densemap.Mapping, photo *image.RGBA, atlas *image.RGBA, opts Options, y0, y1 int) {
	res := float64(opts.Resolution)
	for fi, uvFace := range tmpl.UVFaces {
		vis := m.FaceVisibility[fi]
		if vis <= 0 {
			continue
		}
		if !m.Valid[uvFace[0]] || !m.Valid[uvFace[1]] || !m.Valid[uvFace[2]] {
			continue
		}
		alpha := uint8(math.Round(vis * 255))
		if alpha == 0 {
			continue
		}

		// UV to atlas pixel space, V axis flipped.
		a := uvToPixel(tmpl.UV[uvFace[0]], res)
		b := uvToPixel(tmpl.UV[uvFace[1]], res)
		c := uvToPixel(tmpl.UV[uvFace[2]], res)
		imgA := m.ImagePoints[uvFace[0]]
		imgB := m.ImagePoints[uvFace[1]]
		imgC := m.ImagePoints[uvFace[2]]

		// Degenerate UV triangles contribute no area.
		ab := b.Sub(a)
		ac := c.Sub(a)
		if math.Abs(ab.X*ac.Y-ab.Y*ac.X) < 1e-12 {
			continue
		}

		minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
		maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
		minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
		maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
		if minX < 0 {
			minX = 0
		}
		if maxX >= opts.Resolution {
			maxX = opts.Resolution - 1
		}
		if minY < y0 {
			minY = y0
		}
		if maxY >= y1 {
			maxY = y1 - 1
		}

		for py := minY; py <= maxY; py++ {
			for px := minX; px <= maxX; px++ {
				pt := geometry.Point2D{X: float64(px) + 0.5, Y: float64(py) + 0.5}
				wa, wb, wc, ok := geometry.Barycentric(pt, a, b, c)
				if !ok {
					continue
				}
				tol := -opts.BaryTolerance
				if wa < tol || wb < tol || wc < tol {
					continue
				}

				sample := geometry.Interpolate2D(imgA, imgB, imgC, wa, wb, wc)
				if sample.X < -opts.Overscan || sample.X > 1+opts.Overscan ||
					sample.Y < -opts.Overscan || sample.Y > 1+opts.Overscan {
					continue
				}

				r, gc, bc := BilinearSample(photo, sample.X, sample.Y)
				i := atlas.PixOffset(px, py)
				atlas.Pix[i] = colorutil.ClampByte(r)
				atlas.Pix[i+1] = colorutil.ClampByte(gc)
				atlas.Pix[i+2] = colorutil.ClampByte(bc)
				atlas.Pix[i+3] = alpha
			}
		}
	}
}

func uvToPixel(uv geometry.Point2D, res float64) geometry.Point2D {
	return geometry.Point2D{X: uv.X * res, Y: (1 - uv.Y) * res}
}

// BilinearSample reads the photo at normalized coordinates with bilinear
// filtering, clamping to the image border.
func BilinearSample(img *image.RGBA, nx, ny float64) (r, g, b float64) {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	fx := nx * float64(w-1)
	fy := ny * float64(h-1)
	if fx < 0 {
		fx = 0
	}
	if fy < 0 {
		fy = 0
	}
	if fx > float64(w-1) {
		fx = float64(w - 1)
	}
	if fy > float64(h-1) {
		fy = float64(h - 1)
	}

	x0 := int(fx)
	y0 := int(fy)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > w-1 {
		x1 = w - 1
	}
	if y1 > h-1 {
		y1 = h - 1
	}
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	i00 := img.PixOffset(bounds.Min.X+x0, bounds.Min.Y+y0)
	i10 := img.PixOffset(bounds.Min.X+x1, bounds.Min.Y+y0)
	i01 := img.PixOffset(bounds.Min.X+x0, bounds.Min.Y+y1)
	i11 := img.PixOffset(bounds.Min.X+x1, bounds.Min.Y+y1)

	for ch := 0; ch < 3; ch++ {
		top := float64(img.Pix[i00+ch])*(1-dx) + float64(img.Pix[i10+ch])*dx
		bottom := float64(img.Pix[i01+ch])*(1-dx) + float64(img.Pix[i11+ch])*dx
		v := top*(1-dy) + bottom*dy
		switch ch {
		case 0:
			r = v
		case 1:
			g = v
		case 2:
			b = v
		}
	}
	return r, g, b
}

// Coverage returns the fraction of fully mapped (alpha 255) texels.
func Coverage(atlas *image.RGBA) float64 {
	total := atlas.Bounds().Dx() * atlas.Bounds().Dy()
	if total == 0 {
		return 0
	}
	mapped := 0
	for i := 3; i < len(atlas.Pix); i += 4 {
		if atlas.Pix[i] == 255 {
			mapped++
		}
	}
	return float64(mapped) / float64(total)
}
