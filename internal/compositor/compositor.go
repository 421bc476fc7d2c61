// Package compositor post-processes the rasterized atlas so it can be
// relit under arbitrary 3D lighting: baked-in photographic shading is
// suppressed, the mapped region's alpha boundary is feathered, and
// unmapped texels are filled from a color-matched fallback. Pass order
// matters and is fixed.
package compositor

import (
	"image"

	"facetex/pkg/colorutil"
)

// Options holds compositing tunables.
type Options struct {
	// DelightStrength blends the shading correction: 0 keeps the photo
	// lighting, 1 divides it out fully.
	DelightStrength float64
	// DelightRadius is the box-blur radius of the low-frequency shading
	// estimate; DelightPasses iterates the blur toward a Gaussian.
	DelightRadius int
	DelightPasses int
	// FeatherRadius is the alpha-boundary blur radius.
	FeatherRadius int
	// FillRatioMin and FillRatioMax clamp the per-channel correction
	// ratio applied to fallback colors.
	FillRatioMin float64
	FillRatioMax float64
}

// DefaultOptions returns stock compositing settings.
func DefaultOptions() Options {
	return Options{
		DelightStrength: 0.7,
		DelightRadius:   12,
		DelightPasses:   3,
		FeatherRadius:   2,
		FillRatioMin:    0.5,
		FillRatioMax:    2.0,
	}
}

// Process runs the three passes in order: delight, feather, fill.
// fallback may be nil, in which case unmapped texels are filled with the
// average mapped color.
func Process(atlas *image.RGBA, fallback *image.RGBA, opts Options) {
	Delight(atlas, opts)
	FeatherAlpha(atlas, opts.FeatherRadius)
	FillFallback(atlas, fallback, opts)
}

// Delight estimates low-frequency shading from an iterated box blur of the
// mapped texels' luminance and divides it back out, scaled by the blend
// strength, preserving the overall brightness.
func Delight(atlas *image.RGBA, opts Options) {
	if opts.DelightStrength <= 0 || opts.DelightRadius <= 0 {
		return
	}
	w := atlas.Bounds().Dx()
	h := atlas.Bounds().Dy()

	lum := make([]float64, w*h)
	mask := make([]bool, w*h)
	var sum float64
	mapped := 0
	for i := 0; i < w*h; i++ {
		p := i * 4
		if atlas.Pix[p+3] == 0 {
			continue
		}
		l := colorutil.Luminance(float64(atlas.Pix[p]), float64(atlas.Pix[p+1]), float64(atlas.Pix[p+2]))
		lum[i] = l
		mask[i] = true
		sum += l
		mapped++
	}
	if mapped == 0 {
		return
	}
	meanLum := sum / float64(mapped)
	if meanLum < 1 {
		return
	}

	shading := lum
	passes := opts.DelightPasses
	if passes < 2 {
		passes = 2
	}
	for p := 0; p < passes; p++ {
		shading = boxBlurMasked(shading, mask, w, h, opts.DelightRadius)
	}

	for i := 0; i < w*h; i++ {
		if !mask[i] {
			continue
		}
		s := shading[i]
		if s < 1 {
			s = 1
		}
		corr := colorutil.ClampRatio(meanLum/s, 0.4, 2.5)
		factor := 1 + opts.DelightStrength*(corr-1)
		p := i * 4
		atlas.Pix[p] = colorutil.ClampByte(float64(atlas.Pix[p]) * factor)
		atlas.Pix[p+1] = colorutil.ClampByte(float64(atlas.Pix[p+1]) * factor)
		atlas.Pix[p+2] = colorutil.ClampByte(float64(atlas.Pix[p+2]) * factor)
	}
}

// FeatherAlpha softens the mapped region's boundary: partially mapped
// texels keep the minimum of their original and blurred alpha, and texels
// just outside the footprint get a synthesized color so the photo extends
// slightly past its exact edge.
func FeatherAlpha(atlas *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	w := atlas.Bounds().Dx()
	h := atlas.Bounds().Dy()

	orig := make([]uint8, len(atlas.Pix))
	copy(orig, atlas.Pix)

	alpha := make([]float64, w*h)
	for i := 0; i < w*h; i++ {
		alpha[i] = float64(orig[i*4+3])
	}
	blurred := boxBlur(alpha, w, h, radius)
	blurred = boxBlur(blurred, w, h, radius)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			p := i * 4
			origA := orig[p+3]
			blurA := colorutil.ClampByte(blurred[i])
			switch {
			case origA > 0:
				if blurA < origA {
					atlas.Pix[p+3] = blurA
				}
			case blurA > 0:
				// Alpha-weighted average of nearby mapped texels.
				var r, g, b, wsum float64
				for dy := -radius; dy <= radius; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					for dx := -radius; dx <= radius; dx++ {
						xx := x + dx
						if xx < 0 || xx >= w {
							continue
						}
						q := (yy*w + xx) * 4
						aw := float64(orig[q+3])
						if aw == 0 {
							continue
						}
						r += float64(orig[q]) * aw
						g += float64(orig[q+1]) * aw
						b += float64(orig[q+2]) * aw
						wsum += aw
					}
				}
				if wsum > 0 {
					atlas.Pix[p] = colorutil.ClampByte(r / wsum)
					atlas.Pix[p+1] = colorutil.ClampByte(g / wsum)
					atlas.Pix[p+2] = colorutil.ClampByte(b / wsum)
					atlas.Pix[p+3] = blurA
				}
			}
		}
	}
}

// FillFallback fills every texel still short of full alpha from the
// fallback texture (sampled at the same UV) or the average mapped color,
// with a clamped per-channel color correction, then forces full alpha.
func FillFallback(atlas *image.RGBA, fallback *image.RGBA, opts Options) {
	w := atlas.Bounds().Dx()
	h := atlas.Bounds().Dy()

	avgMapped, mappedCount := colorutil.AverageWhere(atlas, func(a uint8) bool { return a == 255 })

	// Per-channel correction ratio from comparing the mapped photo color
	// to the fallback color at the same locations.
	ratio := [3]float64{1, 1, 1}
	if fallback != nil && mappedCount > 0 {
		var photoSum, fbSum [3]float64
		count := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := (y*w + x) * 4
				if atlas.Pix[p+3] != 255 {
					continue
				}
				fr, fg, fb := sampleAtlasSpace(fallback, x, y, w, h)
				photoSum[0] += float64(atlas.Pix[p])
				photoSum[1] += float64(atlas.Pix[p+1])
				photoSum[2] += float64(atlas.Pix[p+2])
				fbSum[0] += fr
				fbSum[1] += fg
				fbSum[2] += fb
				count++
			}
		}
		if count > 0 {
			for ch := 0; ch < 3; ch++ {
				if fbSum[ch] > 1 {
					ratio[ch] = colorutil.ClampRatio(photoSum[ch]/fbSum[ch], opts.FillRatioMin, opts.FillRatioMax)
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := (y*w + x) * 4
			a := atlas.Pix[p+3]
			if a == 255 {
				continue
			}
			var fr, fg, fb float64
			if fallback != nil {
				fr, fg, fb = sampleAtlasSpace(fallback, x, y, w, h)
				fr *= ratio[0]
				fg *= ratio[1]
				fb *= ratio[2]
			} else {
				fr = float64(avgMapped.R)
				fg = float64(avgMapped.G)
				fb = float64(avgMapped.B)
			}
			blend := float64(a) / 255
			atlas.Pix[p] = colorutil.ClampByte(float64(atlas.Pix[p])*blend + fr*(1-blend))
			atlas.Pix[p+1] = colorutil.ClampByte(float64(atlas.Pix[p+1])*blend + fg*(1-blend))
			atlas.Pix[p+2] = colorutil.ClampByte(float64(atlas.Pix[p+2])*blend + fb*(1-blend))
			atlas.Pix[p+3] = 255
		}
	}
}

// sampleAtlasSpace bilinearly samples a texture that shares the atlas's UV
// layout at the given atlas texel.
func sampleAtlasSpace(tex *image.RGBA, x, y, w, h int) (r, g, b float64) {
	nx := (float64(x) + 0.5) / float64(w)
	ny := (float64(y) + 0.5) / float64(h)
	return bilinear(tex, nx, ny)
}
