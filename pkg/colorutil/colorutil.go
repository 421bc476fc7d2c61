// Package colorutil provides shared color utilities for texture processing.
package colorutil

import (
	"image"
	"image/color"
)

// Luminance returns the Rec. 709 luma of an RGB triple in 0-255 range.
func Luminance(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// ClampRatio limits a per-channel correction ratio to [lo, hi]. Keeps
// color matching from overshooting on small or skewed sample sets.
func ClampRatio(ratio, lo, hi float64) float64 {
	if ratio < lo {
		return lo
	}
	if ratio > hi {
		return hi
	}
	return ratio
}

// ClampByte converts a float channel value to uint8, saturating at 0 and 255.
func ClampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// AverageWhere returns the mean RGB of the texels in img whose alpha
// satisfies the predicate, along with the number of texels counted.
// Returns opaque black when nothing matches.
func AverageWhere(img *image.RGBA, pred func(alpha uint8) bool) (color.RGBA, int) {
	bounds := img.Bounds()
	var r, g, b uint64
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (x - bounds.Min.X) * 4
			if !pred(row[i+3]) {
				continue
			}
			r += uint64(row[i])
			g += uint64(row[i+1])
			b += uint64(row[i+2])
			count++
		}
	}
	if count == 0 {
		return color.RGBA{A: 255}, 0
	}
	n := uint64(count)
	return color.RGBA{
		R: uint8(r / n),
		G: uint8(g / n),
		B: uint8(b / n),
		A: 255,
	}, count
}
