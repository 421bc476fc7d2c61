package compositor

import (
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"

	"facetex/internal/rasterize"
)

func bilinear(img *image.RGBA, nx, ny float64) (r, g, b float64) {
	return rasterize.BilinearSample(img, nx, ny)
}

// boxBlur runs one separable box-blur pass over a scalar field. Rows and
// columns are processed in parallel bands; each goroutine writes a
// disjoint slice range.
func boxBlur(src []float64, w, h, radius int) []float64 {
	tmp := make([]float64, len(src))
	out := make([]float64, len(src))

	parallelRange(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := src[y*w : (y+1)*w]
			dst := tmp[y*w : (y+1)*w]
			for x := 0; x < w; x++ {
				var sum float64
				count := 0
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					sum += row[xx]
					count++
				}
				dst[x] = sum / float64(count)
			}
		}
	})
	parallelRange(w, func(x0, x1 int) {
		for x := x0; x < x1; x++ {
			for y := 0; y < h; y++ {
				var sum float64
				count := 0
				for dy := -radius; dy <= radius; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					sum += tmp[yy*w+x]
					count++
				}
				out[y*w+x] = sum / float64(count)
			}
		}
	})
	return out
}

// boxBlurMasked is boxBlur restricted to masked texels: unmasked ones
// contribute nothing and keep their value, so unmapped atlas regions do
// not bleed darkness into the shading estimate.
func boxBlurMasked(src []float64, mask []bool, w, h, radius int) []float64 {
	sumTmp := make([]float64, len(src))
	cntTmp := make([]float64, len(src))
	out := make([]float64, len(src))

	parallelRange(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			base := y * w
			for x := 0; x < w; x++ {
				var sum, cnt float64
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					if !mask[base+xx] {
						continue
					}
					sum += src[base+xx]
					cnt++
				}
				sumTmp[base+x] = sum
				cntTmp[base+x] = cnt
			}
		}
	})
	parallelRange(w, func(x0, x1 int) {
		for x := x0; x < x1; x++ {
			for y := 0; y < h; y++ {
				var sum, cnt float64
				for dy := -radius; dy <= radius; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					sum += sumTmp[yy*w+x]
					cnt += cntTmp[yy*w+x]
				}
				i := y*w + x
				if cnt > 0 {
					out[i] = sum / cnt
				} else {
					out[i] = src[i]
				}
			}
		}
	})
	return out
}

// parallelRange splits [0, n) into per-CPU bands and runs fn on each.
func parallelRange(n int, fn func(lo, hi int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	band := (n + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * band
		hi := lo + band
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
