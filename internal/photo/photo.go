// Package photo loads source photographs and writes output textures.
// Decoding goes through OpenCV so the same formats are accepted as the
// capture tooling produces.
package photo

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"gocv.io/x/gocv"
)

// Load reads a photograph into an RGBA buffer.
func Load(path string) (*image.RGBA, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, fmt.Errorf("photo: cannot read %s", path)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("photo: decode %s: %w", path, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// SavePNG writes an image as PNG.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("photo: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("photo: encode %s: %w", path, err)
	}
	return nil
}
