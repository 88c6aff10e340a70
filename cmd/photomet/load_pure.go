//go:build purego || js || !cgo

package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	ph "photomet/pkg/photomet"
)

// loadNonFitsImage decodes a PNG or JPEG into a normalised float32 Mat.
// Grayscale images keep their native depth; anything else is reduced to
// luminance.
func loadNonFitsImage(path string) (ph.Mat, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return ph.Mat{}, 0, 0, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return ph.Mat{}, 0, 0, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	m := ph.NewMatWithSize(h, w)
	dst := m.DataFloat32()

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			for x, v := range row {
				dst[y*w+x] = float32(v) / 256
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+2*w]
			for x := 0; x < w; x++ {
				v := uint32(row[2*x])<<8 | uint32(row[2*x+1])
				dst[y*w+x] = float32(v) / 65536
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				lum := 0.2126*float32(r) + 0.7152*float32(g) + 0.0722*float32(b)
				dst[y*w+x] = lum / 65536
			}
		}
	}

	return m, w, h, nil
}
