package photomet

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ellipseScale blows measured 1-sigma moment ellipses up to something
// visible in the overlay.
const ellipseScale = 2.5

// RenderOverlay draws the measured moment ellipses on a dark canvas and
// writes the result as a JPEG file.
func RenderOverlay(results []ShapeResult, width, height int, outputPath string) error {
	img, err := renderOverlayImage(results, width, height)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer f.Close()

	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// RenderOverlayBytes draws the measured moment ellipses and returns the
// result as JPEG bytes.
func RenderOverlayBytes(results []ShapeResult, width, height int) ([]byte, error) {
	img, err := renderOverlayImage(results, width, height)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderOverlayImage(results []ShapeResult, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid overlay dimensions %dx%d", width, height)
	}

	// Render at reduced resolution (800px wide, proportional height)
	const targetWidth = 800
	scale := float64(targetWidth) / float64(width)
	imgW := targetWidth
	imgH := int(float64(height) * scale)
	if imgH < 100 {
		imgH = 100
	}

	// Reserve space for summary text at bottom
	summaryH := 40
	totalH := imgH + summaryH

	img := image.NewRGBA(image.Rect(0, 0, imgW, totalH))
	for y := 0; y < totalH; y++ {
		for x := 0; x < imgW; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	face := basicfont.Face7x13
	goodColor := color.RGBA{120, 255, 120, 255}
	badColor := color.RGBA{255, 100, 100, 255}
	labelColor := color.RGBA{220, 220, 220, 255}

	for i := range results {
		r := &results[i]
		if math.IsNaN(r.X) || math.IsNaN(r.Y) {
			continue
		}
		cx := int(r.X * scale)
		cy := int(r.Y * scale)
		if cx < 0 || cx >= imgW || cy < 0 || cy >= imgH {
			continue
		}

		c := goodColor
		if r.Failed() {
			c = badColor
		}
		drawCross(img, cx, cy, 4, c)

		q := r.Quadrupole()
		a, b, theta := q.Axes()
		if !math.IsNaN(a) && !math.IsNaN(b) && a > 0 {
			drawEllipse(img, cx, cy, a*ellipseScale*scale, b*ellipseScale*scale, theta, c)
		}

		drawText(img, face, fmt.Sprintf("%d", i), cx+6, cy-6, labelColor)
	}

	summary := SummarizeField(results)
	line1 := fmt.Sprintf("sources: %d measured, %d failed", summary.Measured, summary.Failed)
	line2 := fmt.Sprintf("FWHM: %.2f +/- %.2f px   |e|: %.3f +/- %.3f",
		summary.MedianFWHM, summary.FWHMMAD, summary.MedianEllip, summary.EllipMAD)
	drawText(img, face, line1, 10, imgH+15, labelColor)
	drawText(img, face, line2, 10, imgH+31, labelColor)

	return img, nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCross draws a plus-shaped marker centred at (cx, cy).
func drawCross(img *image.RGBA, cx, cy, arm int, c color.RGBA) {
	for d := -arm; d <= arm; d++ {
		img.Set(cx+d, cy, c)
		img.Set(cx, cy+d, c)
	}
}

// drawEllipse draws an ellipse outline with semi-axes (a, b) rotated by
// theta radians, sampled densely enough to stay connected.
func drawEllipse(img *image.RGBA, cx, cy int, a, b, theta float64, c color.RGBA) {
	steps := int(4 * math.Max(a, b))
	if steps < 16 {
		steps = 16
	}
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)
	for i := 0; i < steps; i++ {
		phi := 2 * math.Pi * float64(i) / float64(steps)
		ex := a * math.Cos(phi)
		ey := b * math.Sin(phi)
		x := cx + int(math.Round(ex*cosT-ey*sinT))
		y := cy + int(math.Round(ex*sinT+ey*cosT))
		img.Set(x, y, c)
	}
}
