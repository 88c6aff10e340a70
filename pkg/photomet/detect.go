package photomet

import (
	"context"
	"image"
	"math"
)

// Seed is a detected bright structure handed to the measurement entry
// points: a first-moment centre estimate, the structure's bounding box,
// the local background level, and the background-subtracted peak.
type Seed struct {
	Center     Point2d
	BBox       image.Rectangle
	Background float64
	Peak       float64
	Flux       float64
	PixelCount int
}

// DetectorParams configures the seed detector.
type DetectorParams struct {
	// HotpixelFiltering replaces outlier pixels with the local median
	// before anything else runs.
	HotpixelFiltering bool `yaml:"hotpixelFiltering"`
	// HotpixelThreshold is the median-difference above which a pixel is
	// treated as hot.
	HotpixelThreshold float64 `yaml:"hotpixelThreshold"`
	// NoiseReductionRadius is the Gaussian smoothing radius applied to the
	// detection map; 0 disables smoothing.
	NoiseReductionRadius int `yaml:"noiseReductionRadius"`
	// NoiseClippingMultiplier sets the detection threshold at
	// median + k*sigma.
	NoiseClippingMultiplier float64 `yaml:"noiseClippingMultiplier"`
	// MinPixels rejects structures smaller than this many pixels.
	MinPixels int `yaml:"minPixels"`
	// MaxSeeds caps the number of returned seeds; 0 means no cap.
	MaxSeeds int `yaml:"maxSeeds"`
}

// DefaultDetectorParams mirrors the stock configuration.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		HotpixelFiltering:       true,
		HotpixelThreshold:       0.001,
		NoiseReductionRadius:    2,
		NoiseClippingMultiplier: 4.0,
		MinPixels:               5,
		MaxSeeds:                0,
	}
}

// DetectorResult is the output of DetectSeeds.
type DetectorResult struct {
	Seeds          []Seed
	NoiseSigma     float64
	BackgroundMean float64
	Candidates     int
	TooSmall       int
	OnBorder       int
	HotpixelCount  int64
}

// DetectSeeds finds bright connected structures in the frame and returns
// measurement seeds. The source mat is not modified. ctx cancellation stops
// the scan early with the seeds found so far.
func DetectSeeds(ctx context.Context, srcImage Mat, p DetectorParams) *DetectorResult {
	result := &DetectorResult{}
	if srcImage.Empty() {
		return result
	}

	work := srcImage.Clone()
	defer work.Close()

	if p.HotpixelFiltering {
		result.HotpixelCount = filterHotpixels(&work, p.HotpixelThreshold)
	}
	if p.NoiseReductionRadius > 0 {
		ConvolveGaussian(&work, &work, p.NoiseReductionRadius*2+1)
	}

	noise := KappaSigmaNoiseEstimate(work, p.NoiseClippingMultiplier, 1e-5, 5)
	result.NoiseSigma = noise.Sigma
	result.BackgroundMean = noise.BackgroundMean

	median := MatMedian(work)
	threshold := median + p.NoiseClippingMultiplier*noise.Sigma

	mask := NewMat()
	defer mask.Close()
	thresholdBinary(work, &mask, float32(threshold), 1.0)

	result.Seeds = scanStructures(ctx, srcImage, mask, median, p, result)
	return result
}

// filterHotpixels replaces pixels that deviate from the 3x3 median by more
// than threshold with that median, returning the number replaced.
func filterHotpixels(m *Mat, threshold float64) int64 {
	blurred := NewMat()
	defer blurred.Close()
	diff := NewMat()
	defer diff.Close()
	mask := NewMat()
	defer mask.Close()

	medianBlur(*m, &blurred, 3)
	absDiff(*m, blurred, &diff)
	thresholdBinary(diff, &mask, float32(threshold), 1.0)
	numHotpixels := int64(countNonZero(mask))
	matCopyToWithMask(blurred, m, mask)
	return numHotpixels
}

// scanStructures walks the binary mask, flood-filling each connected
// structure and turning the acceptable ones into seeds. Visited pixels are
// zeroed in the mask.
func scanStructures(ctx context.Context, srcImage, mask Mat, background float64,
	p DetectorParams, result *DetectorResult) []Seed {
	width := mask.Cols()
	height := mask.Rows()
	maskData := mask.DataFloat32()
	srcData := srcImage.DataFloat32()

	var seeds []Seed
	stack := make([]image.Point, 0, 256)
	points := make([]image.Point, 0, 256)

	for y := 0; y < height; y++ {
		select {
		case <-ctx.Done():
			return seeds
		default:
		}

		for x := 0; x < width; x++ {
			if maskData[y*width+x] == 0 {
				continue
			}

			// Flood fill (4-connectivity) from this pixel.
			points = points[:0]
			stack = append(stack[:0], image.Pt(x, y))
			maskData[y*width+x] = 0
			for len(stack) > 0 {
				pt := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				points = append(points, pt)
				for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := pt.X+d.X, pt.Y+d.Y
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					if maskData[ny*width+nx] != 0 {
						maskData[ny*width+nx] = 0
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}

			result.Candidates++
			if seed, ok := evaluateStructure(srcData, width, height, points,
				background, p, result); ok {
				seeds = append(seeds, seed)
				if p.MaxSeeds > 0 && len(seeds) >= p.MaxSeeds {
					return seeds
				}
			}
		}
	}
	return seeds
}

func evaluateStructure(srcData []float32, width, height int,
	points []image.Point, background float64, p DetectorParams,
	result *DetectorResult) (Seed, bool) {
	if len(points) < p.MinPixels {
		result.TooSmall++
		return Seed{}, false
	}

	bbox := image.Rect(points[0].X, points[0].Y, points[0].X+1, points[0].Y+1)
	for _, pt := range points[1:] {
		bbox = bbox.Union(image.Rect(pt.X, pt.Y, pt.X+1, pt.Y+1))
	}
	if bbox.Min.X == 0 || bbox.Min.Y == 0 || bbox.Max.X >= width || bbox.Max.Y >= height {
		result.OnBorder++
		return Seed{}, false
	}

	var sx, sy, flux, peak float64
	for _, pt := range points {
		v := float64(srcData[pt.Y*width+pt.X]) - background
		if v <= 0 {
			continue
		}
		sx += v * float64(pt.X)
		sy += v * float64(pt.Y)
		flux += v
		if v > peak {
			peak = v
		}
	}
	if flux <= 0 {
		result.TooSmall++
		return Seed{}, false
	}

	center := Point2d{X: sx / flux, Y: sy / flux}
	if math.IsNaN(center.X) || math.IsNaN(center.Y) {
		result.TooSmall++
		return Seed{}, false
	}

	return Seed{
		Center:     center,
		BBox:       bbox,
		Background: background,
		Peak:       peak,
		Flux:       flux,
		PixelCount: len(points),
	}, true
}
