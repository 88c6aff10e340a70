package photomet

import (
	"math"
	"sort"
)

// KappaSigmaResult holds the background and noise estimate of a frame.
type KappaSigmaResult struct {
	Sigma          float64
	BackgroundMean float64
	NumIterations  int
}

// ToFloat32Mat converts a uint16 pixel array to a float32 Mat normalized
// to [0, 1].
func ToFloat32Mat(pixels []uint16, bpp, width, height int) Mat {
	data := NewMatWithSize(height, width)
	dest := data.DataFloat32()
	scalingRatio := float32(uint32(1) << uint(bpp))
	numPixels := width * height
	for i := 0; i < numPixels; i++ {
		dest[i] = float32(pixels[i]) / scalingRatio
	}
	return data
}

// ImageFromMat wraps a Mat's pixels as an Image[float32] view with parent
// origin (0, 0). The pixel data is shared, not copied.
func ImageFromMat(m Mat) *Image[float32] {
	return &Image[float32]{Pix: m.DataFloat32(), W: m.Cols(), H: m.Rows()}
}

// ConvolveGaussian applies a separated Gaussian convolution.
func ConvolveGaussian(src, dst *Mat, kernelSize int) {
	if kernelSize < 3 || kernelSize%2 == 0 {
		panic("kernelSize must be a positive odd number >= 3")
	}
	sigma := 0.159758 * float64(kernelSize)
	kernel := getGaussianKernel1D(kernelSize, sigma)
	defer kernel.Close()
	sepFilter2DReflect(*src, dst, kernel, kernel)
}

// KappaSigmaNoiseEstimate iterates mean/stddev estimation, clipping pixels
// above mean + clippingMultiplier*sigma each round, until sigma stabilizes
// within allowedError.
func KappaSigmaNoiseEstimate(img Mat, clippingMultiplier, allowedError float64,
	maxIterations int) KappaSigmaResult {
	maskMat := NewMat()
	defer maskMat.Close()

	threshold := float32(math.MaxFloat32)
	lastSigma := 1.0
	lastBackgroundMean := 1.0
	numIterations := 0

	for numIterations < maxIterations {
		var meanVal, sigmaVal float64

		if numIterations > 0 {
			inRangeScalar(img, math.SmallestNonzeroFloat32,
				threshold-math.SmallestNonzeroFloat32, &maskMat)
			meanVal, sigmaVal = meanStdDevWithMask(img, maskMat)
		} else {
			meanVal, sigmaVal = matMeanStdDev(img)
		}

		numIterations++
		if numIterations > 1 {
			if math.Abs(sigmaVal-lastSigma) <= allowedError {
				lastSigma = sigmaVal
				lastBackgroundMean = meanVal
				break
			}
		}
		threshold = float32(meanVal + clippingMultiplier*sigmaVal)
		lastSigma = sigmaVal
		lastBackgroundMean = meanVal
	}

	return KappaSigmaResult{
		Sigma:          lastSigma,
		BackgroundMean: lastBackgroundMean,
		NumIterations:  numIterations,
	}
}

func meanStdDevWithMask(img Mat, mask Mat) (float64, float64) {
	imgData := img.DataFloat32()
	maskData := mask.DataFloat32()
	numPixels := img.Rows() * img.Cols()

	var sum float64
	var count int64
	for i := 0; i < numPixels; i++ {
		if maskData[i] != 0 {
			sum += float64(imgData[i])
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	mean := sum / float64(count)

	var sse float64
	for i := 0; i < numPixels; i++ {
		if maskData[i] != 0 {
			diff := float64(imgData[i]) - mean
			sse += diff * diff
		}
	}
	return mean, math.Sqrt(sse / float64(count))
}

// BilinearSamplePixelValue samples a pixel value using bilinear interpolation.
func BilinearSamplePixelValue(img Mat, y, x float64) float64 {
	y0 := int(math.Floor(y))
	y1 := y0 + 1
	if y1 > img.Rows()-1 {
		y1 = img.Rows() - 1
	}
	x0 := int(math.Floor(x))
	x1 := x0 + 1
	if x1 > img.Cols()-1 {
		x1 = img.Cols() - 1
	}
	yRatio := y - float64(y0)
	xRatio := x - float64(x0)

	data := img.DataFloat32()
	width := img.Cols()
	p00 := float64(data[y0*width+x0])
	p01 := float64(data[y0*width+x1])
	p10 := float64(data[y1*width+x0])
	p11 := float64(data[y1*width+x1])
	interpolatedX0 := p00 + xRatio*(p01-p00)
	interpolatedX1 := p10 + xRatio*(p11-p10)
	return interpolatedX0 + yRatio*(interpolatedX1-interpolatedX0)
}

// MatMedian returns the median pixel value of the mat.
func MatMedian(img Mat) float64 {
	data := img.DataFloat32()
	n := img.Rows() * img.Cols()
	if n == 0 {
		return 0
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = float64(data[i])
	}
	return MedianFloat64(values)
}

// MedianFloat64 returns the median of the values; the input is not modified.
func MedianFloat64(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// MedianMAD returns the median and the scaled median absolute deviation
// (1.4826 * MAD, the consistency factor for a normal distribution).
func MedianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	median := MedianFloat64(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	return median, 1.4826 * MedianFloat64(deviations)
}

// FieldSummary aggregates the shape measurements of a field.
type FieldSummary struct {
	Measured    int
	Failed      int
	MedianFWHM  float64
	FWHMMAD     float64
	MedianEllip float64
	EllipMAD    float64
	MedianFlux  float64
}

// fwhmFromMoments converts second moments to a mean FWHM in pixels.
func fwhmFromMoments(q Quadrupole) float64 {
	// sigma of the equivalent circular Gaussian is the trace radius.
	return 2 * math.Sqrt(2*math.Ln2) * q.TraceRadius()
}

// ellipticity is the distortion |e| = sqrt(e1^2 + e2^2) of the moments.
func ellipticity(q Quadrupole) float64 {
	d := q.IXX + q.IYY
	if d <= 0 {
		return math.NaN()
	}
	e1 := (q.IXX - q.IYY) / d
	e2 := 2 * q.IXY / d
	return math.Hypot(e1, e2)
}

// SummarizeField computes median FWHM, ellipticity and flux over the
// successfully measured sources.
func SummarizeField(results []ShapeResult) FieldSummary {
	var s FieldSummary
	fwhms := make([]float64, 0, len(results))
	ellips := make([]float64, 0, len(results))
	fluxes := make([]float64, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Measured++
		q := r.Quadrupole()
		fwhms = append(fwhms, fwhmFromMoments(q))
		if e := ellipticity(q); !math.IsNaN(e) {
			ellips = append(ellips, e)
		}
		if !math.IsNaN(r.InstFlux) {
			fluxes = append(fluxes, r.InstFlux)
		}
	}
	s.MedianFWHM, s.FWHMMAD = MedianMAD(fwhms)
	s.MedianEllip, s.EllipMAD = MedianMAD(ellips)
	s.MedianFlux = MedianFloat64(fluxes)
	return s
}
