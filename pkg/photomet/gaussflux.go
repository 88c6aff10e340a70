package photomet

import "math"

// fixedMomentsFlux integrates the image under the elliptical Gaussian
// weight given by shape, centred at center (parent coordinates), after
// subtracting bkgd from every pixel.
func fixedMomentsFlux(im ImageView, shape Quadrupole, center Point2d,
	bkgd float64) (FluxResult, error) {
	result := NewFluxResult()

	// Arguments are parent coordinates; the accumulation is local.
	local := Point2d{
		X: center.X - float64(im.OriginX()),
		Y: center.Y - float64(im.OriginY()),
	}

	bbox := adaptiveMomentsBBox(imageBounds(im), local,
		shape.IXX, shape.IYY, maxMomentsRadius)

	ok, det, w11, w12, w22 := getWeights(shape.IXX, shape.IXY, shape.IYY)
	if !ok {
		return result, invalidParameterf("input shape (%g, %g, %g) is singular",
			shape.IXX, shape.IYY, shape.IXY)
	}
	interp := shouldInterp(shape.IXX, shape.IYY, det)

	sum0, err := calcmomFluxOnly(im, local.X, local.Y, bbox, bkgd, interp,
		w11, w12, w22)
	if err != nil {
		return result, err
	}

	result.InstFlux = sum0 * 2

	if im.HasVariance() {
		ix := int(center.X - float64(im.OriginX()))
		iy := int(center.Y - float64(im.OriginY()))
		if !contains(im, ix, iy) {
			return result, runtimeErrorf("center (%d,%d) not in image (%dx%d)",
				ix, iy, im.Width(), im.Height())
		}
		variance := im.VarianceAt(ix, iy)
		// 0th moment error = sqrt(var / wArea); instFlux = 2 * wArea * i0.
		wArea := math.Pi * math.Sqrt(shape.Determinant())
		result.InstFluxErr = 2 * math.Sqrt(variance*wArea)
	}

	return result, nil
}

// ComputeFixedMomentsFlux measures the Gaussian-weighted flux under a
// caller-supplied ellipse, with no background subtraction. Feeding back
// the ellipse measured by ComputeAdaptiveMoments recovers its flux.
func ComputeFixedMomentsFlux(im ImageView, shape Quadrupole,
	center Point2d) (FluxResult, error) {
	return fixedMomentsFlux(im, shape, center, 0.0)
}

// GaussianFlux is the catalog-level entry point: fixed-moments flux with
// an explicit background level.
func GaussianFlux(im ImageView, center Point2d, shape Quadrupole,
	background float64) (FluxResult, error) {
	return fixedMomentsFlux(im, shape, center, background)
}
