package photomet

import (
	"image"
	"math"
)

// ShapeControl configures the adaptive-moments fit.
type ShapeControl struct {
	// Background is the scalar level subtracted from every pixel.
	Background float64 `yaml:"background"`
	// MaxIter caps the number of weight-update iterations.
	MaxIter int `yaml:"maxIter"`
	// MaxShift is the maximum allowed centroid displacement from the seed,
	// in pixels. Values outside [2, 10] are silently clamped to that range.
	// A shift beyond the (clamped) limit sets the shift flag, which is
	// treated as fatal at the result level.
	MaxShift float64 `yaml:"maxShift"`
	// Tol1 is the convergence tolerance on the e1/e2 shape invariants.
	Tol1 float64 `yaml:"tol1"`
	// Tol2 is the convergence tolerance on the relative change of sigma11.
	Tol2 float64 `yaml:"tol2"`
	// DoMeasurePsf requests an adaptive-moments measurement of the PSF
	// stamp alongside the source (see MeasureShape).
	DoMeasurePsf bool `yaml:"doMeasurePsf"`
}

// DefaultShapeControl mirrors the stock configuration.
func DefaultShapeControl() ShapeControl {
	return ShapeControl{
		Background:   0.0,
		MaxIter:      100,
		MaxShift:     0,
		Tol1:         5e-4,
		Tol2:         1e-3,
		DoMeasurePsf: true,
	}
}

// Sentinel "previous iteration" values, large enough that the first
// convergence test can never pass.
const shapeSentinel = 1e6

// getAdaptiveMoments is the workhorse: it iterates the weighted-moments
// kernel, driving the weight ellipse toward the measured object ellipse.
// All inputs are LOCAL coordinates. The bool result is false when the fit
// failed outright; classified failures land in r.Flags. A non-nil error is
// a precondition-style failure from the kernel and is translated by the
// caller, never propagated to users mid-iteration.
func getAdaptiveMoments(im ImageView, bkgd, xcen, ycen, shiftmax float64,
	r *ShapeResult, maxIter int, tol1, tol2 float64, negative bool) (bool, error) {
	xcen0, ycen0 := xcen, ycen // initial centre of object

	sigma11W := 1.5 // quadratic moments of the weighting function
	sigma12W := 0.0
	sigma22W := 1.5

	w11, w12, w22 := -1.0, -1.0, -1.0 // always set when iter == 0
	e1Old, e2Old := shapeSentinel, shapeSentinel
	sigma11OWOld := shapeSentinel

	if math.IsNaN(xcen) || math.IsNaN(ycen) {
		r.Flags[ShapeFlagUnweightedBad.Number] = true
		return false, nil
	}

	interp := false // interpolate finer than a pixel?
	var sums momentSums
	bounds := imageBounds(im)
	bbox := bounds

	iter := 0
	for ; iter < maxIter; iter++ {
		bbox = adaptiveMomentsBBox(bounds, Point2d{X: xcen, Y: ycen},
			sigma11W, sigma22W, maxMomentsRadius)
		ok, detW, nw11, nw12, nw22 := getWeights(sigma11W, sigma12W, sigma22W)
		if !ok {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}

		if sigma11W*sigma22W < sigma12W*sigma12W-floatEpsilon {
			return false, nil
		}

		ow11, ow12, ow22 := w11, w12, w22 // previous values
		w11, w12, w22 = nw11, nw12, nw22

		if shouldInterp(sigma11W, sigma22W, detW) && !interp {
			interp = true // stays set for this object
			if iter > 0 {
				sigma11OWOld = shapeSentinel // force at least one more iteration
				// Redo this pass with the previous weights, now on the
				// sub-pixel grid.
				w11, w12, w22 = ow11, ow12, ow22
				iter-- // we didn't update wXX
			}
		}

		var status int
		var err error
		sums, status, err = calcmom(im, xcen, ycen, bbox, bkgd, interp,
			w11, w12, w22, negative)
		if err != nil {
			return false, err
		}
		if status < 0 {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}

		r.X = sums.sumx / sums.sum // update centroid; errors come later
		r.Y = sums.sumy / sums.sum

		if math.Abs(r.X-xcen0) > shiftmax || math.Abs(r.Y-ycen0) > shiftmax {
			r.Flags[ShapeFlagShift.Number] = true
		}

		// Second moments of the weighted object.
		sigma11OW := sums.sumxx / sums.sum
		sigma22OW := sums.sumyy / sums.sum
		sigma12OW := sums.sumxy / sums.sum

		if sigma11OW <= 0 || sigma22OW <= 0 {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}

		d := sigma11OW + sigma22OW
		e1 := (sigma11OW - sigma22OW) / d
		e2 := 2 * sigma12OW / d

		if iter > 0 && math.Abs(e1-e1Old) < tol1 && math.Abs(e2-e2Old) < tol1 &&
			math.Abs(sigma11OW/sigma11OWOld-1) < tol2 {
			break // converged
		}

		e1Old, e2Old = e1, e2
		sigma11OWOld = sigma11OW

		// The product of two Gaussians is a Gaussian whose inverse
		// covariance is the sum of the inverses. Taking the weighted-object
		// moments as the product of the true object and the current weight,
		// the object's inverse covariance is sigmaOW^-1 - sigmaW^-1, and
		// that is the next weight. Either inversion can go singular (e.g.
		// a pair of delta functions), which is classified as the
		// unweighted-fallback case rather than an error.
		ok, _, ow11, ow12, ow22 = getWeights(sigma11OW, sigma12OW, sigma22OW)
		if !ok {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}

		n11 := ow11 - w11
		n12 := ow12 - w12
		n22 := ow22 - w22

		ok, _, sigma11W, sigma12W, sigma22W = getWeights(n11, n12, n22)
		if !ok {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}

		if sigma11W <= 0 || sigma22W <= 0 {
			r.Flags[ShapeFlagUnweighted.Number] = true
			break
		}
	}

	if iter == maxIter {
		r.Flags[ShapeFlagUnweighted.Number] = true
		r.Flags[ShapeFlagMaxIter.Number] = true
	}
	if sums.sumxx+sums.sumyy == 0 {
		r.Flags[ShapeFlagUnweighted.Number] = true
	}

	// Problems; fall back to the unweighted moments over the last box.
	if r.Flags[ShapeFlagUnweighted.Number] {
		var status int
		var err error
		sums, status, err = calcmom(im, xcen, ycen, bbox, bkgd, interp,
			0, 0, 0, negative)
		if err != nil || status < 0 ||
			(!negative && sums.sum <= 0) || (negative && sums.sum >= 0) {
			r.Flags[ShapeFlagUnweighted.Number] = false
			r.Flags[ShapeFlagUnweightedBad.Number] = true

			if sums.sum > 0 {
				r.XX = 1 / 12.0 // a single pixel
				r.XY = 0.0
				r.YY = 1 / 12.0
			}
			return false, nil
		}

		sigma11W = sums.sumxx / sums.sum // estimate of object moments;
		sigma12W = sums.sumxy / sums.sum //   usually object == weight
		sigma22W = sums.sumyy / sums.sum //      at this point
	}

	r.InstFlux = sums.i0
	r.XX = sigma11W
	r.XY = sigma12W
	r.YY = sigma22W

	if r.XX+r.YY != 0 {
		ix := positionToIndex(xcen)
		iy := positionToIndex(ycen)
		if contains(im, ix, iy) {
			// Overestimate: the variance at the object includes the object.
			bkgdVar := im.VarianceAt(ix, iy)
			if bkgdVar > 0 && !r.Flags[ShapeFlagUnweighted.Number] {
				if err := fillShapeErrors(r, bkgdVar); err != nil {
					return false, err
				}
			}
		}
	}

	return true, nil
}

// ComputeAdaptiveMoments measures the elliptical Gaussian adaptive moments
// of the object at center (parent coordinates). Classified per-source
// failures are reported on the result's flags; the only error return is
// the internal-consistency guard on a singular unflagged result.
func ComputeAdaptiveMoments(im ImageView, center Point2d, negative bool,
	ctrl ShapeControl) (ShapeResult, error) {
	xcen := center.X - float64(im.OriginX()) // work in local coordinates
	ycen := center.Y - float64(im.OriginY())

	shiftmax := ctrl.MaxShift
	if shiftmax < 2 {
		shiftmax = 2
	} else if shiftmax > 10 {
		shiftmax = 10
	}

	result := NewShapeResult()
	ok, err := getAdaptiveMoments(im, ctrl.Background, xcen, ycen, shiftmax,
		&result, ctrl.MaxIter, ctrl.Tol1, ctrl.Tol2, negative)
	// Kernel precondition violations are classified, not propagated.
	result.Flags[0] = !ok || err != nil

	if result.Flags[ShapeFlagUnweighted.Number] || result.Flags[ShapeFlagShift.Number] {
		// Also fatal for the quality of the result, even though values
		// were produced.
		result.Flags[0] = true
	}

	ixxIyy := result.XX * result.YY
	ixySq := result.XY * result.XY
	const epsilon = 1.0e-6
	if ixxIyy < (1+epsilon)*ixySq && !result.Flags[0] {
		return result, logicErrorf(
			"adaptive moments Ixx*Iyy=%g < (1+%g)*Ixy^2=%g; singular moments without any flag set",
			ixxIyy, epsilon, ixySq)
	}

	// The iteration computes the zeroth moment; scale to an instrumental
	// flux with the bivariate normalisation 2*pi*sqrt(det(I)).
	instFluxScale := 2 * math.Pi * math.Sqrt(ixxIyy-ixySq)

	result.InstFlux *= instFluxScale
	result.InstFluxErr *= instFluxScale
	result.X += float64(im.OriginX())
	result.Y += float64(im.OriginY())

	if im.HasVariance() {
		result.InstFluxXXCov *= instFluxScale
		result.InstFluxYYCov *= instFluxScale
		result.InstFluxXYCov *= instFluxScale
	}

	return result, nil
}

// MeasureShape measures the source's adaptive moments and, when requested
// and a PSF stamp is supplied, the stamp's moments too. A failed stamp
// measurement sets only the psf flag; the source measurement stands.
func MeasureShape(im ImageView, psf ImageView, center Point2d, negative bool,
	ctrl ShapeControl) (ShapeResult, error) {
	result, err := ComputeAdaptiveMoments(im, center, negative, ctrl)
	if err != nil {
		return result, err
	}

	if ctrl.DoMeasurePsf {
		if psf == nil {
			result.Flags[ShapeFlagPsfShapeBad.Number] = true
			return result, nil
		}
		psfCenter := Point2d{
			X: float64(psf.OriginX()) + float64(psf.Width())/2,
			Y: float64(psf.OriginY()) + float64(psf.Height())/2,
		}
		psfResult, psfErr := ComputeAdaptiveMoments(psf, psfCenter, false, ctrl)
		if psfErr != nil || psfResult.Failed() {
			result.Flags[ShapeFlagPsfShapeBad.Number] = true
		} else {
			q := psfResult.Quadrupole()
			result.PsfShape = &q
		}
	}

	return result, nil
}

func imageBounds(im ImageView) image.Rectangle {
	return image.Rect(0, 0, im.Width(), im.Height())
}
