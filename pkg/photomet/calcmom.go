package photomet

import (
	"image"
	"math"
)

// Sub-pixel integration constants: a 4x4 grid with step 0.25 spanning
// +/-0.375 around each pixel centre. The exponent cutoffs bound the cost
// of the per-sample exp() and are the only sample-skipping criteria.
const (
	subPixelHalf   = 0.375
	subPixelStep   = 0.25
	subPixelN      = 4
	exponCutDirect = 14.0
	exponCutInterp = 9.0
)

// momentSums carries the weighted sums accumulated by calcmom.
type momentSums struct {
	i0    float64 // amplitude of the best-fit Gaussian
	sum   float64 // sum w*I
	sumx  float64 // sum x*w*I
	sumy  float64 // sum y*w*I
	sumxx float64 // sum x^2*w*I
	sumxy float64 // sum xy*w*I
	sumyy float64 // sum y^2*w*I
	sums4 float64 // sum w*I*expon^2
}

func checkMomentArgs(im ImageView, bbox image.Rectangle, w11, w12, w22 float64) error {
	if w11 < 0 || w11 > 1e6 || math.Abs(w12) > 1e6 || w22 < 0 || w22 > 1e6 {
		return invalidParameterf("invalid weight parameter(s) (%g, %g, %g)", w11, w12, w22)
	}
	if bbox.Empty() {
		return lengthErrorf("empty moments bounding box")
	}
	if bbox.Min.X < 0 || bbox.Max.X > im.Width() || bbox.Min.Y < 0 || bbox.Max.Y > im.Height() {
		return lengthErrorf("moments bounding box %v escapes %dx%d image",
			bbox, im.Width(), im.Height())
	}
	return nil
}

// subPixelExponent returns the largest Gaussian exponent over the four
// corners of the sub-pixel square centred on (x, y).
func subPixelExponent(x, y, w11, w12, w22 float64) float64 {
	xl, xh := x-subPixelHalf, x+subPixelHalf
	yl, yh := y-subPixelHalf, y+subPixelHalf
	expon := xl*xl*w11 + yl*yl*w22 + 2*xl*yl*w12
	if e := xh*xh*w11 + yh*yh*w22 + 2*xh*yh*w12; e > expon {
		expon = e
	}
	if e := xl*xl*w11 + yh*yh*w22 + 2*xl*yh*w12; e > expon {
		expon = e
	}
	if e := xh*xh*w11 + yl*yl*w22 + 2*xh*yl*w12; e > expon {
		expon = e
	}
	return expon
}

// calcmomFluxOnly accumulates just sum w*I over bbox. bbox is in local
// coordinates with exclusive Max, and must lie wholly within the image.
func calcmomFluxOnly(im ImageView, xcen, ycen float64, bbox image.Rectangle,
	bkgd float64, interp bool, w11, w12, w22 float64) (float64, error) {
	if err := checkMomentArgs(im, bbox, w11, w12, w22); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := bbox.Min.Y; i < bbox.Max.Y; i++ {
		y := float64(i) - ycen
		for j := bbox.Min.X; j < bbox.Max.X; j++ {
			x := float64(j) - xcen
			if interp {
				if subPixelExponent(x, y, w11, w12, w22) > exponCutInterp {
					continue
				}
				tmod := im.At(j, i) - bkgd
				for iy := 0; iy < subPixelN; iy++ {
					sy := y - subPixelHalf + subPixelStep*float64(iy)
					for ix := 0; ix < subPixelN; ix++ {
						sx := x - subPixelHalf + subPixelStep*float64(ix)
						expon := sx*sx*w11 + 2*sx*sy*w12 + sy*sy*w22
						sum += tmod * math.Exp(-0.5*expon)
					}
				}
			} else {
				expon := x*x*w11 + 2*x*y*w12 + y*y*w22
				if expon <= exponCutDirect {
					sum += (im.At(j, i) - bkgd) * math.Exp(-0.5*expon)
				}
			}
		}
	}
	return sum, nil
}

// calcmom accumulates weighted moments of the object up to second order.
// The returned status is 0 when sum, sumxx and sumyy all have the expected
// sign (negative when the negative flag is set), -1 otherwise.
func calcmom(im ImageView, xcen, ycen float64, bbox image.Rectangle,
	bkgd float64, interp bool, w11, w12, w22 float64,
	negative bool) (momentSums, int, error) {
	var m momentSums
	if err := checkMomentArgs(im, bbox, w11, w12, w22); err != nil {
		return m, -1, err
	}

	for i := bbox.Min.Y; i < bbox.Max.Y; i++ {
		y := float64(i) - ycen
		for j := bbox.Min.X; j < bbox.Max.X; j++ {
			x := float64(j) - xcen
			if interp {
				if subPixelExponent(x, y, w11, w12, w22) > exponCutInterp {
					continue
				}
				tmod := im.At(j, i) - bkgd
				for iy := 0; iy < subPixelN; iy++ {
					sy := y - subPixelHalf + subPixelStep*float64(iy)
					for ix := 0; ix < subPixelN; ix++ {
						sx := x - subPixelHalf + subPixelStep*float64(ix)
						expon := sx*sx*w11 + 2*sx*sy*w12 + sy*sy*w22
						ymod := tmod * math.Exp(-0.5*expon)
						m.sum += ymod
						m.sumx += ymod * (sx + xcen)
						m.sumy += ymod * (sy + ycen)
						m.sumxx += sx * sx * ymod
						m.sumxy += sx * sy * ymod
						m.sumyy += sy * sy * ymod
						m.sums4 += expon * expon * ymod
					}
				}
			} else {
				x2 := x * x
				xy := x * y
				y2 := y * y
				expon := x2*w11 + 2*xy*w12 + y2*w22
				if expon <= exponCutDirect {
					ymod := (im.At(j, i) - bkgd) * math.Exp(-0.5*expon)
					m.sum += ymod
					m.sumx += ymod * float64(j)
					m.sumy += ymod * float64(i)
					m.sumxx += x2 * ymod
					m.sumxy += xy * ymod
					m.sumyy += y2 * ymod
					m.sums4 += expon * expon * ymod
				}
			}
		}
	}

	// The amplitude divides out the weight normalisation: detW here is the
	// determinant of the inverted weight matrix, NaN when the weights are
	// singular (e.g. the unweighted w=0 case), which leaves i0 NaN too.
	_, _, s11, s12, s22 := getWeights(w11, w12, w22)
	detW := s11*s22 - s12*s12
	m.i0 = m.sum / (math.Pi * math.Sqrt(detW))

	if negative {
		if m.sum < 0 && m.sumxx < 0 && m.sumyy < 0 {
			return m, 0, nil
		}
		return m, -1, nil
	}
	if m.sum > 0 && m.sumxx > 0 && m.sumyy > 0 {
		return m, 0, nil
	}
	return m, -1, nil
}
