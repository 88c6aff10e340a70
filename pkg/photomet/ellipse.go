package photomet

import (
	"image"
	"math"
)

// floatEpsilon and doubleEpsilon are the single- and double-precision
// machine epsilons. Determinants below them are treated as singular
// throughout the moment code.
const (
	floatEpsilon  = 1.19209290e-07
	doubleEpsilon = 2.220446049250313e-16
)

// Point2d is a position in pixel coordinates.
type Point2d struct {
	X, Y float64
}

// Quadrupole is a symmetric second-moment ellipse (Ixx, Iyy, Ixy).
type Quadrupole struct {
	IXX float64 `json:"ixx"`
	IYY float64 `json:"iyy"`
	IXY float64 `json:"ixy"`
}

// Determinant returns Ixx*Iyy - Ixy^2.
func (q Quadrupole) Determinant() float64 {
	return q.IXX*q.IYY - q.IXY*q.IXY
}

// Singular reports whether the ellipse cannot be inverted.
func (q Quadrupole) Singular() bool {
	d := q.Determinant()
	return math.IsNaN(d) || d < floatEpsilon
}

// TraceRadius returns sqrt((Ixx+Iyy)/2), a scalar size measure.
func (q Quadrupole) TraceRadius() float64 {
	return math.Sqrt(0.5 * (q.IXX + q.IYY))
}

// Axes returns the semi-major axis, semi-minor axis and position angle
// (radians, counter-clockwise from +x) of the ellipse.
func (q Quadrupole) Axes() (a, b, theta float64) {
	xx, yy, xy := q.IXX, q.IYY, q.IXY
	t := 0.5 * (xx + yy)
	d := math.Sqrt(0.25*(xx-yy)*(xx-yy) + xy*xy)
	a = math.Sqrt(math.Max(t+d, 0))
	b = math.Sqrt(math.Max(t-d, 0))
	theta = 0.5 * math.Atan2(2*xy, xx-yy)
	return a, b, theta
}

// getWeights inverts a moment matrix (sigma11, sigma12, sigma22) into the
// inverse-covariance triple used to weight pixel sums. ok is false when any
// input is NaN or the determinant is below single-precision epsilon; the
// determinant is returned in either case so callers can inspect it.
func getWeights(sigma11, sigma12, sigma22 float64) (ok bool, det, w11, w12, w22 float64) {
	nan := math.NaN()
	if math.IsNaN(sigma11) || math.IsNaN(sigma12) || math.IsNaN(sigma22) {
		return false, nan, nan, nan, nan
	}
	det = sigma11*sigma22 - sigma12*sigma12
	if math.IsNaN(det) || det < floatEpsilon {
		return false, det, nan, nan, nan
	}
	return true, det, sigma22 / det, -sigma12 / det, sigma11 / det
}

// shouldInterp decides whether sub-pixel integration is needed: the
// weighting Gaussian is narrower than about half a pixel in some direction.
func shouldInterp(sigma11, sigma22, det float64) bool {
	const xinterp = 0.25 // 0.5^2
	return sigma11 < xinterp || sigma22 < xinterp || det < xinterp*xinterp
}

// maxMomentsRadius caps the half-side of the region examined for a single
// moments call.
const maxMomentsRadius = 1000

// adaptiveMomentsBBox returns the image region to accumulate over: the
// square of half-side 4*sqrt(max(sigma11, sigma22)) around the centre,
// capped at maxRadius and clipped to bounds. Works in whichever frame the
// inputs share.
func adaptiveMomentsBBox(bounds image.Rectangle, center Point2d,
	sigma11W, sigma22W, maxRadius float64) image.Rectangle {
	radius := math.Min(4*math.Sqrt(math.Max(sigma11W, sigma22W)), maxRadius)
	box := image.Rect(
		positionToIndex(center.X-radius), positionToIndex(center.Y-radius),
		positionToIndex(center.X+radius)+1, positionToIndex(center.Y+radius)+1)
	return box.Intersect(bounds)
}
