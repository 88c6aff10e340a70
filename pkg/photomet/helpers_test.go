package photomet

import (
	"math"
	"testing"
)

// addGaussian adds an elliptical Gaussian with total-moment matrix
// (sxx, sxy, syy) and central amplitude a, evaluated at pixel centres.
func addGaussian(im *Image[float32], x0, y0, a, sxx, syy, sxy float64) {
	det := sxx*syy - sxy*sxy
	w11 := syy / det
	w22 := sxx / det
	w12 := -sxy / det
	for y := 0; y < im.H; y++ {
		dy := float64(y) - y0
		for x := 0; x < im.W; x++ {
			dx := float64(x) - x0
			expon := dx*dx*w11 + 2*dx*dy*w12 + dy*dy*w22
			im.Pix[y*im.W+x] += float32(a * math.Exp(-0.5*expon))
		}
	}
}

func makeGaussianImage(w, h int, x0, y0, a, sxx, syy, sxy float64) *Image[float32] {
	im := NewImage[float32](w, h, 0, 0)
	addGaussian(im, x0, y0, a, sxx, syy, sxy)
	return im
}

func approxEq(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

func relEq(t *testing.T, name string, got, want, relTol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > relTol*math.Abs(want) {
		t.Errorf("%s = %v, want %v (rel tol %v)", name, got, want, relTol)
	}
}
