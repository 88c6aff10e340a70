package photomet

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// calcFisher fills the analytic 4x4 Fisher matrix for the Gaussian-fit
// parameters (I0, sigma11, sigma22, sigma12), given the background variance
// at the object. Following Numerical Recipes 15.5 the second-derivative
// terms are dropped, so the matrix is a closed form of the best-fit
// parameters alone.
func calcFisher(i0, sigma11W, sigma12W, sigma22W, bkgdVar float64) (*mat.SymDense, error) {
	d := sigma11W*sigma22W - sigma12W*sigma12W
	if d <= doubleEpsilon {
		return nil, domainErrorf("determinant %g too small calculating Fisher matrix", d)
	}
	if bkgdVar <= 0 {
		return nil, domainErrorf("background variance must be positive (saw %g)", bkgdVar)
	}
	f := math.Pi * math.Sqrt(d) / bkgdVar

	fisher := mat.NewSymDense(4, nil)

	fac := f * i0 / (4 * d)
	fisher.SetSym(0, 0, f)
	fisher.SetSym(0, 1, fac*sigma22W)
	fisher.SetSym(0, 2, fac*sigma11W)
	fisher.SetSym(0, 3, -fac*2*sigma12W)

	fac = 3 * f * i0 * i0 / (16 * d * d)
	fisher.SetSym(1, 1, fac*sigma22W*sigma22W)
	fisher.SetSym(2, 2, fac*sigma11W*sigma11W)
	fisher.SetSym(3, 3, fac*4*(sigma12W*sigma12W+d/3))

	fisher.SetSym(1, 2, fisher.At(3, 3)/4)
	fisher.SetSym(1, 3, fac*(-2*sigma22W*sigma12W))
	fisher.SetSym(2, 3, fac*(-2*sigma11W*sigma12W))

	return fisher, nil
}

// fillShapeErrors inverts the Fisher matrix and populates the uncertainty
// and covariance fields of a converged shape result. The flux fields are
// still in zeroth-moment units at this point; the geometric scaling is
// applied by the driver afterwards.
func fillShapeErrors(r *ShapeResult, bkgdVar float64) error {
	fisher, err := calcFisher(r.InstFlux, r.XX, r.XY, r.YY, bkgdVar)
	if err != nil {
		return err
	}

	var cov mat.Dense
	if err := cov.Inverse(fisher); err != nil {
		return domainErrorf("Fisher matrix is not invertible: %v", err)
	}

	r.InstFluxErr = math.Sqrt(cov.At(0, 0))
	r.XXErr = math.Sqrt(cov.At(1, 1))
	r.YYErr = math.Sqrt(cov.At(2, 2))
	r.XYErr = math.Sqrt(cov.At(3, 3))
	r.InstFluxXXCov = cov.At(0, 1)
	r.InstFluxYYCov = cov.At(0, 2)
	r.InstFluxXYCov = cov.At(0, 3)
	r.XXYYCov = cov.At(1, 2)
	r.XXXYCov = cov.At(1, 3)
	r.YYXYCov = cov.At(2, 3)
	return nil
}
