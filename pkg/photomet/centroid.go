package photomet

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitStatus classifies the outcome of the 2-D Gaussian peak fit. Positive
// statuses are usable; non-positive ones describe how the fit failed.
type FitStatus int

const (
	FitBadGuess   FitStatus = -11 // initial estimate rejected
	FitTooFew     FitStatus = -12 // insufficient valid pixels
	FitChiSquared FitStatus = -13 // chi^2 failed to decrease
	FitRange      FitStatus = -14 // parameter moved out of legal range
	FitBadWidth   FitStatus = -15 // sigma became non-positive
	FitLost       FitStatus = -16 // step did not reduce residual
	FitDiagonal   FitStatus = -17 // normal-matrix diagonal non-positive
	FitBadA       FitStatus = -18 // amplitude collapsed

	FitConverge FitStatus = 1 // converged normally
	FitIterate  FitStatus = 2 // still iterating
	FitAlmost   FitStatus = 3 // converged marginally
	FitPoor     FitStatus = 4 // converged with elevated chi^2
)

// Good reports whether the fitted parameters are usable.
func (s FitStatus) Good() bool { return s > 0 }

// Parameter slots of the fitted model.
const (
	ParamPeak = iota
	ParamSky
	ParamX0
	ParamY0
	ParamSigma
	NFitParam
)

// FittedModel is the full outcome of the peak fit: the parameter vector
// (PEAK, SKY, X0, Y0, SIGMA) in LOCAL coordinates, the iteration count,
// the final Marquardt damping, and the final chi^2. Parameters are
// returned even on non-convergence.
type FittedModel struct {
	Status FitStatus
	Params [NFitParam]float64
	Iter   int
	Lambda float64
	Chi2   float64
}

const (
	fitPatchHalf  = 15   // half-width of the fit region around the seed
	fitMaxIter    = 100  // per fit stage
	fitTol        = 1e-7 // relative chi^2 convergence tolerance
	fitAlmostTol  = 1e-4 // tolerance for the marginal-convergence class
	fitLambdaInit = 1e-3
	fitLambdaMax  = 1e10
	fitPoorR2     = 0.5 // residual fraction above which a fit is POOR
)

func gaussModel(p *[NFitParam]float64, x, y float64) float64 {
	dx := x - p[ParamX0]
	dy := y - p[ParamY0]
	s2 := p[ParamSigma] * p[ParamSigma]
	return p[ParamSky] + p[ParamPeak]*math.Exp(-0.5*(dx*dx+dy*dy)/s2)
}

func gaussGradient(p *[NFitParam]float64, x, y float64, grad *[NFitParam]float64) {
	dx := x - p[ParamX0]
	dy := y - p[ParamY0]
	sigma := p[ParamSigma]
	s2 := sigma * sigma
	r2 := dx*dx + dy*dy
	e := math.Exp(-0.5 * r2 / s2)
	peak := p[ParamPeak]

	grad[ParamPeak] = e
	grad[ParamSky] = 1
	grad[ParamX0] = peak * e * dx / s2
	grad[ParamY0] = peak * e * dy / s2
	grad[ParamSigma] = peak * e * r2 / (s2 * sigma)
}

// fitPatch is the set of samples the fit runs over.
type fitPatch struct {
	xs, ys, vals []float64
	bounds       image.Rectangle // legal range for (X0, Y0)
}

func chiSquared(p *[NFitParam]float64, patch *fitPatch) float64 {
	chi2 := 0.0
	for k := range patch.vals {
		r := gaussModel(p, patch.xs[k], patch.ys[k]) - patch.vals[k]
		chi2 += r * r
	}
	return chi2
}

// marquardt runs one damped least-squares stage over the parameters
// selected by active, mutating p in place. It returns ITERATE on a normal
// tolerance-met exit and the specific failure status otherwise.
func marquardt(p *[NFitParam]float64, patch *fitPatch, active [NFitParam]bool,
	model *FittedModel) FitStatus {
	n := 0
	var idx [NFitParam]int
	for j := 0; j < NFitParam; j++ {
		if active[j] {
			idx[n] = j
			n++
		}
	}

	lambda := fitLambdaInit
	chi2 := chiSquared(p, patch)
	chi2First := chi2

	jtj := mat.NewDense(n, n, nil)
	jtf := mat.NewVecDense(n, nil)
	damped := mat.NewDense(n, n, nil)
	var dx mat.VecDense
	var grad [NFitParam]float64

	iter := 0
	for ; iter < fitMaxIter; iter++ {
		jtj.Zero()
		jtf.Zero()
		for k := range patch.vals {
			res := gaussModel(p, patch.xs[k], patch.ys[k]) - patch.vals[k]
			gaussGradient(p, patch.xs[k], patch.ys[k], &grad)
			for a := 0; a < n; a++ {
				ga := grad[idx[a]]
				jtf.SetVec(a, jtf.AtVec(a)+ga*res)
				for b := a; b < n; b++ {
					jtj.Set(a, b, jtj.At(a, b)+ga*grad[idx[b]])
				}
			}
		}
		for a := 0; a < n; a++ {
			for b := 0; b < a; b++ {
				jtj.Set(a, b, jtj.At(b, a))
			}
			if jtj.At(a, a) <= 0 {
				model.Status = FitDiagonal
				return FitDiagonal
			}
		}

		accepted := false
		for lambda <= fitLambdaMax {
			damped.Copy(jtj)
			for a := 0; a < n; a++ {
				damped.Set(a, a, jtj.At(a, a)*(1+lambda))
			}
			if err := dx.SolveVec(damped, jtf); err != nil {
				lambda *= 10
				continue
			}

			trial := *p
			for a := 0; a < n; a++ {
				trial[idx[a]] -= dx.AtVec(a)
			}

			if trial[ParamSigma] <= 0 {
				model.Status = FitBadWidth
				return FitBadWidth
			}
			if active[ParamPeak] && trial[ParamPeak] <= 0 {
				model.Status = FitBadA
				return FitBadA
			}
			if trial[ParamX0] < float64(patch.bounds.Min.X) ||
				trial[ParamX0] > float64(patch.bounds.Max.X-1) ||
				trial[ParamY0] < float64(patch.bounds.Min.Y) ||
				trial[ParamY0] > float64(patch.bounds.Max.Y-1) {
				model.Status = FitRange
				return FitRange
			}

			chi2New := chiSquared(&trial, patch)
			if chi2New <= chi2 {
				delta := chi2 - chi2New
				*p = trial
				chi2 = chi2New
				lambda = math.Max(lambda/10, 1e-12)
				accepted = true

				if delta <= fitTol*math.Max(chi2, 1e-300) {
					model.Iter += iter + 1
					model.Lambda = lambda
					model.Chi2 = chi2
					return FitIterate
				}
				break
			}
			lambda *= 10
		}

		if !accepted {
			model.Iter += iter + 1
			model.Lambda = lambda
			model.Chi2 = chi2
			model.Status = FitLost
			return FitLost
		}
	}

	model.Iter += iter
	model.Lambda = lambda
	model.Chi2 = chi2
	if chi2 >= chi2First {
		model.Status = FitChiSquared
		return FitChiSquared
	}
	// Ran out of iterations while still improving.
	if chi2First-chi2 <= fitAlmostTol*chi2First {
		return FitAlmost
	}
	return FitIterate
}

// FitGaussian2D fits PEAK*exp(-((x-x0)^2+(y-y0)^2)/(2*sigma^2)) + SKY to
// the image around the seed (LOCAL coordinates), in two stages: a coarse
// fit with the sky frozen at its patch estimate, then the full
// five-parameter fit. Parameters are usable whenever Status is positive.
func FitGaussian2D(im ImageView, xcen, ycen float64) FittedModel {
	model := FittedModel{Status: FitBadGuess}
	for j := range model.Params {
		model.Params[j] = math.NaN()
	}

	ix := positionToIndex(xcen)
	iy := positionToIndex(ycen)
	if math.IsNaN(xcen) || math.IsNaN(ycen) || !contains(im, ix, iy) {
		model.Status = FitRange
		return model
	}

	box := image.Rect(ix-fitPatchHalf, iy-fitPatchHalf,
		ix+fitPatchHalf+1, iy+fitPatchHalf+1).Intersect(imageBounds(im))

	npix := box.Dx() * box.Dy()
	if npix < NFitParam+2 {
		model.Status = FitTooFew
		return model
	}

	patch := &fitPatch{
		xs:     make([]float64, 0, npix),
		ys:     make([]float64, 0, npix),
		vals:   make([]float64, 0, npix),
		bounds: box,
	}
	// Sky estimate from the patch perimeter.
	skySum, skyN := 0.0, 0
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			v := im.At(x, y)
			patch.xs = append(patch.xs, float64(x))
			patch.ys = append(patch.ys, float64(y))
			patch.vals = append(patch.vals, v)
			if x == box.Min.X || x == box.Max.X-1 || y == box.Min.Y || y == box.Max.Y-1 {
				skySum += v
				skyN++
			}
		}
	}
	sky0 := skySum / float64(skyN)

	// Peak estimate: brightest pixel in the 3x3 around the seed.
	peakRaw := math.Inf(-1)
	pkx, pky := ix, iy
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if !contains(im, ix+dx, iy+dy) {
				continue
			}
			if v := im.At(ix+dx, iy+dy); v > peakRaw {
				peakRaw = v
				pkx, pky = ix+dx, iy+dy
			}
		}
	}
	peak0 := peakRaw - sky0
	if !(peak0 > 0) {
		model.Status = FitBadGuess
		return model
	}

	// Width estimate from background-subtracted second moments near the peak.
	wSum, wR2 := 0.0, 0.0
	for dy := -3; dy <= 3; dy++ {
		for dx := -3; dx <= 3; dx++ {
			if !contains(im, pkx+dx, pky+dy) {
				continue
			}
			if v := im.At(pkx+dx, pky+dy) - sky0; v > 0 {
				wSum += v
				wR2 += v * float64(dx*dx+dy*dy)
			}
		}
	}
	sigma0 := 1.5
	if wSum > 0 {
		if s := math.Sqrt(wR2 / (2 * wSum)); s > 0.5 {
			sigma0 = s
		} else {
			sigma0 = 0.5
		}
	}

	model.Params = [NFitParam]float64{peak0, sky0, float64(pkx), float64(pky), sigma0}
	model.Status = FitIterate

	// Stage 1: sky frozen; lets the position and width settle first.
	stage1 := [NFitParam]bool{ParamPeak: true, ParamX0: true, ParamY0: true, ParamSigma: true}
	if s := marquardt(&model.Params, patch, stage1, &model); !s.Good() {
		return model
	}

	// Stage 2: everything free.
	all := [NFitParam]bool{true, true, true, true, true}
	s := marquardt(&model.Params, patch, all, &model)
	if !s.Good() {
		return model
	}
	if s == FitAlmost {
		model.Status = FitAlmost
		return model
	}

	// Classify the accepted fit by its residual fraction.
	tss := 0.0
	mean := 0.0
	for _, v := range patch.vals {
		mean += v
	}
	mean /= float64(len(patch.vals))
	for _, v := range patch.vals {
		tss += (v - mean) * (v - mean)
	}
	if tss > 0 && model.Chi2/tss > fitPoorR2 {
		model.Status = FitPoor
		return model
	}
	model.Status = FitConverge
	return model
}

// FitGaussianCentroid fits a circular Gaussian peak near the seed
// (parent coordinates) and returns the fitted centre. A non-positive fit
// status is reported as a MeasurementError carrying the noPeak flag; the
// returned point then holds the best parameters found so far.
func FitGaussianCentroid(im ImageView, x0, y0 float64) (Point2d, FitStatus, error) {
	fit := FitGaussian2D(im,
		x0-float64(im.OriginX()), y0-float64(im.OriginY()))

	p := Point2d{
		X: fit.Params[ParamX0] + float64(im.OriginX()),
		Y: fit.Params[ParamY0] + float64(im.OriginY()),
	}
	if !fit.Status.Good() {
		return p, fit.Status, NewMeasurementError(
			"Gaussian peak fit failed", GaussianCentroidFlagNoPeak.Number)
	}
	return p, fit.Status, nil
}
