package photomet

import (
	"errors"
	"math"
	"testing"
)

func TestFitGaussian2DExactModel(t *testing.T) {
	// Data generated by the model itself: the fit recovers every
	// parameter and converges cleanly.
	const a, s2, x0, y0 = 900.0, 4.0, 32.3, 31.6
	im := makeGaussianImage(64, 64, x0, y0, a, s2, s2, 0)

	fit := FitGaussian2D(im, 32, 32)
	if fit.Status != FitConverge {
		t.Fatalf("status = %d, want FitConverge", fit.Status)
	}
	approxEq(t, "X0", fit.Params[ParamX0], x0, 0.01)
	approxEq(t, "Y0", fit.Params[ParamY0], y0, 0.01)
	relEq(t, "PEAK", fit.Params[ParamPeak], a, 0.01)
	approxEq(t, "SKY", fit.Params[ParamSky], 0, 1)
	relEq(t, "SIGMA", fit.Params[ParamSigma], math.Sqrt(s2), 0.01)
	if fit.Iter <= 0 {
		t.Errorf("Iter = %d, want positive", fit.Iter)
	}
}

func TestFitGaussian2DSkyLevel(t *testing.T) {
	const a, s2, sky = 400.0, 2.25, 120.0
	im := makeGaussianImage(64, 64, 30, 33, a, s2, s2, 0)
	for i := range im.Pix {
		im.Pix[i] += sky
	}

	fit := FitGaussian2D(im, 30, 33)
	if !fit.Status.Good() {
		t.Fatalf("status = %d, want a usable fit", fit.Status)
	}
	relEq(t, "SKY", fit.Params[ParamSky], sky, 0.01)
	relEq(t, "PEAK", fit.Params[ParamPeak], a, 0.02)
	approxEq(t, "X0", fit.Params[ParamX0], 30, 0.02)
	approxEq(t, "Y0", fit.Params[ParamY0], 33, 0.02)
}

func TestFitGaussian2DSeededOffPeak(t *testing.T) {
	// A seed 1.5 pixels off the true centre still converges onto it.
	const s2 = 1.2 * 1.2
	im := makeGaussianImage(16, 16, 5.4, 5.6, 500, s2, s2, 0)

	fit := FitGaussian2D(im, 6.5, 6.7)
	if fit.Status != FitConverge {
		t.Fatalf("status = %d, want FitConverge", fit.Status)
	}
	approxEq(t, "X0", fit.Params[ParamX0], 5.4, 1e-3)
	approxEq(t, "Y0", fit.Params[ParamY0], 5.6, 1e-3)
}

func TestFitGaussian2DBadSeeds(t *testing.T) {
	im := makeGaussianImage(32, 32, 16, 16, 100, 4, 4, 0)

	if fit := FitGaussian2D(im, math.NaN(), 16); fit.Status != FitRange {
		t.Errorf("NaN seed: status = %d, want FitRange", fit.Status)
	}
	if fit := FitGaussian2D(im, 100, 100); fit.Status != FitRange {
		t.Errorf("seed off the image: status = %d, want FitRange", fit.Status)
	}
}

func TestFitGaussian2DTooFewPixels(t *testing.T) {
	im := NewImage[float32](2, 2, 0, 0)
	im.Pix[0] = 10

	if fit := FitGaussian2D(im, 0.5, 0.5); fit.Status != FitTooFew {
		t.Errorf("status = %d, want FitTooFew", fit.Status)
	}
}

func TestFitGaussian2DFlatImage(t *testing.T) {
	im := NewImage[float32](40, 40, 0, 0)
	for i := range im.Pix {
		im.Pix[i] = 50
	}

	if fit := FitGaussian2D(im, 20, 20); fit.Status != FitBadGuess {
		t.Errorf("status = %d, want FitBadGuess", fit.Status)
	}
}

func TestFitStatusGood(t *testing.T) {
	for _, s := range []FitStatus{FitConverge, FitIterate, FitAlmost, FitPoor} {
		if !s.Good() {
			t.Errorf("status %d not classified usable", s)
		}
	}
	for _, s := range []FitStatus{FitBadGuess, FitTooFew, FitChiSquared, FitRange,
		FitBadWidth, FitLost, FitDiagonal, FitBadA} {
		if s.Good() {
			t.Errorf("status %d classified usable", s)
		}
	}
}

func TestFitGaussianCentroidParentCoordinates(t *testing.T) {
	// Local peak at (24.4, 23.7) of an image whose parent origin is
	// (50, 80); the centroider reports the parent-frame position.
	im := NewImage[float32](48, 48, 50, 80)
	addGaussian(im, 24.4, 23.7, 600, 4, 4, 0)

	p, status, err := FitGaussianCentroid(im, 74, 104)
	if err != nil {
		t.Fatalf("FitGaussianCentroid: %v", err)
	}
	if !status.Good() {
		t.Fatalf("status = %d, want a usable fit", status)
	}
	approxEq(t, "parent X", p.X, 74.4, 0.02)
	approxEq(t, "parent Y", p.Y, 103.7, 0.02)
}

func TestFitGaussianCentroidNoPeak(t *testing.T) {
	im := NewImage[float32](40, 40, 0, 0)
	for i := range im.Pix {
		im.Pix[i] = 7
	}

	_, status, err := FitGaussianCentroid(im, 20, 20)
	if status.Good() {
		t.Fatal("flat image reported a usable fit")
	}
	var merr *MeasurementError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want a MeasurementError", err)
	}
	if merr.FlagBit != GaussianCentroidFlagNoPeak.Number {
		t.Errorf("FlagBit = %d, want %d", merr.FlagBit, GaussianCentroidFlagNoPeak.Number)
	}
}
