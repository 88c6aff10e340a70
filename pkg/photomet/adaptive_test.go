package photomet

import (
	"math"
	"testing"
)

func cleanFlags(t *testing.T, r *ShapeResult) {
	t.Helper()
	for i, f := range r.Flags {
		if f {
			t.Errorf("flag %q unexpectedly set", ShapeFlagDefs.Get(i).Name)
		}
	}
}

func TestAdaptiveMomentsCircular(t *testing.T) {
	const a, s2 = 1000.0, 4.0
	im := makeGaussianImage(64, 64, 32, 32, a, s2, s2, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	cleanFlags(t, &r)

	relEq(t, "XX", r.XX, s2, 0.02)
	relEq(t, "YY", r.YY, s2, 0.02)
	approxEq(t, "XY", r.XY, 0, 0.02)
	approxEq(t, "X", r.X, 32, 0.01)
	approxEq(t, "Y", r.Y, 32, 0.01)
	relEq(t, "InstFlux", r.InstFlux, a*2*math.Pi*s2, 0.02)
}

func TestAdaptiveMomentsElliptical(t *testing.T) {
	// The weight stays centred on the seed, so moments measured from an
	// off-centre seed carry a bias of order the offset squared. Seed at
	// the true centre to test the moment recovery itself.
	const sxx, syy, sxy = 6.0, 3.0, 1.5
	im := makeGaussianImage(96, 96, 48.3, 47.6, 800, sxx, syy, sxy)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 48.3, Y: 47.6}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	cleanFlags(t, &r)

	relEq(t, "XX", r.XX, sxx, 0.03)
	relEq(t, "YY", r.YY, syy, 0.03)
	relEq(t, "XY", r.XY, sxy, 0.05)
	approxEq(t, "X", r.X, 48.3, 0.02)
	approxEq(t, "Y", r.Y, 47.6, 0.02)
}

func TestAdaptiveMomentsRecoversAxes(t *testing.T) {
	// Elongated Gaussian with axes (3, 1.5) rotated 30 degrees.
	const a0, b0, theta0 = 3.0, 1.5, math.Pi / 6
	c, s := math.Cos(theta0), math.Sin(theta0)
	sxx := a0*a0*c*c + b0*b0*s*s
	syy := a0*a0*s*s + b0*b0*c*c
	sxy := (a0*a0 - b0*b0) * s * c
	im := makeGaussianImage(31, 31, 15.2, 15.1, 800, sxx, syy, sxy)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 15, Y: 15}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	cleanFlags(t, &r)

	a, b, theta := r.Quadrupole().Axes()
	relEq(t, "axis ratio", a/b, a0/b0, 0.05)
	approxEq(t, "position angle", theta, theta0, math.Pi/180)
}

func TestAdaptiveMomentsNegativeSource(t *testing.T) {
	const a, s2 = -900.0, 4.0
	im := makeGaussianImage(64, 64, 32, 32, a, s2, s2, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, true, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	cleanFlags(t, &r)

	relEq(t, "negative XX", r.XX, s2, 0.02)
	relEq(t, "negative YY", r.YY, s2, 0.02)
	if r.InstFlux >= 0 {
		t.Errorf("InstFlux = %v, want negative", r.InstFlux)
	}

	// Measured in positive mode, the same source is a degenerate failure.
	r, err = ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("positive-mode measurement: %v", err)
	}
	if !r.Flags[ShapeFlagUnweightedBad.Number] {
		t.Error("unweightedBad not set measuring a negative source in positive mode")
	}
	if !r.Failed() {
		t.Error("positive-mode measurement of a negative source not marked failed")
	}
}

func TestAdaptiveMomentsConstantBackground(t *testing.T) {
	// A constant image with the background level configured: after
	// subtraction there is no signal left, so even the unweighted
	// fallback finds nothing to measure.
	im := NewImage[float32](15, 15, 0, 0)
	for i := range im.Pix {
		im.Pix[i] = 5
	}
	ctrl := DefaultShapeControl()
	ctrl.Background = 5

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 7, Y: 7}, false, ctrl)
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if !r.Failed() {
		t.Error("signal-free image not marked failed")
	}
	if !r.Flags[ShapeFlagUnweightedBad.Number] {
		t.Error("unweightedBad not set for a signal-free image")
	}
}

func TestAdaptiveMomentsReseededConverges(t *testing.T) {
	// Reseeding at the measured centroid converges cleanly with the same
	// flag pattern. The values are only loosely comparable: each run
	// measures about its own seed, so a different seed gives a slightly
	// different (seed-relative) answer.
	im := makeGaussianImage(64, 64, 31.6, 32.4, 700, 5, 4, 1)

	r1, err := ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, false, DefaultShapeControl())
	if err != nil || r1.Failed() {
		t.Fatalf("first measurement: %v %v", err, r1.Flags)
	}
	r2, err := ComputeAdaptiveMoments(im, Point2d{X: r1.X, Y: r1.Y}, false, DefaultShapeControl())
	if err != nil || r2.Failed() {
		t.Fatalf("reseeded measurement: %v %v", err, r2.Flags)
	}
	relEq(t, "reseeded XX", r2.XX, r1.XX, 0.05)
	relEq(t, "reseeded YY", r2.YY, r1.YY, 0.05)
	approxEq(t, "reseeded X", r2.X, r1.X, 0.25)
	approxEq(t, "reseeded Y", r2.Y, r1.Y, 0.25)
	for i := range r1.Flags {
		if r1.Flags[i] != r2.Flags[i] {
			t.Errorf("flag %q differs between runs", ShapeFlagDefs.Get(i).Name)
		}
	}
}

func TestAdaptiveMomentsIdempotent(t *testing.T) {
	im := makeGaussianImage(64, 64, 30.7, 33.1, 600, 5, 4, -1)
	center := Point2d{X: 31, Y: 33}

	r1, err1 := ComputeAdaptiveMoments(im, center, false, DefaultShapeControl())
	r2, err2 := ComputeAdaptiveMoments(im, center, false, DefaultShapeControl())
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if r1.XX != r2.XX || r1.YY != r2.YY || r1.XY != r2.XY ||
		r1.X != r2.X || r1.Y != r2.Y || r1.InstFlux != r2.InstFlux {
		t.Errorf("repeated measurement differs: %+v vs %+v", r1.ShapeMoments, r2.ShapeMoments)
	}
}

func TestAdaptiveMomentsParentOrigin(t *testing.T) {
	// The same pixels with a shifted parent origin must give the same
	// moments and a shifted centroid.
	im0 := makeGaussianImage(64, 64, 32, 32, 500, 4, 4, 0)
	im1 := NewImage[float32](64, 64, 100, 200)
	copy(im1.Pix, im0.Pix)

	r0, err0 := ComputeAdaptiveMoments(im0, Point2d{X: 32, Y: 32}, false, DefaultShapeControl())
	r1, err1 := ComputeAdaptiveMoments(im1, Point2d{X: 132, Y: 232}, false, DefaultShapeControl())
	if err0 != nil || err1 != nil {
		t.Fatalf("errors: %v, %v", err0, err1)
	}
	approxEq(t, "shifted X", r1.X, r0.X+100, 1e-9)
	approxEq(t, "shifted Y", r1.Y, r0.Y+200, 1e-9)
	approxEq(t, "shifted XX", r1.XX, r0.XX, 1e-12)
	approxEq(t, "shifted InstFlux", r1.InstFlux, r0.InstFlux, 1e-9)
}

func TestAdaptiveMomentsNaNCenter(t *testing.T) {
	im := makeGaussianImage(64, 64, 32, 32, 500, 4, 4, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: math.NaN(), Y: 32}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if !r.Failed() {
		t.Error("NaN centre did not fail")
	}
	if !r.Flags[ShapeFlagUnweightedBad.Number] {
		t.Error("unweightedBad not set for NaN centre")
	}
}

func TestAdaptiveMomentsBlankImage(t *testing.T) {
	im := NewImage[float32](32, 32, 0, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 16, Y: 16}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if !r.Failed() {
		t.Error("blank image did not fail")
	}
	if !r.Flags[ShapeFlagUnweightedBad.Number] {
		t.Error("unweightedBad not set for a blank image")
	}
}

func TestAdaptiveMomentsMaxIter(t *testing.T) {
	im := makeGaussianImage(64, 64, 32, 32, 500, 4, 4, 0)
	ctrl := DefaultShapeControl()
	ctrl.MaxIter = 1
	ctrl.Tol1 = 1e-12
	ctrl.Tol2 = 1e-12

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, false, ctrl)
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if !r.Flags[ShapeFlagMaxIter.Number] {
		t.Error("maxIter flag not set")
	}
	if !r.Flags[ShapeFlagUnweighted.Number] {
		t.Error("unweighted flag not set alongside maxIter")
	}
	if !r.Failed() {
		t.Error("unweighted result not marked failed")
	}
	// The unweighted fallback still produces usable moments.
	if math.IsNaN(r.XX) || r.XX <= 0 {
		t.Errorf("fallback XX = %v, want positive", r.XX)
	}
}

func TestAdaptiveMomentsSeedFarOff(t *testing.T) {
	// Seed displaced well beyond the shift clamp: the measurement must be
	// marked failed via the shift or unweighted classification.
	im := makeGaussianImage(64, 64, 32, 32, 1000, 4, 4, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 26, Y: 32}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if !r.Failed() {
		t.Error("far-off seed not marked failed")
	}
	if !r.Flags[ShapeFlagShift.Number] && !r.Flags[ShapeFlagUnweighted.Number] {
		t.Error("neither shift nor unweighted set for a far-off seed")
	}
}

func TestAdaptiveMomentsNarrowSource(t *testing.T) {
	// Sub-pixel integration path: a source narrower than a pixel still
	// converges to a small positive size.
	im := makeGaussianImage(32, 32, 16, 16, 1000, 0.2, 0.2, 0)

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 16, Y: 16}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	if r.Failed() {
		t.Fatalf("narrow source failed: %+v", r.Flags)
	}
	if r.XX <= 0 || r.XX > 0.5 {
		t.Errorf("narrow XX = %v, want in (0, 0.5]", r.XX)
	}
	if r.YY <= 0 || r.YY > 0.5 {
		t.Errorf("narrow YY = %v, want in (0, 0.5]", r.YY)
	}
	// Pin the converged size. When the iteration switches to sub-pixel
	// sampling mid-fit, the switching pass must be redone with the
	// weights it entered with; skipping that redo lands a few parts in a
	// thousand high.
	approxEq(t, "narrow XX value", r.XX, 0.12566, 2e-4)
	approxEq(t, "narrow YY value", r.YY, 0.12566, 2e-4)
}

func TestAdaptiveMomentsVariancePlane(t *testing.T) {
	const a, s2, noiseVar = 1000.0, 4.0, 25.0
	im := NewMaskedImage[float32](64, 64, 0, 0)
	addGaussian(&im.Image, 32, 32, a, s2, s2, 0)
	for i := range im.Variance {
		im.Variance[i] = noiseVar
	}

	r, err := ComputeAdaptiveMoments(im, Point2d{X: 32, Y: 32}, false, DefaultShapeControl())
	if err != nil {
		t.Fatalf("ComputeAdaptiveMoments: %v", err)
	}
	cleanFlags(t, &r)

	if math.IsNaN(r.InstFluxErr) || r.InstFluxErr <= 0 {
		t.Errorf("InstFluxErr = %v, want positive", r.InstFluxErr)
	}
	if math.IsNaN(r.XXErr) || r.XXErr <= 0 {
		t.Errorf("XXErr = %v, want positive", r.XXErr)
	}
	// Symmetric source: xx and yy uncertainties agree.
	relEq(t, "XXErr vs YYErr", r.XXErr, r.YYErr, 0.05)
}

func TestMeasureShapePsf(t *testing.T) {
	im := makeGaussianImage(64, 64, 32, 32, 1000, 4, 4, 0)
	psf := makeGaussianImage(25, 25, 12.5, 12.5, 1, 2.25, 2.25, 0)

	ctrl := DefaultShapeControl()
	r, err := MeasureShape(im, psf, Point2d{X: 32, Y: 32}, false, ctrl)
	if err != nil {
		t.Fatalf("MeasureShape: %v", err)
	}
	if r.Flags[ShapeFlagPsfShapeBad.Number] {
		t.Fatal("psf flag set for a good stamp")
	}
	if r.PsfShape == nil {
		t.Fatal("PsfShape not populated")
	}
	relEq(t, "psf XX", r.PsfShape.IXX, 2.25, 0.05)
	relEq(t, "psf YY", r.PsfShape.IYY, 2.25, 0.05)
}

func TestMeasureShapeNilPsf(t *testing.T) {
	im := makeGaussianImage(64, 64, 32, 32, 1000, 4, 4, 0)

	ctrl := DefaultShapeControl()
	r, err := MeasureShape(im, nil, Point2d{X: 32, Y: 32}, false, ctrl)
	if err != nil {
		t.Fatalf("MeasureShape: %v", err)
	}
	if !r.Flags[ShapeFlagPsfShapeBad.Number] {
		t.Error("psf flag not set for a missing stamp")
	}
	if r.Failed() {
		t.Error("source measurement must stand despite the missing stamp")
	}

	ctrl.DoMeasurePsf = false
	r, err = MeasureShape(im, nil, Point2d{X: 32, Y: 32}, false, ctrl)
	if err != nil {
		t.Fatalf("MeasureShape: %v", err)
	}
	if r.Flags[ShapeFlagPsfShapeBad.Number] {
		t.Error("psf flag set although the stamp measurement was disabled")
	}
}
