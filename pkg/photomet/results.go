package photomet

import "math"

// Flag taxonomy for the adaptive-moments shape algorithm. Slot order is
// fixed: the canonical failure flag first, then the specific modes in
// declaration order.
var (
	ShapeFlagDefs = NewFlagDefinitionList(
		"general failure flag, set if anything went wrong")
	ShapeFlagUnweightedBad = ShapeFlagDefs.Add(
		"flag_unweightedBad", "both weighted and unweighted moments were invalid")
	ShapeFlagUnweighted = ShapeFlagDefs.Add(
		"flag_unweighted", "weighted moments converged to an invalid value; using unweighted moments")
	ShapeFlagShift = ShapeFlagDefs.Add(
		"flag_shift", "centroid shifted by more than the maximum allowed amount")
	ShapeFlagMaxIter = ShapeFlagDefs.Add(
		"flag_maxIter", "too many iterations in adaptive moments")
	ShapeFlagPsfShapeBad = ShapeFlagDefs.Add(
		"flag_psf", "failure in measuring PSF model shape")
)

// Flag taxonomy for the Gaussian-weighted flux algorithm.
var GaussianFluxFlagDefs = NewFlagDefinitionList(
	"general failure flag, set if anything went wrong")

// Flag taxonomy for the naive aperture flux algorithm.
var (
	NaiveFluxFlagDefs = NewFlagDefinitionList(
		"general failure flag, set if anything went wrong")
	NaiveFluxFlagEdge = NaiveFluxFlagDefs.Add(
		"flag_edge", "source is too close to the edge of the field to compute the given aperture")
)

// Flag taxonomy for the Gaussian-peak centroider.
var (
	GaussianCentroidFlagDefs = NewFlagDefinitionList(
		"general failure flag, set if anything went wrong")
	GaussianCentroidFlagNoPeak = GaussianCentroidFlagDefs.Add(
		"flag_noPeak", "fitted centroid did not converge on a peak")
)

// Flag taxonomy for the naive first-moment centroider.
var (
	NaiveCentroidFlagDefs = NewFlagDefinitionList(
		"general failure flag, set if anything went wrong")
	NaiveCentroidFlagNoCounts = NaiveCentroidFlagDefs.Add(
		"flag_noCounts", "object to be centroided has no counts")
	NaiveCentroidFlagEdge = NaiveCentroidFlagDefs.Add(
		"flag_edge", "object too close to edge of image to centroid")
)

// CentroidResult holds a first-moment position and its uncertainty.
type CentroidResult struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	XErr  float64 `json:"xErr"`
	YErr  float64 `json:"yErr"`
	XYCov float64 `json:"x_y_Cov"`
}

// NewCentroidResult returns a CentroidResult with every field NaN.
func NewCentroidResult() CentroidResult {
	nan := math.NaN()
	return CentroidResult{X: nan, Y: nan, XErr: nan, YErr: nan, XYCov: nan}
}

// ShapeMoments holds a second-moment ellipse and its uncertainties.
type ShapeMoments struct {
	XX    float64 `json:"xx"`
	YY    float64 `json:"yy"`
	XY    float64 `json:"xy"`
	XXErr float64 `json:"xxErr"`
	YYErr float64 `json:"yyErr"`
	XYErr float64 `json:"xyErr"`
}

// Quadrupole returns the moments as an ellipse value.
func (s ShapeMoments) Quadrupole() Quadrupole {
	return Quadrupole{IXX: s.XX, IYY: s.YY, IXY: s.XY}
}

// FluxResult holds an instrumental flux and its uncertainty.
type FluxResult struct {
	InstFlux    float64 `json:"instFlux"`
	InstFluxErr float64 `json:"instFluxErr"`
}

// NewFluxResult returns a FluxResult with both fields NaN.
func NewFluxResult() FluxResult {
	nan := math.NaN()
	return FluxResult{InstFlux: nan, InstFluxErr: nan}
}

// ShapeResult is the full output of the adaptive-moments fit: centroid,
// shape, zeroth-moment flux, the flux/shape covariances, and the flag
// slots of ShapeFlagDefs. All numeric fields default to NaN.
type ShapeResult struct {
	CentroidResult
	ShapeMoments
	FluxResult

	InstFluxXXCov float64 `json:"instFlux_xx_Cov"`
	InstFluxYYCov float64 `json:"instFlux_yy_Cov"`
	InstFluxXYCov float64 `json:"instFlux_xy_Cov"`
	XXYYCov       float64 `json:"xx_yy_Cov"`
	XXXYCov       float64 `json:"xx_xy_Cov"`
	YYXYCov       float64 `json:"yy_xy_Cov"`

	// PsfShape is the adaptive-moments ellipse of the PSF stamp, when one
	// was measured alongside the source.
	PsfShape *Quadrupole `json:"psfShape,omitempty"`

	Flags []bool `json:"flags"`
}

// NewShapeResult returns a ShapeResult with every numeric field NaN and
// all flags clear.
func NewShapeResult() ShapeResult {
	nan := math.NaN()
	return ShapeResult{
		CentroidResult: CentroidResult{X: nan, Y: nan, XErr: nan, YErr: nan, XYCov: nan},
		ShapeMoments:   ShapeMoments{XX: nan, YY: nan, XY: nan, XXErr: nan, YYErr: nan, XYErr: nan},
		FluxResult:     NewFluxResult(),
		InstFluxXXCov:  nan,
		InstFluxYYCov:  nan,
		InstFluxXYCov:  nan,
		XXYYCov:        nan,
		XXXYCov:        nan,
		YYXYCov:        nan,
		Flags:          make([]bool, ShapeFlagDefs.Size()),
	}
}

// Failed reports whether the canonical failure flag is set.
func (r *ShapeResult) Failed() bool {
	return len(r.Flags) > 0 && r.Flags[0]
}
