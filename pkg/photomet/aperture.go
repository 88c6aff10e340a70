package photomet

import (
	"errors"
	"image"
	"math"
)

// Span is a contiguous run of pixels on row Y, covering X0 <= x < X1 in
// parent coordinates.
type Span struct {
	Y, X0, X1 int
}

// Footprint is a set of contiguous pixel rows belonging to a source.
type Footprint struct {
	Spans []Span
}

// BBox returns the footprint's bounding box (parent coordinates).
func (f *Footprint) BBox() image.Rectangle {
	var box image.Rectangle
	first := true
	for _, s := range f.Spans {
		r := image.Rect(s.X0, s.Y, s.X1, s.Y+1)
		if first {
			box = r
			first = false
		} else {
			box = box.Union(r)
		}
	}
	return box
}

// Area returns the number of pixels covered.
func (f *Footprint) Area() int {
	n := 0
	for _, s := range f.Spans {
		n += s.X1 - s.X0
	}
	return n
}

// CircularFootprint covers every pixel whose centre lies within radius of
// the given pixel (parent coordinates).
func CircularFootprint(center image.Point, radius float64) *Footprint {
	f := &Footprint{}
	ir := int(math.Ceil(radius))
	r2 := radius * radius
	for dy := -ir; dy <= ir; dy++ {
		rowR2 := r2 - float64(dy*dy)
		if rowR2 < 0 {
			continue
		}
		dx := int(math.Floor(math.Sqrt(rowR2)))
		f.Spans = append(f.Spans, Span{
			Y:  center.Y + dy,
			X0: center.X - dx,
			X1: center.X + dx + 1,
		})
	}
	return f
}

// ApertureSum accumulates the pixel and variance sums over a footprint.
// sumVar is NaN when the image has no variance plane. The footprint must
// lie wholly on the image; otherwise a length error is returned.
func ApertureSum(im ImageView, foot *Footprint) (sum, sumVar float64, err error) {
	x0, y0 := im.OriginX(), im.OriginY()
	for _, s := range foot.Spans {
		ly := s.Y - y0
		if ly < 0 || ly >= im.Height() || s.X0-x0 < 0 || s.X1-x0 > im.Width() {
			return 0, 0, lengthErrorf("footprint span y=%d [%d,%d) escapes image", s.Y, s.X0, s.X1)
		}
		for x := s.X0 - x0; x < s.X1-x0; x++ {
			sum += im.At(x, ly)
			sumVar += im.VarianceAt(x, ly)
		}
	}
	if !im.HasVariance() {
		sumVar = math.NaN()
	}
	return sum, sumVar, nil
}

// ApertureWeightedSum accumulates sum w*I and sum w^2*Var over a
// footprint, with a weight image co-sized with the footprint's bounding
// box. A size mismatch or a span off the image is a length error.
func ApertureWeightedSum(im ImageView, foot *Footprint,
	weight *Image[float64]) (sum, sumVar float64, err error) {
	box := foot.BBox()
	if box.Dx() != weight.W || box.Dy() != weight.H {
		return 0, 0, lengthErrorf(
			"footprint %v is wrong size for %dx%d weight image", box, weight.W, weight.H)
	}
	x0, y0 := im.OriginX(), im.OriginY()
	for _, s := range foot.Spans {
		ly := s.Y - y0
		if ly < 0 || ly >= im.Height() || s.X0-x0 < 0 || s.X1-x0 > im.Width() {
			return 0, 0, lengthErrorf("footprint span y=%d [%d,%d) escapes image", s.Y, s.X0, s.X1)
		}
		for x := s.X0; x < s.X1; x++ {
			w := weight.At(x-box.Min.X, s.Y-box.Min.Y)
			sum += w * im.At(x-x0, ly)
			sumVar += w * w * im.VarianceAt(x-x0, ly)
		}
	}
	if !im.HasVariance() {
		sumVar = math.NaN()
	}
	return sum, sumVar, nil
}

// NaiveFluxControl configures the naive circular-aperture flux.
type NaiveFluxControl struct {
	// Radius of the aperture in pixels.
	Radius float64 `yaml:"radius"`
}

// DefaultNaiveFluxControl mirrors the stock configuration.
func DefaultNaiveFluxControl() NaiveFluxControl {
	return NaiveFluxControl{Radius: 7.0}
}

// NaiveFlux sums the pixels in a circular aperture around the centre
// (parent coordinates). An aperture extending off the image is reported
// through the edge flag and a MeasurementError; partial results are never
// returned in that case.
func NaiveFlux(im ImageView, center Point2d, ctrl NaiveFluxControl) (FluxResult, []bool, error) {
	handler := NewFlagHandler(NaiveFluxFlagDefs)
	flags := make([]bool, NaiveFluxFlagDefs.Size())
	result := NewFluxResult()

	foot := CircularFootprint(
		image.Pt(positionToIndex(center.X), positionToIndex(center.Y)), ctrl.Radius)

	sum, sumVar, err := ApertureSum(im, foot)
	if err != nil {
		if errors.Is(err, ErrLength) {
			merr := NewMeasurementError(NaiveFluxFlagEdge.Doc, NaiveFluxFlagEdge.Number)
			handler.HandleFailure(flags, merr)
			return result, flags, merr
		}
		handler.HandleFailure(flags, err)
		return result, flags, err
	}

	result.InstFlux = sum
	result.InstFluxErr = math.Sqrt(sumVar)
	return result, flags, nil
}
