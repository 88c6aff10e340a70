package photomet

// NaiveCentroidControl configures the windowed first-moment centroider.
type NaiveCentroidControl struct {
	// Background is the scalar level subtracted from every pixel.
	Background float64 `yaml:"background"`
}

// DefaultNaiveCentroidControl mirrors the stock configuration.
func DefaultNaiveCentroidControl() NaiveCentroidControl {
	return NaiveCentroidControl{Background: 0.0}
}

// NaiveCentroid refines a centre estimate with the first moments of the
// 3x3 pixel window around it (parent coordinates). The window must lie
// wholly on the image (edge flag) and have positive background-subtracted
// counts (noCounts flag); either failure is reported through the flags and
// a MeasurementError.
func NaiveCentroid(im ImageView, center Point2d,
	ctrl NaiveCentroidControl) (CentroidResult, []bool, error) {
	handler := NewFlagHandler(NaiveCentroidFlagDefs)
	flags := make([]bool, NaiveCentroidFlagDefs.Size())
	result := NewCentroidResult()

	ix := positionToIndex(center.X) - im.OriginX()
	iy := positionToIndex(center.Y) - im.OriginY()

	if ix < 1 || ix >= im.Width()-1 || iy < 1 || iy >= im.Height()-1 {
		merr := NewMeasurementError(NaiveCentroidFlagEdge.Doc,
			NaiveCentroidFlagEdge.Number)
		handler.HandleFailure(flags, merr)
		return result, flags, merr
	}

	var sum, sumX, sumY float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v := im.At(ix+dx, iy+dy) - ctrl.Background
			sum += v
			sumX += float64(dx) * v
			sumY += float64(dy) * v
		}
	}

	if sum == 0 {
		merr := NewMeasurementError(NaiveCentroidFlagNoCounts.Doc,
			NaiveCentroidFlagNoCounts.Number)
		handler.HandleFailure(flags, merr)
		return result, flags, merr
	}

	result.X = float64(ix+im.OriginX()) + sumX/sum
	result.Y = float64(iy+im.OriginY()) + sumY/sum
	return result, flags, nil
}
