package photomet

import (
	"context"
	"math"
	"testing"
)

// fillSyntheticField writes a flat background with a small deterministic
// ripple standing in for read noise.
func fillSyntheticField(m Mat, background, rippleAmp float32) {
	data := m.DataFloat32()
	cols := m.Cols()
	for y := 0; y < m.Rows(); y++ {
		for x := 0; x < cols; x++ {
			ripple := float32((x*31+y*17)%101) / 101
			data[y*cols+x] = background + rippleAmp*ripple
		}
	}
}

func addMatGaussian(m Mat, x0, y0, peak, sigma2 float64) {
	data := m.DataFloat32()
	cols := m.Cols()
	for y := 0; y < m.Rows(); y++ {
		dy := float64(y) - y0
		for x := 0; x < cols; x++ {
			dx := float64(x) - x0
			data[y*cols+x] += float32(peak * math.Exp(-0.5*(dx*dx+dy*dy)/sigma2))
		}
	}
}

func syntheticFieldParams() DetectorParams {
	p := DefaultDetectorParams()
	p.HotpixelFiltering = false
	p.NoiseReductionRadius = 0
	return p
}

func TestDetectSeeds(t *testing.T) {
	field := NewMatWithSize(128, 128)
	defer field.Close()
	fillSyntheticField(field, 0.05, 0.004)

	centers := []Point2d{{X: 30, Y: 40}, {X: 80, Y: 30}, {X: 60, Y: 90}}
	for _, c := range centers {
		addMatGaussian(field, c.X, c.Y, 0.5, 4)
	}
	// One structure hanging off the left edge and one isolated bright
	// pixel, both of which must be rejected.
	addMatGaussian(field, 3, 64, 0.5, 4)
	field.DataFloat32()[100*128+100] += 0.5

	r := DetectSeeds(context.Background(), field, syntheticFieldParams())

	if len(r.Seeds) != 3 {
		t.Fatalf("found %d seeds, want 3: %+v", len(r.Seeds), r.Seeds)
	}
	if r.OnBorder < 1 {
		t.Errorf("OnBorder = %d, want at least 1", r.OnBorder)
	}
	if r.TooSmall < 1 {
		t.Errorf("TooSmall = %d, want at least 1", r.TooSmall)
	}
	if r.NoiseSigma <= 0 {
		t.Errorf("NoiseSigma = %v, want positive", r.NoiseSigma)
	}

	for _, want := range centers {
		found := false
		for _, s := range r.Seeds {
			if math.Abs(s.Center.X-want.X) < 0.3 && math.Abs(s.Center.Y-want.Y) < 0.3 {
				found = true
				if s.PixelCount < 5 {
					t.Errorf("seed at %v has %d pixels", want, s.PixelCount)
				}
				if s.Peak < 0.4 || s.Peak > 0.6 {
					t.Errorf("seed at %v peak = %v", want, s.Peak)
				}
				if s.Flux <= 0 {
					t.Errorf("seed at %v flux = %v", want, s.Flux)
				}
				cx, cy := int(want.X), int(want.Y)
				if cx < s.BBox.Min.X || cx >= s.BBox.Max.X ||
					cy < s.BBox.Min.Y || cy >= s.BBox.Max.Y {
					t.Errorf("seed at %v bbox %v does not cover the centre", want, s.BBox)
				}
			}
		}
		if !found {
			t.Errorf("no seed near %v", want)
		}
	}
}

func TestDetectSeedsEmptyMat(t *testing.T) {
	empty := NewMat()
	r := DetectSeeds(context.Background(), empty, DefaultDetectorParams())
	if len(r.Seeds) != 0 || r.Candidates != 0 {
		t.Errorf("empty mat produced %+v", r)
	}
}

func TestDetectSeedsMaxSeeds(t *testing.T) {
	field := NewMatWithSize(128, 128)
	defer field.Close()
	fillSyntheticField(field, 0.05, 0.004)
	for _, c := range []Point2d{{X: 30, Y: 40}, {X: 80, Y: 30}, {X: 60, Y: 90}} {
		addMatGaussian(field, c.X, c.Y, 0.5, 4)
	}

	p := syntheticFieldParams()
	p.MaxSeeds = 2
	r := DetectSeeds(context.Background(), field, p)
	if len(r.Seeds) != 2 {
		t.Errorf("found %d seeds, want the cap of 2", len(r.Seeds))
	}
}

func TestDetectSeedsCancelled(t *testing.T) {
	field := NewMatWithSize(64, 64)
	defer field.Close()
	fillSyntheticField(field, 0.05, 0.004)
	addMatGaussian(field, 32, 32, 0.5, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := DetectSeeds(ctx, field, syntheticFieldParams())
	if len(r.Seeds) != 0 {
		t.Errorf("cancelled scan returned %d seeds", len(r.Seeds))
	}
}

func TestDetectSeedsHotpixelFiltering(t *testing.T) {
	field := NewMatWithSize(64, 64)
	defer field.Close()
	data := field.DataFloat32()
	for i := range data {
		data[i] = 0.1
	}
	data[30*64+30] = 0.9

	p := DefaultDetectorParams()
	p.NoiseReductionRadius = 0
	r := DetectSeeds(context.Background(), field, p)

	if r.HotpixelCount != 1 {
		t.Errorf("HotpixelCount = %d, want 1", r.HotpixelCount)
	}
	if len(r.Seeds) != 0 {
		t.Errorf("hot pixel produced %d seeds", len(r.Seeds))
	}
	// The source mat is untouched.
	if data[30*64+30] != 0.9 {
		t.Errorf("source mat modified: %v", data[30*64+30])
	}
}
