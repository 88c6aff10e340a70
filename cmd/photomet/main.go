package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	ph "photomet/pkg/photomet"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: photomet <input-file> [config.yaml]")
	}
	inputFilePath := args[0]

	cfg := ph.DefaultConfig()
	if len(args) > 1 {
		var err error
		cfg, err = ph.LoadConfig(args[1])
		if err != nil {
			return err
		}
	}

	fmt.Printf("Loading: %s\n", inputFilePath)
	srcMat, width, height, err := loadImage(inputFilePath)
	if err != nil {
		return err
	}
	defer srcMat.Close()

	startTime := time.Now()
	detection := ph.DetectSeeds(context.Background(), srcMat, cfg.Detector)
	detectElapsed := time.Since(startTime)

	fmt.Println()
	fmt.Printf("=== Seed Detection (%.2fs) ===\n", detectElapsed.Seconds())
	fmt.Printf("  Image size:      %d x %d\n", width, height)
	fmt.Printf("  Noise sigma:     %.6f\n", detection.NoiseSigma)
	fmt.Printf("  Background:      %.6f\n", detection.BackgroundMean)
	fmt.Printf("  Candidates:      %d\n", detection.Candidates)
	fmt.Printf("  Seeds:           %d (too small: %d, on border: %d)\n",
		len(detection.Seeds), detection.TooSmall, detection.OnBorder)
	if detection.HotpixelCount > 0 {
		fmt.Printf("  Hot pixels:      %d\n", detection.HotpixelCount)
	}
	fmt.Println("==============================")

	view := ph.ImageFromMat(srcMat)

	startTime = time.Now()
	results := make([]ph.ShapeResult, len(detection.Seeds))
	for i, seed := range detection.Seeds {
		// Refine the detector's first-moment centre before fitting.
		nc := cfg.NaiveCentroid
		if nc.Background == 0 {
			nc.Background = seed.Background
		}
		if c, _, err := ph.NaiveCentroid(view, seed.Center, nc); err == nil {
			detection.Seeds[i].Center = ph.Point2d{X: c.X, Y: c.Y}
			seed = detection.Seeds[i]
		}
		shape, err := ph.ComputeAdaptiveMoments(view, seed.Center, false, cfg.Shape)
		if err != nil {
			shape.Flags[0] = true
		}
		results[i] = shape
	}
	measureElapsed := time.Since(startTime)

	fmt.Println()
	fmt.Printf("=== Measurements (%.2fs) ===\n", measureElapsed.Seconds())
	fmt.Printf("  %4s %9s %9s %8s %8s %8s %11s %11s %9s %s\n",
		"#", "x", "y", "xx", "yy", "xy", "gaussFlux", "apFlux", "peakX", "flags")
	for i, seed := range detection.Seeds {
		r := &results[i]

		gaussFlux := math.NaN()
		if !r.Failed() {
			fr, err := ph.ComputeFixedMomentsFlux(view, r.Quadrupole(),
				ph.Point2d{X: r.X, Y: r.Y})
			if err == nil {
				gaussFlux = fr.InstFlux
			}
		}

		apFlux := math.NaN()
		if fr, _, err := ph.NaiveFlux(view, seed.Center, cfg.NaiveFlux); err == nil {
			apFlux = fr.InstFlux
		}

		peakX := math.NaN()
		if pt, status, err := ph.FitGaussianCentroid(view, seed.Center.X, seed.Center.Y); err == nil && status.Good() {
			peakX = pt.X
		}

		fmt.Printf("  %4d %9.3f %9.3f %8.3f %8.3f %8.3f %11.1f %11.1f %9.3f %s\n",
			i, r.X, r.Y, r.XX, r.YY, r.XY, gaussFlux, apFlux, peakX,
			flagSummary(r))
	}
	fmt.Println("==============================")

	summary := ph.SummarizeField(results)
	fmt.Println()
	fmt.Println("=== Field Summary ===")
	fmt.Printf("  Measured:        %d\n", summary.Measured)
	fmt.Printf("  Failed:          %d\n", summary.Failed)
	fmt.Printf("  FWHM (median):   %.3f +/- %.3f px\n", summary.MedianFWHM, summary.FWHMMAD)
	fmt.Printf("  |e| (median):    %.3f +/- %.3f\n", summary.MedianEllip, summary.EllipMAD)
	fmt.Printf("  Flux (median):   %.1f\n", summary.MedianFlux)
	fmt.Println("==============================")

	if cfg.Overlay != "" {
		if err := ph.RenderOverlay(results, width, height, cfg.Overlay); err != nil {
			return fmt.Errorf("rendering overlay: %w", err)
		}
		fmt.Printf("\nOverlay written: %s\n", cfg.Overlay)
	}

	return nil
}

func flagSummary(r *ph.ShapeResult) string {
	var set []string
	for i, on := range r.Flags {
		if on {
			set = append(set, ph.ShapeFlagDefs.Get(i).Name)
		}
	}
	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}

func loadImage(path string) (ph.Mat, int, int, error) {
	lowerPath := strings.ToLower(path)
	if strings.HasSuffix(lowerPath, ".fits") || strings.HasSuffix(lowerPath, ".fit") {
		fits, err := ph.ReadFits(path)
		if err != nil {
			return ph.Mat{}, 0, 0, fmt.Errorf("reading FITS: %w", err)
		}
		fmt.Printf("FITS loaded: %dx%d, %d-bit\n", fits.Width, fits.Height, fits.BitDepth)
		return ph.ToFloat32Mat(fits.Pixels, fits.BitDepth, fits.Width, fits.Height),
			fits.Width, fits.Height, nil
	}
	return loadNonFitsImage(path)
}
