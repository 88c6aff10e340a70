package photomet

import (
	"os"
	"path/filepath"
	"testing"
)

func overlayResults() []ShapeResult {
	r1 := NewShapeResult()
	r1.X, r1.Y = 200, 300
	r1.XX, r1.YY, r1.XY = 4, 4, 0
	r1.InstFlux = 1000

	r2 := NewShapeResult()
	r2.X, r2.Y = 600, 100
	r2.XX, r2.YY, r2.XY = 6, 3, 1.5
	r2.Flags[0] = true

	// No centroid at all; must be skipped, not drawn at (NaN, NaN).
	r3 := NewShapeResult()
	return []ShapeResult{r1, r2, r3}
}

func TestRenderOverlayBytes(t *testing.T) {
	data, err := RenderOverlayBytes(overlayResults(), 1024, 768)
	if err != nil {
		t.Fatalf("RenderOverlayBytes: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output is not a JPEG (%d bytes)", len(data))
	}
}

func TestRenderOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.jpg")
	if err := RenderOverlay(overlayResults(), 1024, 768, path); err != nil {
		t.Fatalf("RenderOverlay: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("overlay file is empty")
	}
}

func TestRenderOverlayBadDimensions(t *testing.T) {
	if _, err := RenderOverlayBytes(nil, 0, 100); err == nil {
		t.Error("zero width did not error")
	}
	if _, err := RenderOverlayBytes(nil, 100, -1); err == nil {
		t.Error("negative height did not error")
	}
}
