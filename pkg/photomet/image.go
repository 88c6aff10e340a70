package photomet

import (
	"image"
	"math"
)

// PixelType constrains the pixel element types the kernels are
// instantiated over.
type PixelType interface {
	~int32 | ~float32 | ~float64
}

// ImageView is the read-only view the measurement kernels consume. All
// coordinates are LOCAL (zero-based); OriginX/OriginY recover the parent
// frame. VarianceAt returns NaN when the view has no variance plane.
type ImageView interface {
	Width() int
	Height() int
	OriginX() int
	OriginY() int
	At(x, y int) float64
	VarianceAt(x, y int) float64
	HasVariance() bool
}

// Image is a rectangular pixel grid with a parent-frame origin. Pix is
// row-major with stride Width.
type Image[T PixelType] struct {
	Pix  []T
	W, H int
	X0   int
	Y0   int
}

// NewImage allocates a zeroed W x H image with parent origin (x0, y0).
func NewImage[T PixelType](w, h, x0, y0 int) *Image[T] {
	return &Image[T]{Pix: make([]T, w*h), W: w, H: h, X0: x0, Y0: y0}
}

func (im *Image[T]) Width() int   { return im.W }
func (im *Image[T]) Height() int  { return im.H }
func (im *Image[T]) OriginX() int { return im.X0 }
func (im *Image[T]) OriginY() int { return im.Y0 }

// At returns the pixel at local (x, y).
func (im *Image[T]) At(x, y int) float64 { return float64(im.Pix[y*im.W+x]) }

// Set stores v at local (x, y).
func (im *Image[T]) Set(x, y int, v T) { im.Pix[y*im.W+x] = v }

func (im *Image[T]) VarianceAt(x, y int) float64 { return math.NaN() }

func (im *Image[T]) HasVariance() bool { return false }

// Bounds returns the local bounding box, (0,0)-(W,H).
func (im *Image[T]) Bounds() image.Rectangle { return image.Rect(0, 0, im.W, im.H) }

// ParentBounds returns the bounding box in the parent frame.
func (im *Image[T]) ParentBounds() image.Rectangle {
	return image.Rect(im.X0, im.Y0, im.X0+im.W, im.Y0+im.H)
}

// MaskedImage is an Image with a per-pixel variance plane of the same
// dimensions.
type MaskedImage[T PixelType] struct {
	Image[T]
	Variance []float32
}

// NewMaskedImage allocates a zeroed masked image.
func NewMaskedImage[T PixelType](w, h, x0, y0 int) *MaskedImage[T] {
	return &MaskedImage[T]{
		Image:    Image[T]{Pix: make([]T, w*h), W: w, H: h, X0: x0, Y0: y0},
		Variance: make([]float32, w*h),
	}
}

func (m *MaskedImage[T]) VarianceAt(x, y int) float64 {
	return float64(m.Variance[y*m.W+x])
}

func (m *MaskedImage[T]) HasVariance() bool { return true }

// SetVariance stores v in the variance plane at local (x, y).
func (m *MaskedImage[T]) SetVariance(x, y int, v float32) { m.Variance[y*m.W+x] = v }

// positionToIndex maps a floating-point position to the index of the pixel
// whose centre is nearest.
func positionToIndex(pos float64) int {
	return int(math.Floor(pos + 0.5))
}

// contains reports whether local (x, y) indexes a pixel of the view.
func contains(im ImageView, x, y int) bool {
	return x >= 0 && x < im.Width() && y >= 0 && y < im.Height()
}
