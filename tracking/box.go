package tracking

import (
	"image"
	"math"
)

// Box is an axis-aligned bounding box in top-left/width/height form.
type Box struct {
	X, Y, W, H float32
}

// NewBox creates a Box from top-left corner and size.
func NewBox(x, y, w, h float32) Box {
	return Box{X: x, Y: y, W: w, H: h}
}

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		X: float32(r.Min.X),
		Y: float32(r.Min.Y),
		W: float32(r.Dx()),
		H: float32(r.Dy()),
	}
}

// Rect converts the box back to integer frame coordinates.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H))
}

// BRX returns the bottom-right x coordinate.
func (b Box) BRX() float32 { return b.X + b.W }

// BRY returns the bottom-right y coordinate.
func (b Box) BRY() float32 { return b.Y + b.H }

// XYAH returns the box as center-x, center-y, aspect ratio, height. This is
// the measurement form consumed by the Kalman filter.
func (b Box) XYAH() [4]float32 {
	return [4]float32{
		b.X + b.W/2,
		b.Y + b.H/2,
		b.W / b.H,
		b.H,
	}
}

// boxFromXYAH reconstructs a Box from center-x, center-y, aspect, height.
func boxFromXYAH(m [4]float32) Box {
	w := m[2] * m[3]
	return NewBox(m[0]-w/2, m[1]-m[3]/2, w, m[3])
}

// IoU computes intersection over union against another box. Widths and
// heights are padded by one pixel so degenerate boxes still overlap
// themselves.
func (b Box) IoU(other Box) float32 {
	otherArea := (other.W + 1) * (other.H + 1)

	iw := float32(math.Min(float64(b.X+b.W), float64(other.X+other.W)) -
		math.Max(float64(b.X), float64(other.X)) + 1)
	if iw <= 0 {
		return 0
	}

	ih := float32(math.Min(float64(b.Y+b.H), float64(other.Y+other.H)) -
		math.Max(float64(b.Y), float64(other.Y)) + 1)
	if ih <= 0 {
		return 0
	}

	union := (b.W+1)*(b.H+1) + otherArea - iw*ih
	return iw * ih / union
}
