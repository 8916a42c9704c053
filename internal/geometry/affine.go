package geometry

import (
	"errors"
	"math"
)

// ErrSingular is returned when an affine transform has no inverse.
var ErrSingular = errors.New("affine transform is not invertible")

// Affine is a 2x3 matrix mapping (x, y) to (A*x + B*y + C, D*x + E*y + F).
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, E: 1}
}

// Apply maps a point through the transform.
func (m Affine) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// Det returns the determinant of the linear part.
func (m Affine) Det() float64 {
	return m.A*m.E - m.B*m.D
}

// Invert returns the transform that undoes m.
func (m Affine) Invert() (Affine, error) {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Affine{}, ErrSingular
	}
	a := m.E / det
	b := -m.B / det
	d := -m.D / det
	e := m.A / det
	return Affine{
		A: a, B: b, C: -(a*m.C + b*m.F),
		D: d, E: e, F: -(d*m.C + e*m.F),
	}, nil
}

// Then returns the transform that applies m first and n second.
func (m Affine) Then(n Affine) Affine {
	return Affine{
		A: n.A*m.A + n.B*m.D,
		B: n.A*m.B + n.B*m.E,
		C: n.A*m.C + n.B*m.F + n.C,
		D: n.D*m.A + n.E*m.D,
		E: n.D*m.B + n.E*m.E,
		F: n.D*m.C + n.E*m.F + n.F,
	}
}

// RotatedSize returns the size of the canvas that holds a w x h image
// rotated by deg degrees without clipping.
func RotatedSize(w, h int, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	c, s := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	fw, fh := float64(w), float64(h)
	return fw*c + fh*s, fw*s + fh*c
}

// Rotation returns the transform that rotates a w x h image by deg degrees
// about its center (positive is counter-clockwise on screen) and recenters it
// on an expanded canvas, together with that canvas' integer size.
func Rotation(w, h int, deg float64) (Affine, int, int) {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2
	rw, rh := RotatedSize(w, h, deg)

	m := Affine{
		A: c, B: s, C: (1-c)*cx - s*cy + (rw/2 - cx),
		D: -s, E: c, F: s*cx + (1-c)*cy + (rh/2 - cy),
	}
	return m, canvasDim(rw), canvasDim(rh)
}

// Mirror returns the horizontal flip about the vertical axis of a w-wide image.
func Mirror(w int) Affine {
	return Affine{A: -1, C: float64(w), E: 1}
}

// canvasDim rounds a canvas extent up, ignoring floating point noise.
func canvasDim(v float64) int {
	return int(math.Ceil(v - 1e-6))
}
