package geometry

import (
	"image"
	"math"
)

// Box is an axis-aligned rectangle in integer pixel coordinates.
// The frame it lives in (raw detection, normalized crop, original frame)
// is implied by where it came from.
type Box struct {
	X, Y, W, H int
}

// FromRect converts an image.Rectangle into a Box.
func FromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect converts the box into an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Center returns the geometric center in floating point.
func (b Box) Center() (float64, float64) {
	return float64(b.X) + float64(b.W)/2, float64(b.Y) + float64(b.H)/2
}

// Contains reports whether o lies entirely inside b (edges may touch).
func (b Box) Contains(o Box) bool {
	return o.X >= b.X && o.Y >= b.Y &&
		o.X+o.W <= b.X+b.W && o.Y+o.H <= b.Y+b.H
}

// Nested reports whether either box contains the other.
func (b Box) Nested(o Box) bool {
	return b.Contains(o) || o.Contains(b)
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Scale multiplies position and size by s, rounding to the nearest pixel.
func (b Box) Scale(s float64) Box {
	if s == 1 {
		return b
	}
	return Box{
		X: int(math.Round(float64(b.X) * s)),
		Y: int(math.Round(float64(b.Y) * s)),
		W: int(math.Round(float64(b.W) * s)),
		H: int(math.Round(float64(b.H) * s)),
	}
}

// Translate shifts the box by (dx, dy).
func (b Box) Translate(dx, dy int) Box {
	return Box{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// DropContained returns boxes in order, skipping any box that is contained
// in one already kept.
func DropContained(boxes []Box) []Box {
	kept := make([]Box, 0, len(boxes))
outer:
	for _, b := range boxes {
		for _, k := range kept {
			if k.Contains(b) {
				continue outer
			}
		}
		kept = append(kept, b)
	}
	return kept
}
