package geometry

import "math"

// Margins scales the larger eye's dimensions into a face region.
// Left and Up extend the region before the left eye, Width and Height
// give the total extents.
type Margins struct {
	Left   float64 `yaml:"left"`
	Up     float64 `yaml:"up"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// DefaultMargins suits frontal faces a few meters from the camera.
var DefaultMargins = Margins{Left: 1.5, Up: 1.5, Width: 6, Height: 6}

// Plausible reports whether two eye boxes are close enough to belong to one
// face: their centers may be at most ratio times the wider eye's width apart.
func Plausible(e1, e2 Box, ratio float64) bool {
	x1, y1 := e1.Center()
	x2, y2 := e2.Center()
	dist := math.Hypot(x2-x1, y2-y1)
	return dist <= ratio*float64(max(e1.W, e2.W))
}

// FaceAngle returns the tilt of the line through both eye centers in degrees,
// within (-90, 90). Positive means the right eye sits lower in the image.
// The result does not depend on argument order.
func FaceAngle(e1, e2 Box) float64 {
	x1, y1 := e1.Center()
	x2, y2 := e2.Center()
	dx, dy := x2-x1, y2-y1
	if dx == 0 {
		return 0
	}
	return math.Atan(dy/dx) * 180 / math.Pi
}

// LeftRight orders two eye boxes by x, breaking ties by y.
func LeftRight(e1, e2 Box) (Box, Box) {
	if e2.X < e1.X || (e2.X == e1.X && e2.Y < e1.Y) {
		return e2, e1
	}
	return e1, e2
}

// FaceRegion estimates the face rectangle from an eye pair, clamped to a
// w x h image. The result may have zero width or height.
func FaceRegion(e1, e2 Box, m Margins, w, h int) Box {
	left, _ := LeftRight(e1, e2)
	maxW := float64(max(e1.W, e2.W))
	maxH := float64(max(e1.H, e2.H))

	x := clamp(int(math.Floor(float64(left.X)-m.Left*maxW)), 0, w)
	y := clamp(int(math.Floor(float64(left.Y)-m.Up*maxH)), 0, h)
	fw := max(0, min(int(math.Floor(m.Width*maxW)), w-x))
	fh := max(0, min(int(math.Floor(m.Height*maxH)), h-y))
	return Box{X: x, Y: y, W: fw, H: fh}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
