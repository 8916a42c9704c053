package geometry

import "math"

// BackProjector maps a box detected inside a rotated face crop back into the
// frame the crop was cut from.
type BackProjector struct {
	// Legacy selects the closed-form trigonometric mapping instead of
	// inverting the rotation matrix. Both agree to within a pixel.
	Legacy bool
	// Scale is applied uniformly to the projected box. Zero means 1.
	Scale float64
}

// Project maps local, a box in the canvas produced by rotating region by
// angle degrees, to the region's frame. Only the top-left corner is mapped;
// the size is carried over unchanged.
func (p BackProjector) Project(local, region Box, angle float64) Box {
	var x, y float64
	if p.Legacy {
		x, y = legacyPoint(float64(local.X), float64(local.Y), float64(region.W), float64(region.H), angle)
	} else {
		x, y = affinePoint(float64(local.X), float64(local.Y), region.W, region.H, angle)
	}

	out := Box{
		X: region.X + int(math.Round(x)),
		Y: region.Y + int(math.Round(y)),
		W: local.W,
		H: local.H,
	}
	if p.Scale > 0 {
		out = out.Scale(p.Scale)
	}
	return out
}

func affinePoint(x, y float64, w, h int, angle float64) (float64, float64) {
	m, _, _ := Rotation(w, h, angle)
	inv, err := m.Invert()
	if err != nil {
		return x, y
	}
	return inv.Apply(x, y)
}

// legacyPoint undoes the rotation by measuring the point's distance and
// bearing to the canvas corner that the crop's top-right (angle <= 0) or
// bottom-right (angle > 0) corner lands on, then walking the same distance
// back from that corner in the unrotated crop.
func legacyPoint(x, y, fw, fh, angle float64) (float64, float64) {
	theta := angle * math.Pi / 180
	w := fw*math.Cos(theta) + math.Abs(fh*math.Sin(theta))
	if w == x {
		return x, y
	}

	if theta <= 0 {
		t := math.Pi/2 + theta
		ref := fw * math.Cos(t)
		l := math.Hypot(ref-y, w-x)
		b := math.Abs(math.Atan((ref - y) / (w - x)))
		if y <= ref {
			f := math.Pi/2 - t - b
			return fw - l*math.Cos(f), l * math.Sin(f)
		}
		f := t - b
		return fw - l*math.Sin(f), l * math.Cos(f)
	}

	ref := fh * math.Cos(theta)
	l := math.Hypot(ref-y, w-x)
	b := math.Abs(math.Atan((ref - y) / (w - x)))
	if y <= ref {
		f := math.Pi/2 - theta - b
		return fw - l*math.Sin(f), fh - l*math.Cos(f)
	}
	f := theta - b
	return fw - l*math.Cos(f), fh - l*math.Sin(f)
}
