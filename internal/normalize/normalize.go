// Package normalize prepares grey image regions for detection and
// recognition: cropping, rotation onto an expanded canvas and mirroring.
package normalize

import (
	"image"
	"math"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// Gray converts any image into an *image.Gray with its origin at (0, 0).
func Gray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// Crop copies the region r out of src. The result owns its pixels so later
// writes to the frame do not leak into it.
func Crop(src *image.Gray, r geometry.Box) *image.Gray {
	rect := r.Rect().Add(src.Rect.Min).Intersect(src.Rect)
	dst := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		from := src.PixOffset(rect.Min.X, rect.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rect.Dx()], src.Pix[from:from+rect.Dx()])
	}
	return dst
}

// Rotate turns src by deg degrees about its center, counter-clockwise on
// screen for positive angles. The canvas grows to the rotated bounding box
// and uncovered pixels are black.
func Rotate(src *image.Gray, deg float64) *image.Gray {
	b := src.Bounds()
	m, w, h := geometry.Rotation(b.Dx(), b.Dy(), deg)
	return Warp(src, m, w, h)
}

// Mirror flips src about its vertical axis, the pixel form of
// geometry.Mirror.
func Mirror(src *image.Gray) *image.Gray {
	return Gray(imaging.FlipH(src))
}

// Warp resamples src through m onto a w x h canvas using bilinear
// interpolation. Pixels are sampled at their centers, so m works in the
// continuous frame where src covers [0, w] x [0, h]. Destination pixels whose
// source falls outside src are 0.
func Warp(src *image.Gray, m geometry.Affine, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	inv, err := m.Invert()
	if err != nil {
		return dst
	}

	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	for v := 0; v < h; v++ {
		row := dst.Pix[v*dst.Stride:]
		for u := 0; u < w; u++ {
			x, y := inv.Apply(float64(u)+0.5, float64(v)+0.5)
			row[u] = sample(src, x-0.5, y-0.5, sw, sh)
		}
	}
	return dst
}

func sample(src *image.Gray, x, y float64, w, h int) uint8 {
	if x < -0.5 || y < -0.5 || x > float64(w)-0.5 || y > float64(h)-0.5 {
		return 0
	}
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	p := func(px, py int) float64 {
		px = max(0, min(px, w-1))
		py = max(0, min(py, h-1))
		return float64(src.GrayAt(src.Rect.Min.X+px, src.Rect.Min.Y+py).Y)
	}
	top := p(x0, y0)*(1-fx) + p(x0+1, y0)*fx
	bottom := p(x0, y0+1)*(1-fx) + p(x0+1, y0+1)*fx
	return uint8(math.Round(top*(1-fy) + bottom*fy))
}

// Resize scales a grey face crop to size x size for the appearance model.
func Resize(src image.Image, size int) *image.Gray {
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return Gray(src)
	}
	return Gray(imaging.Resize(src, size, size, imaging.Linear))
}
