package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/disintegration/imaging"
)

// Redaction styles for unknown faces.
const (
	RedactNone   = ""
	RedactBlack  = "black"
	RedactSecure = "secure" // fill with the average color around the box
	RedactBlur   = "blur"
	RedactPixel  = "pixel"
)

// Style controls how Annotate treats faces that matched nobody.
type Style struct {
	Redact string `yaml:"redact"`
	// Strength is the blur sigma or the pixel block size.
	Strength int `yaml:"strength"`
}

// Validate rejects unknown redaction styles.
func (s Style) Validate() error {
	switch s.Redact {
	case RedactNone, RedactBlack, RedactSecure, RedactBlur, RedactPixel:
		return nil
	}
	return fmt.Errorf("unknown redaction style %q", s.Redact)
}

// redact hides the content of b in img.
func redact(img *image.RGBA, b geometry.Box, style string, strength int) {
	rect := b.Rect().Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	strength = max(strength, 1)

	switch style {
	case RedactBlack:
		draw.Draw(img, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)

	case RedactSecure:
		draw.Draw(img, rect, image.NewUniform(borderAverage(img, rect)), image.Point{}, draw.Src)

	case RedactBlur:
		blurred := imaging.Blur(imaging.Crop(img, rect), float64(strength))
		draw.Draw(img, rect, blurred, image.Point{}, draw.Src)

	case RedactPixel:
		w, h := rect.Dx(), rect.Dy()
		small := imaging.Resize(imaging.Crop(img, rect), max(w/strength, 1), max(h/strength, 1), imaging.Box)
		blocks := imaging.Resize(small, w, h, imaging.NearestNeighbor)
		draw.Draw(img, rect, blocks, image.Point{}, draw.Src)
	}
}

// borderAverage is the mean color of the pixels just outside rect.
func borderAverage(img *image.RGBA, rect image.Rectangle) color.RGBA {
	var r, g, b, count uint64
	add := func(x, y int) {
		if !image.Pt(x, y).In(img.Bounds()) {
			return
		}
		c := img.RGBAAt(x, y)
		r += uint64(c.R)
		g += uint64(c.G)
		b += uint64(c.B)
		count++
	}

	for x := rect.Min.X; x < rect.Max.X; x++ {
		add(x, rect.Min.Y-1)
		add(x, rect.Max.Y)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		add(rect.Min.X-1, y)
		add(rect.Max.X, y)
	}

	if count == 0 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{uint8(r / count), uint8(g / count), uint8(b / count), 255}
}
