// Package render draws located faces onto frames and writes them out for
// headless runs.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/locate"
	"github.com/andresmejia3/gaze/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	knownColor   = color.RGBA{0, 255, 0, 255}
	unknownColor = color.RGBA{255, 0, 0, 255}
	textColor    = color.RGBA{255, 255, 255, 255}
)

// Face is a located face with the person name resolved for display.
type Face struct {
	locate.FaceCandidate
	Name string
}

// Caption is the text drawn above the face box.
func (f Face) Caption() string {
	if f.Label == types.UnknownLabel {
		return "unknown"
	}
	name := f.Name
	if name == "" {
		name = fmt.Sprintf("person %d", f.Label)
	}
	return fmt.Sprintf("%s (%.1f)", name, f.Confidence)
}

// Annotated is one processed frame.
type Annotated struct {
	Frame *image.RGBA
	Faces []Face
}

// Annotate copies frame and draws every face box with its caption.
func Annotate(frame image.Image, faces []Face) *image.RGBA {
	return Style{}.Annotate(frame, faces)
}

// Annotate copies frame, redacts unknown faces if the style asks for it and
// draws every face box with its caption.
func (s Style) Annotate(frame image.Image, faces []Face) *image.RGBA {
	bounds := frame.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), frame, bounds.Min, draw.Src)

	for _, f := range faces {
		col := knownColor
		if f.Label == types.UnknownLabel {
			col = unknownColor
			redact(rgba, f.Box, s.Redact, s.Strength)
		}
		drawRect(rgba, f.Box, col, 2)
		drawCaption(rgba, f.Box, f.Caption(), col)
	}
	return rgba
}

// drawRect draws the outline of b, clipped to the image.
func drawRect(img *image.RGBA, b geometry.Box, col color.RGBA, thickness int) {
	x1, y1 := b.X, b.Y
	x2, y2 := b.X+b.W-1, b.Y+b.H-1
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setClipped(img, bounds, x, y1+t, col)
			setClipped(img, bounds, x, y2-t, col)
		}
		for y := y1; y <= y2; y++ {
			setClipped(img, bounds, x1+t, y, col)
			setClipped(img, bounds, x2-t, y, col)
		}
	}
}

func setClipped(img *image.RGBA, bounds image.Rectangle, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(bounds) {
		img.SetRGBA(x, y, col)
	}
}

// drawCaption writes text on a filled bar above b, or just inside its top
// edge when there is no room above.
func drawCaption(img *image.RGBA, b geometry.Box, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2
	width := font.MeasureString(face, text).Ceil() + 4

	top := b.Y - height
	if top < 0 {
		top = b.Y
	}
	bar := image.Rect(b.X, top, b.X+width, top+height).Intersect(img.Bounds())
	draw.Draw(img, bar, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(b.X+2, top+1+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
