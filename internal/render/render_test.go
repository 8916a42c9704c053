package render

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/locate"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func face(box geometry.Box, label int, name string) Face {
	return Face{
		FaceCandidate: locate.FaceCandidate{Box: box, Label: label, Confidence: 12.34},
		Name:          name,
	}
}

func TestCaption(t *testing.T) {
	tests := []struct {
		name string
		face Face
		want string
	}{
		{"unknown", face(geometry.Box{}, types.UnknownLabel, ""), "unknown"},
		{"named", face(geometry.Box{}, 3, "alice"), "alice (12.3)"},
		{"unnamed", face(geometry.Box{}, 3, ""), "person 3 (12.3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.face.Caption())
		})
	}
}

func TestAnnotate(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 100, 100))
	box := geometry.Box{X: 20, Y: 40, W: 30, H: 30}

	out := Annotate(frame, []Face{face(box, 1, "bob")})
	require.Equal(t, frame.Bounds(), out.Bounds())

	assert.Equal(t, knownColor, out.RGBAAt(20, 40), "top left corner")
	assert.Equal(t, knownColor, out.RGBAAt(49, 69), "bottom right corner")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(35, 55), "interior untouched")
	// Caption bar sits above the box.
	assert.Equal(t, knownColor, out.RGBAAt(20, 30))

	// The source frame is not modified.
	assert.Equal(t, uint8(0), frame.GrayAt(20, 40).Y)
}

func TestAnnotateUnknownAtTopEdge(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 60, 60))
	out := Annotate(frame, []Face{face(geometry.Box{X: 0, Y: 0, W: 40, H: 40}, types.UnknownLabel, "")})

	assert.Equal(t, unknownColor, out.RGBAAt(0, 0))
	assert.Equal(t, unknownColor, out.RGBAAt(39, 39))
}

func TestAnnotateClipsOffFrameBoxes(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 20, 20))
	assert.NotPanics(t, func() {
		Annotate(frame, []Face{face(geometry.Box{X: 15, Y: 15, W: 30, H: 30}, 2, "carol")})
	})
}

func TestSnapshots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	s, err := NewSnapshots(dir, 2)
	require.NoError(t, err)
	assert.True(t, s.Visible())

	frame := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Present(frame))
	}
	assert.Equal(t, 3, s.Written())

	for _, name := range []string{"frame_000001.jpg", "frame_000003.jpg", "frame_000005.jpg"} {
		img, err := imaging.Open(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, 16, img.Bounds().Dx())
	}
	_, err = os.Stat(filepath.Join(dir, "frame_000002.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiscard(t *testing.T) {
	var d Discard
	assert.NoError(t, d.Present(image.NewGray(image.Rect(0, 0, 1, 1))))
	assert.True(t, d.Visible())
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestRedactUnknownFaces(t *testing.T) {
	box := geometry.Box{X: 20, Y: 30, W: 20, H: 20}
	inside := image.Pt(28, 40)

	t.Run("black", func(t *testing.T) {
		out := Style{Redact: RedactBlack}.Annotate(uniform(60, 60, 255), []Face{face(box, types.UnknownLabel, "")})
		assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(inside.X, inside.Y))
		assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(5, 5))
	})

	t.Run("secure", func(t *testing.T) {
		src := uniform(60, 60, 100)
		for y := 32; y < 48; y++ {
			for x := 22; x < 38; x++ {
				src.SetGray(x, y, color.Gray{Y: 250})
			}
		}
		out := Style{Redact: RedactSecure}.Annotate(src, []Face{face(box, types.UnknownLabel, "")})
		assert.Equal(t, color.RGBA{100, 100, 100, 255}, out.RGBAAt(inside.X, inside.Y))
	})

	t.Run("pixel", func(t *testing.T) {
		src := image.NewGray(image.Rect(0, 0, 60, 60))
		for i := range src.Pix {
			src.Pix[i] = uint8(i * 37)
		}
		out := Style{Redact: RedactPixel, Strength: 5}.Annotate(src, []Face{face(box, types.UnknownLabel, "")})
		assert.Equal(t, out.RGBAAt(26, 36), out.RGBAAt(28, 38), "one block is uniform")
	})

	t.Run("known faces are kept", func(t *testing.T) {
		out := Style{Redact: RedactBlack}.Annotate(uniform(60, 60, 255), []Face{face(box, 4, "dave")})
		assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(inside.X, inside.Y))
	})
}

func TestStyleValidate(t *testing.T) {
	for _, style := range []string{RedactNone, RedactBlack, RedactSecure, RedactBlur, RedactPixel} {
		assert.NoError(t, Style{Redact: style}.Validate(), style)
	}
	assert.Error(t, Style{Redact: "swirl"}.Validate())
}
