package locate

import (
	"errors"
	"image"
	"testing"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDetector replays canned responses; the last one repeats.
type fakeDetector struct {
	responses [][]geometry.Box
	err       error
	calls     []image.Rectangle
}

func (f *fakeDetector) Detect(img *image.Gray, _ types.DetectParams) ([]geometry.Box, error) {
	f.calls = append(f.calls, img.Bounds())
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, nil
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return append([]geometry.Box(nil), r...), nil
}

func detector(responses ...[]geometry.Box) *fakeDetector {
	return &fakeDetector{responses: responses}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Margins = geometry.Margins{Left: 1, Up: 1, Width: 4, Height: 4}
	return cfg
}

func frame(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func TestLocateAcceptedPair(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
	faces := detector([]geometry.Box{{X: 5, Y: 5, W: 50, H: 60}})

	got, err := New(eyes, faces, testConfig()).Locate(frame(200, 200))
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Region starts one eye-size up and left of the left eye.
	assert.Equal(t, geometry.Box{X: 25, Y: 25, W: 50, H: 60}, got[0].Box)
	assert.InDelta(t, 0, got[0].Angle, 1e-9)
	assert.Equal(t, types.UnknownLabel, got[0].Label)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 80, 80)}, faces.calls)
}

func TestLocateRejectsDistantEyes(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 10, Y: 10, W: 20, H: 20}, {X: 100, Y: 12, W: 22, H: 22}})
	faces := detector([]geometry.Box{{X: 5, Y: 5, W: 50, H: 60}})

	got, err := New(eyes, faces, testConfig()).Locate(frame(200, 200))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, faces.calls, "implausible pairs never reach the face detector")
}

func TestLocateFaceSizeFilter(t *testing.T) {
	tests := []struct {
		name     string
		response []geometry.Box
		want     []geometry.Box
	}{
		{"too small", []geometry.Box{{X: 1, Y: 1, W: 10, H: 10}}, nil},
		{"narrow", []geometry.Box{{X: 1, Y: 1, W: 19, H: 60}}, nil},
		{
			"first qualifying wins",
			[]geometry.Box{{X: 0, Y: 0, W: 5, H: 5}, {X: 5, Y: 5, W: 50, H: 60}, {X: 10, Y: 10, W: 60, H: 60}},
			[]geometry.Box{{X: 25, Y: 25, W: 50, H: 60}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
			got, err := New(eyes, detector(tt.response), testConfig()).Locate(frame(200, 200))
			require.NoError(t, err)

			var boxes []geometry.Box
			for _, c := range got {
				boxes = append(boxes, c.Box)
			}
			assert.Equal(t, tt.want, boxes)
		})
	}
}

func TestLocateConsumesEyes(t *testing.T) {
	eyes := detector([]geometry.Box{
		{X: 40, Y: 40, W: 20, H: 20},
		{X: 75, Y: 40, W: 20, H: 20},
		{X: 110, Y: 40, W: 20, H: 20},
	})
	faces := detector([]geometry.Box{{X: 5, Y: 5, W: 50, H: 60}})

	got, err := New(eyes, faces, testConfig()).Locate(frame(300, 200))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, faces.calls, 1, "the middle eye cannot be paired twice")
}

func TestLocateDropsNestedCandidates(t *testing.T) {
	eyes := detector([]geometry.Box{
		{X: 40, Y: 40, W: 20, H: 20},
		{X: 75, Y: 40, W: 20, H: 20},
		{X: 45, Y: 70, W: 20, H: 20},
		{X: 80, Y: 70, W: 20, H: 20},
	})
	faces := detector(
		[]geometry.Box{{X: 5, Y: 5, W: 50, H: 60}},
		[]geometry.Box{{X: 0, Y: 0, W: 20, H: 20}},
	)

	got, err := New(eyes, faces, testConfig()).Locate(frame(200, 200))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, geometry.Box{X: 25, Y: 25, W: 50, H: 60}, got[0].Box)
	assert.Len(t, faces.calls, 2)
}

func TestLocateDiscardsOffFrameProjection(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 5, Y: 5, W: 20, H: 20}, {X: 35, Y: 22, W: 20, H: 20}})
	faces := detector([]geometry.Box{{X: 0, Y: 0, W: 40, H: 40}})

	got, err := New(eyes, faces, testConfig()).Locate(frame(200, 200))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, faces.calls, 1)
}

func TestLocateTiltedPair(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 60, Y: 60, W: 20, H: 20}, {X: 90, Y: 77, W: 20, H: 20}})
	faces := detector([]geometry.Box{{X: 30, Y: 30, W: 40, H: 40}})

	got, err := New(eyes, faces, testConfig()).Locate(frame(300, 300))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Greater(t, got[0].Angle, 0.0)

	// The crop canvas grows with the tilt.
	require.Len(t, faces.calls, 1)
	assert.Greater(t, faces.calls[0].Dx(), 80)

	region := geometry.Box{X: 40, Y: 40, W: 80, H: 80}
	assert.True(t, geometry.Box{X: 0, Y: 0, W: 300, H: 300}.Contains(got[0].Box))
	assert.InDelta(t, region.X, got[0].Box.X, 80)
}

func TestLocateLegacyMatchesAffine(t *testing.T) {
	run := func(legacy bool) geometry.Box {
		eyes := detector([]geometry.Box{{X: 60, Y: 60, W: 20, H: 20}, {X: 90, Y: 77, W: 20, H: 20}})
		faces := detector([]geometry.Box{{X: 30, Y: 30, W: 40, H: 40}})
		cfg := testConfig()
		cfg.Legacy = legacy
		got, err := New(eyes, faces, cfg).Locate(frame(300, 300))
		require.NoError(t, err)
		require.Len(t, got, 1)
		return got[0].Box
	}

	a, b := run(false), run(true)
	assert.InDelta(t, a.X, b.X, 1)
	assert.InDelta(t, a.Y, b.Y, 1)
}

func TestLocateMirroredProfile(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
	faces := detector()
	profile := detector(nil, []geometry.Box{{X: 10, Y: 5, W: 50, H: 60}})

	got, err := New(eyes, faces, testConfig(), WithProfile(profile)).Locate(frame(200, 200))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, geometry.Box{X: 40, Y: 25, W: 50, H: 60}, got[0].Box)
	assert.Len(t, profile.calls, 2)
}

func TestEyesFilter(t *testing.T) {
	eyes := detector([]geometry.Box{
		{X: 0, Y: 0, W: 100, H: 100},
		{X: 10, Y: 10, W: 20, H: 20},
		{X: 200, Y: 200, W: 20, H: 20},
	})

	got, err := New(eyes, detector(), testConfig()).Eyes(frame(300, 300))
	require.NoError(t, err)
	assert.Equal(t, []geometry.Box{{X: 200, Y: 200, W: 20, H: 20}}, got)
}

func TestLocateDownscale(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
	faces := detector([]geometry.Box{{X: 5, Y: 5, W: 50, H: 60}})
	cfg := testConfig()
	cfg.Downscale = 0.5

	got, err := New(eyes, faces, cfg).Locate(frame(400, 400))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 200, 200)}, eyes.calls)
	assert.Equal(t, geometry.Box{X: 50, Y: 50, W: 100, H: 120}, got[0].Box)
	assert.Equal(t, geometry.Box{X: 80, Y: 80, W: 40, H: 40}, got[0].Eyes[0])
}

func TestLocateDetectorError(t *testing.T) {
	boom := errors.New("boom")

	_, err := New(&fakeDetector{err: boom}, detector(), testConfig()).Locate(frame(100, 100))
	assert.ErrorIs(t, err, boom)

	eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
	_, err = New(eyes, &fakeDetector{err: boom}, testConfig()).Locate(frame(200, 200))
	assert.ErrorIs(t, err, boom)
}

// canvasDetector answers only for images of a given size.
type canvasDetector struct {
	boxes map[image.Point][]geometry.Box
	calls []image.Rectangle
}

func (c *canvasDetector) Detect(img *image.Gray, _ types.DetectParams) ([]geometry.Box, error) {
	c.calls = append(c.calls, img.Bounds())
	return append([]geometry.Box(nil), c.boxes[img.Bounds().Size()]...), nil
}

func TestFramePassesRotatedCanvas(t *testing.T) {
	_, cw, ch := geometry.Rotation(200, 100, 40)
	local := geometry.Box{X: 90, Y: 60, W: 40, H: 40}
	faces := &canvasDetector{boxes: map[image.Point][]geometry.Box{
		image.Pt(cw, ch): {local},
	}}

	l := New(detector(), faces, testConfig(), WithFramePasses(0, 40))
	got, err := l.Locate(frame(200, 100))
	require.NoError(t, err)

	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 200, 100), image.Rect(0, 0, cw, ch)}, faces.calls)
	require.Len(t, got, 1)
	assert.Equal(t, 40.0, got[0].Angle)
	assert.Equal(t, types.UnknownLabel, got[0].Label)
	assert.Equal(t, geometry.BackProjector{}.Project(local, geometry.Box{W: 200, H: 100}, 40), got[0].Box)
	assert.NotEqual(t, local, got[0].Box, "hits are mapped back out of the rotated canvas")
}

func TestFramePassesDedupAgainstPairs(t *testing.T) {
	eyes := detector([]geometry.Box{{X: 40, Y: 40, W: 20, H: 20}, {X: 75, Y: 40, W: 20, H: 20}})
	faces := &canvasDetector{boxes: map[image.Point][]geometry.Box{
		image.Pt(80, 80):   {{X: 5, Y: 5, W: 50, H: 60}},
		image.Pt(200, 200): {{X: 30, Y: 30, W: 40, H: 40}, {X: 120, Y: 100, W: 40, H: 40}},
	}}

	got, err := New(eyes, faces, testConfig(), WithFramePasses(0)).Locate(frame(200, 200))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, geometry.Box{X: 25, Y: 25, W: 50, H: 60}, got[0].Box)
	assert.Equal(t, geometry.Box{X: 120, Y: 100, W: 40, H: 40}, got[1].Box)
	assert.Zero(t, got[1].Eyes)
}

func TestFramePassesMirroredProfile(t *testing.T) {
	calls := 0
	profile := detectorFunc(func(img *image.Gray) []geometry.Box {
		calls++
		if calls == 2 {
			return []geometry.Box{{X: 10, Y: 20, W: 30, H: 30}}
		}
		return nil
	})

	got, err := New(detector(), detector(), testConfig(), WithProfile(profile), WithFramePasses(0)).Locate(frame(100, 80))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, geometry.Box{X: 60, Y: 20, W: 30, H: 30}, got[0].Box)
}

// detectorFunc adapts a function to Detector.
type detectorFunc func(img *image.Gray) []geometry.Box

func (f detectorFunc) Detect(img *image.Gray, _ types.DetectParams) ([]geometry.Box, error) {
	return f(img), nil
}
