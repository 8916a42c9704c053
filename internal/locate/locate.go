// Package locate finds faces by pairing eye detections, normalizing the
// region around each pair to a level pose and confirming a face inside it.
package locate

import (
	"image"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
)

// Detector finds objects in a grey image and returns their boxes in the
// image's own coordinates.
type Detector interface {
	Detect(img *image.Gray, p types.DetectParams) ([]geometry.Box, error)
}

// Config holds the tunables of the locator.
type Config struct {
	Eyes  types.DetectParams
	Faces types.DetectParams
	// MaxEyeWidth drops eye detections wider than this many pixels
	// (measured on the downscaled frame). Zero keeps all of them.
	MaxEyeWidth int
	// PairRatio bounds the eye center distance in units of the wider eye.
	PairRatio float64
	Margins   geometry.Margins
	// MinFaceFraction is the smallest accepted face, relative to the
	// normalized crop on both axes.
	MinFaceFraction float64
	// Downscale shrinks frames before any detection. 1 or 0 disables it.
	Downscale float64
	// Legacy selects the closed-form back-projection.
	Legacy bool
}

// DefaultConfig mirrors the classic cascade settings for webcam frames.
func DefaultConfig() Config {
	return Config{
		Eyes:            types.DetectParams{ScaleFactor: 1.1, MinNeighbors: 5},
		Faces:           types.DetectParams{ScaleFactor: 1.1, MinNeighbors: 3},
		MaxEyeWidth:     80,
		PairRatio:       2,
		Margins:         geometry.DefaultMargins,
		MinFaceFraction: 0.25,
		Downscale:       1,
	}
}

// FaceCandidate is a located face in full-resolution frame coordinates.
type FaceCandidate struct {
	Box   geometry.Box
	Angle float64 // degrees, positive when the right eye is lower
	Eyes  [2]geometry.Box

	// Filled in by recognition.
	Label      int
	Confidence float64
}

// Locator runs the eye pair search. It keeps no per-frame state and is safe
// for concurrent use if its detectors are.
type Locator struct {
	eyes    Detector
	faces   Detector
	profile Detector
	angles  []float64
	cfg     Config
	project geometry.BackProjector
	log     *logrus.Entry
}

// Option customizes a Locator.
type Option func(*Locator)

// WithProfile adds a profile-face detector that is tried, straight and
// mirrored, when the frontal detector finds nothing in a normalized crop.
func WithProfile(d Detector) Option {
	return func(l *Locator) { l.profile = d }
}

// WithFramePasses also searches the whole frame for faces, rotated by each
// angle in degrees (0 searches it unrotated). Hits are mapped back to the
// frame and dropped when nested in a face already found.
func WithFramePasses(angles ...float64) Option {
	return func(l *Locator) { l.angles = append([]float64(nil), angles...) }
}

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Locator) { l.log = log }
}

// New builds a Locator around an eye detector and a face detector.
func New(eyes, faces Detector, cfg Config, opts ...Option) *Locator {
	if cfg.Downscale <= 0 || cfg.Downscale > 1 {
		cfg.Downscale = 1
	}
	l := &Locator{
		eyes:  eyes,
		faces: faces,
		cfg:   cfg,
		project: geometry.BackProjector{
			Legacy: cfg.Legacy,
			Scale:  1 / cfg.Downscale,
		},
		log: logrus.WithField("component", "locate"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate finds faces in a frame. Boxes are reported at the frame's
// full resolution even when detection runs downscaled.
func (l *Locator) Locate(frame *image.Gray) ([]FaceCandidate, error) {
	small := l.shrink(frame)
	eyes, err := l.Eyes(small)
	if err != nil {
		return nil, err
	}
	faces, err := l.Pair(small, eyes)
	if err != nil {
		return nil, err
	}
	return l.FramePasses(small, faces)
}

// FramePasses runs the configured whole-frame passes and appends their faces
// to found. Unlike eye pair crops, no minimum size applies.
func (l *Locator) FramePasses(frame *image.Gray, found []FaceCandidate) ([]FaceCandidate, error) {
	b := frame.Bounds()
	region := geometry.Box{W: b.Dx(), H: b.Dy()}

	for _, angle := range l.angles {
		canvas := frame
		if angle != 0 {
			canvas = normalize.Rotate(frame, angle)
		}
		local, err := l.detectAll(canvas)
		if err != nil {
			return nil, err
		}

		for _, f := range local {
			box := l.project.Project(f, region, angle)
			if box.X < 0 || box.Y < 0 {
				continue
			}
			if nestedInAny(found, box) {
				continue
			}
			found = append(found, FaceCandidate{Box: box, Angle: angle, Label: types.UnknownLabel})
		}
	}
	return found, nil
}

// detectAll returns every frontal, profile and mirrored profile hit in img.
func (l *Locator) detectAll(img *image.Gray) ([]geometry.Box, error) {
	found, err := l.faces.Detect(img, l.cfg.Faces)
	if err != nil || l.profile == nil {
		return found, err
	}

	profile, err := l.profile.Detect(img, l.cfg.Faces)
	if err != nil {
		return nil, err
	}
	found = append(found, profile...)

	mirrored, err := l.profile.Detect(normalize.Mirror(img), l.cfg.Faces)
	if err != nil {
		return nil, err
	}
	w := img.Bounds().Dx()
	for _, f := range mirrored {
		f.X = w - f.X - f.W
		found = append(found, f)
	}
	return found, nil
}

// Eyes detects eyes, drops detections nested in earlier ones and applies
// the size ceiling.
func (l *Locator) Eyes(frame *image.Gray) ([]geometry.Box, error) {
	raw, err := l.eyes.Detect(frame, l.cfg.Eyes)
	if err != nil {
		return nil, err
	}
	raw = geometry.DropContained(raw)

	eyes := raw[:0]
	for _, e := range raw {
		if l.cfg.MaxEyeWidth > 0 && e.W > l.cfg.MaxEyeWidth {
			continue
		}
		eyes = append(eyes, e)
	}
	return eyes, nil
}

// Pair walks every unordered pair of eyes and returns at most one face per
// pair. Each eye is consumed by the first pair that yields a face.
func (l *Locator) Pair(frame *image.Gray, eyes []geometry.Box) ([]FaceCandidate, error) {
	b := frame.Bounds()
	used := make([]bool, len(eyes))
	var faces []FaceCandidate

	for i := 0; i < len(eyes); i++ {
		for j := i + 1; j < len(eyes) && !used[i]; j++ {
			if used[j] || !geometry.Plausible(eyes[i], eyes[j], l.cfg.PairRatio) {
				continue
			}

			angle := geometry.FaceAngle(eyes[i], eyes[j])
			region := geometry.FaceRegion(eyes[i], eyes[j], l.cfg.Margins, b.Dx(), b.Dy())
			if region.Empty() {
				continue
			}

			crop := normalize.Rotate(normalize.Crop(frame, region), angle)
			local, ok, err := l.findFace(crop)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			used[i], used[j] = true, true

			box := l.project.Project(local, region, angle)
			if box.X < 0 || box.Y < 0 {
				l.log.WithFields(logrus.Fields{"box": box, "angle": angle}).Debug("Discarding face projected off frame")
				continue
			}
			if nestedInAny(faces, box) {
				continue
			}

			faces = append(faces, FaceCandidate{
				Box:   box,
				Angle: angle,
				Eyes:  [2]geometry.Box{eyes[i].Scale(l.project.Scale), eyes[j].Scale(l.project.Scale)},
				Label: types.UnknownLabel,
			})
		}
	}
	return faces, nil
}

// findFace returns the first sufficiently large face in a normalized crop.
func (l *Locator) findFace(crop *image.Gray) (geometry.Box, bool, error) {
	b := crop.Bounds()
	minW := l.cfg.MinFaceFraction * float64(b.Dx())
	minH := l.cfg.MinFaceFraction * float64(b.Dy())
	qualifies := func(f geometry.Box) bool {
		return float64(f.W) >= minW && float64(f.H) >= minH
	}

	found, err := l.faces.Detect(crop, l.cfg.Faces)
	if err != nil {
		return geometry.Box{}, false, err
	}
	for _, f := range found {
		if qualifies(f) {
			return f, true, nil
		}
	}
	if l.profile == nil {
		return geometry.Box{}, false, nil
	}

	found, err = l.profile.Detect(crop, l.cfg.Faces)
	if err != nil {
		return geometry.Box{}, false, err
	}
	for _, f := range found {
		if qualifies(f) {
			return f, true, nil
		}
	}

	found, err = l.profile.Detect(normalize.Mirror(crop), l.cfg.Faces)
	if err != nil {
		return geometry.Box{}, false, err
	}
	for _, f := range found {
		if qualifies(f) {
			f.X = b.Dx() - f.X - f.W
			return f, true, nil
		}
	}
	return geometry.Box{}, false, nil
}

func (l *Locator) shrink(frame *image.Gray) *image.Gray {
	if l.cfg.Downscale == 1 {
		return frame
	}
	b := frame.Bounds()
	w := max(1, int(float64(b.Dx())*l.cfg.Downscale))
	h := max(1, int(float64(b.Dy())*l.cfg.Downscale))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, xdraw.Src, nil)
	return dst
}

func nestedInAny(faces []FaceCandidate, box geometry.Box) bool {
	for _, f := range faces {
		if f.Box.Nested(box) {
			return true
		}
	}
	return false
}
