// Package detect holds pure Go detection backends.
package detect

import (
	"fmt"
	"image"
	"os"
	"sort"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/types"
	pigo "github.com/esimov/pigo/core"
)

// Pigo detects faces with a pixel-intensity-comparison cascade. It needs no
// cgo, so it can confirm faces inside normalized crops on hosts without
// OpenCV.
type Pigo struct {
	classifier *pigo.Pigo
	// MinQuality drops clustered detections scoring below it.
	MinQuality float32
	// ShiftFactor is the sliding window step relative to the window size.
	ShiftFactor float64
	// IoU is the overlap above which raw detections are merged.
	IoU float64
}

// LoadPigo reads a pigo cascade such as facefinder from disk.
func LoadPigo(path string) (*Pigo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade: %w", err)
	}
	return NewPigo(data)
}

// NewPigo unpacks a pigo cascade.
func NewPigo(cascade []byte) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &Pigo{classifier: classifier, MinQuality: 5, ShiftFactor: 0.1, IoU: 0.2}, nil
}

// Detect finds faces in img. MinNeighbors has no pigo equivalent; MinQuality
// plays that role.
func (d *Pigo) Detect(img *image.Gray, p types.DetectParams) ([]geometry.Box, error) {
	g := normalize.Gray(img)
	w, h := g.Rect.Dx(), g.Rect.Dy()

	pixels := g.Pix
	if g.Stride != w {
		pixels = make([]uint8, 0, w*h)
		for y := 0; y < h; y++ {
			pixels = append(pixels, g.Pix[y*g.Stride:y*g.Stride+w]...)
		}
	}

	minSize, maxSize := p.MinSize, p.MaxSize
	if minSize <= 0 {
		minSize = 20
	}
	if maxSize <= 0 {
		maxSize = max(w, h)
	}
	scale := p.ScaleFactor
	if scale <= 1 {
		scale = 1.1
	}

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     maxSize,
		ShiftFactor: d.ShiftFactor,
		ScaleFactor: scale,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   h,
			Cols:   w,
			Dim:    w,
		},
	}

	dets := d.classifier.RunCascade(params, 0)
	dets = d.classifier.ClusterDetections(dets, d.IoU)
	return boxes(dets, d.MinQuality), nil
}

// boxes converts detections centered on (Col, Row) into boxes, best first.
func boxes(dets []pigo.Detection, minQuality float32) []geometry.Box {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	out := make([]geometry.Box, 0, len(dets))
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		out = append(out, geometry.Box{
			X: det.Col - det.Scale/2,
			Y: det.Row - det.Scale/2,
			W: det.Scale,
			H: det.Scale,
		})
	}
	return out
}
