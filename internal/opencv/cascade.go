package opencv

import (
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/types"
	"gocv.io/x/gocv"
)

// Cascade runs a Haar or LBP cascade classifier.
type Cascade struct {
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

// LoadCascade reads a cascade XML file such as haarcascade_eye.xml.
func LoadCascade(path string) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", path)
	}
	return &Cascade{classifier: classifier}, nil
}

// Detect runs a multi-scale detection over img.
func (c *Cascade) Detect(img *image.Gray, p types.DetectParams) ([]geometry.Box, error) {
	mat, err := gocv.ImageGrayToMatGray(normalize.Gray(img))
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(mat, p.ScaleFactor, p.MinNeighbors, 0,
		image.Pt(p.MinSize, p.MinSize), image.Pt(p.MaxSize, p.MaxSize))
	c.mu.Unlock()

	boxes := make([]geometry.Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, geometry.FromRect(r))
	}
	return boxes, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	return c.classifier.Close()
}
