// Package opencv holds everything that needs the OpenCV bindings: camera
// capture, Haar cascade detection and the preview window.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/gaze/internal/capture"
	"gocv.io/x/gocv"
)

// Camera reads frames from a local capture device through OpenCV.
type Camera struct {
	webcam *gocv.VideoCapture
	frame  gocv.Mat
	width  int
	height int
	mu     sync.Mutex
}

// OpenCamera opens device id and requests the given resolution.
func OpenCamera(id, width, height int) (*Camera, error) {
	webcam, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", id, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))

	// The camera may not support the requested resolution
	return &Camera{
		webcam: webcam,
		frame:  gocv.NewMat(),
		width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Size returns the negotiated frame size.
func (c *Camera) Size() (int, int) {
	return c.width, c.height
}

// Next grabs a frame. A failed grab ends the stream.
func (c *Camera) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil || !c.webcam.Read(&c.frame) || c.frame.Empty() {
		return nil, capture.ErrEndOfStream
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the camera.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		c.frame.Close()
		return err
	}
	return nil
}
