package capture

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/blackjack/webcam"
	"github.com/sirupsen/logrus"
)

// V4L2 fourcc codes understood by Webcam.
const (
	FormatGrey webcam.PixelFormat = 0x59455247 // 'GREY'
	FormatYUYV webcam.PixelFormat = 0x56595559 // 'YUYV'
)

// Webcam reads grey frames straight from a V4L2 device. IR cameras used
// for face unlock usually expose GREY; ordinary webcams expose YUYV, whose
// luma plane is used.
type Webcam struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
	// FilterExposure drops frames that are mostly black or mostly lit,
	// which IR emitters produce on alternating frames.
	FilterExposure bool
	log            *logrus.Entry
}

// OpenWebcam opens a V4L2 device such as /dev/video2 and starts streaming.
func OpenWebcam(device string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("can not open device %s: %w", device, err)
	}

	format := FormatYUYV
	if _, ok := cam.GetSupportedFormats()[FormatGrey]; ok {
		format = FormatGrey
	}
	f, w, h, err := cam.SetImageFormat(format, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("can not set image format: %w", err)
	}
	if f != FormatGrey && f != FormatYUYV {
		cam.Close()
		return nil, fmt.Errorf("unsupported pixel format %#x", uint32(f))
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("can not start streaming: %w", err)
	}

	return &Webcam{
		cam:    cam,
		format: f,
		width:  int(w),
		height: int(h),
		log:    logrus.WithField("device", device),
	}, nil
}

// Next waits for the next usable frame.
func (c *Webcam) Next(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := c.cam.WaitForFrame(1)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			c.log.Debug("Frame wait timed out")
			continue
		default:
			return nil, fmt.Errorf("frame wait failed: %w", err)
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("read frame failed: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		img, err := toGray(frame, c.format, c.width, c.height)
		if err != nil {
			return nil, err
		}
		if c.FilterExposure && !usableExposure(img.Pix) {
			continue
		}
		return img, nil
	}
}

// Close stops streaming and releases the device.
func (c *Webcam) Close() error {
	return c.cam.Close()
}

func toGray(frame []byte, format webcam.PixelFormat, w, h int) (*image.Gray, error) {
	img := image.NewGray(image.Rect(0, 0, w, h))
	switch format {
	case FormatGrey:
		if len(frame) < w*h {
			return nil, fmt.Errorf("short GREY frame: %d bytes for %dx%d", len(frame), w, h)
		}
		copy(img.Pix, frame[:w*h])
	case FormatYUYV:
		if len(frame) < 2*w*h {
			return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(frame), w, h)
		}
		for i := range img.Pix {
			img.Pix[i] = frame[2*i]
		}
	default:
		return nil, fmt.Errorf("unsupported pixel format %#x", uint32(format))
	}
	return img, nil
}

func usableExposure(pix []byte) bool {
	if len(pix) == 0 {
		return false
	}
	dark := 0
	for _, p := range pix {
		if p < 80 {
			dark++
		}
	}
	darkness := float64(dark) / float64(len(pix))
	return darkness > 0.1 && darkness < 0.7
}
