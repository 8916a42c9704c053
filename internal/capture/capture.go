// Package capture provides frame sources that need no OpenCV: V4L2 devices
// read directly and video files decoded by ffmpeg.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/disintegration/imaging"
)

// ErrEndOfStream is returned by Next once a source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

const maxFrameBytes = 32 * 1024 * 1024

// Stream decodes a concatenated MJPEG byte stream frame by frame.
type Stream struct {
	scanner *bufio.Scanner
}

// NewStream wraps r, which must yield back-to-back JPEG images.
func NewStream(r io.Reader) *Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxFrameBytes)
	scanner.Split(utils.SplitJpeg)
	return &Stream{scanner: scanner}
}

// Next decodes the next frame.
func (s *Stream) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		return nil, ErrEndOfStream
	}
	img, err := imaging.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Video streams the frames of a file through an ffmpeg child process.
type Video struct {
	*Stream
	cmd    *utils.SafeCommand
	stdout io.ReadCloser
}

// OpenVideo starts ffmpeg on path. fps resamples the video; 0 keeps every frame.
func OpenVideo(path string, fps float64) (*Video, error) {
	cmd := utils.NewFFmpegCmd(path, fps)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &Video{Stream: NewStream(stdout), cmd: cmd, stdout: stdout}, nil
}

// Command exposes the child process so callers can print its logs on failure.
func (v *Video) Command() *utils.SafeCommand {
	return v.cmd
}

// Close stops ffmpeg and reaps it.
func (v *Video) Close() error {
	v.stdout.Close()
	if v.cmd.ProcessState == nil && v.cmd.Process != nil {
		_ = v.cmd.Process.Kill()
	}
	_ = v.cmd.Wait()
	return nil
}
