package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/andresmejia3/gaze/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes.
const (
	statusOK    = 0
	statusError = 1
)

// ProcessDetector serves detections from an external process, for models
// that only exist outside Go. Each request carries the detector parameters
// and a grey image; the reply lists boxes or an error message.
type ProcessDetector struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	mu       sync.Mutex
}

// NewProcessDetector starts name with args. Replies are read from a side
// channel the child sees as FD 3, so its stdout stays free for logging.
func NewProcessDetector(id int, name string, args ...string) (*ProcessDetector, error) {
	proc := utils.NewSafeCommand(name, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("detector %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &ProcessDetector{
		ID:       id,
		Cmd:      proc,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one length-prefixed request and reads one
// length-prefixed reply.
func (w *ProcessDetector) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch a child that died on startup
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect asks the process for boxes in img.
//
// Request:  [ScaleFactor f64] [MinNeighbors u32] [MinSize u32] [MaxSize u32] [W u32] [H u32] [Pixels W*H]
// Response: [Status:0] [Count u32] [Count x (X, Y, W, H) i32]
//
//	or [Status:1] [MsgLen u32] [Msg]
func (w *ProcessDetector) Detect(img *image.Gray, p types.DetectParams) ([]geometry.Box, error) {
	g := normalize.Gray(img)
	width, height := g.Rect.Dx(), g.Rect.Dy()

	req := new(bytes.Buffer)
	binary.Write(req, binary.BigEndian, p.ScaleFactor)
	binary.Write(req, binary.BigEndian, [5]uint32{
		uint32(p.MinNeighbors), uint32(p.MinSize), uint32(p.MaxSize), uint32(width), uint32(height),
	})
	for y := 0; y < height; y++ {
		req.Write(g.Pix[y*g.Stride : y*g.Stride+width])
	}

	w.mu.Lock()
	resp, err := w.Communicate(req.Bytes())
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detector %d: %w", w.ID, err)
	}
	return parseResponse(resp)
}

func parseResponse(resp []byte) ([]geometry.Box, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty response from detector process")
	}
	r := bytes.NewReader(resp[1:])

	if resp[0] == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, fmt.Errorf("detector process error: %s", msg)
	}
	if resp[0] != statusOK {
		return nil, fmt.Errorf("unknown detector status %d", resp[0])
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if int64(count)*16 > int64(r.Len()) {
		return nil, fmt.Errorf("malformed response: %d boxes in %d bytes", count, r.Len())
	}

	boxes := make([]geometry.Box, 0, count)
	for i := uint32(0); i < count; i++ {
		var b [4]int32
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return nil, fmt.Errorf("malformed response: %w", err)
		}
		boxes = append(boxes, geometry.Box{X: int(b[0]), Y: int(b[1]), W: int(b[2]), H: int(b[3])})
	}
	return boxes, nil
}

// Close shuts the process down and waits for it to exit.
func (w *ProcessDetector) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
