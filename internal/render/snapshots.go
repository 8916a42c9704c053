package render

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Snapshots presents frames by writing every Nth one as a JPEG. It never
// closes, so the frame loop runs until the source ends.
type Snapshots struct {
	Dir   string
	Every int

	frames  int
	written int
}

// NewSnapshots creates dir if needed. every below 1 keeps every frame.
func NewSnapshots(dir string, every int) (*Snapshots, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &Snapshots{Dir: dir, Every: max(every, 1)}, nil
}

func (s *Snapshots) Present(frame image.Image) error {
	s.frames++
	if (s.frames-1)%s.Every != 0 {
		return nil
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.jpg", s.frames))
	if err := imaging.Save(frame, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	s.written++
	return nil
}

func (s *Snapshots) Visible() bool { return true }

// Written is the number of files saved so far.
func (s *Snapshots) Written() int { return s.written }

// Discard drops every frame, for runs that only log and save faces.
type Discard struct{}

func (Discard) Present(image.Image) error { return nil }

func (Discard) Visible() bool { return true }
