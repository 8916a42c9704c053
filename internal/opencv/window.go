package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Commander receives the interactive commands issued from the window.
type Commander interface {
	RequestReload()
	RequestSave(name string)
}

// Window shows annotated frames and turns key presses into commands:
// s saves the next located face, r retrains, q or Esc closes.
type Window struct {
	window   *gocv.Window
	commands Commander
	saveName string
	closed   bool
}

// NewWindow opens a preview window.
func NewWindow(title, saveName string) *Window {
	window := gocv.NewWindow(title)
	window.ResizeWindow(1280, 720)
	return &Window{window: window, saveName: saveName}
}

// Bind routes key commands to c.
func (w *Window) Bind(c Commander) {
	w.commands = c
}

// Present displays a frame and polls the keyboard once.
func (w *Window) Present(frame image.Image) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	w.window.IMShow(mat)
	w.handleKey(w.window.WaitKey(1))
	return nil
}

func (w *Window) handleKey(key int) {
	switch key {
	case 'q', 27:
		w.closed = true
	case 'r':
		if w.commands != nil {
			w.commands.RequestReload()
		}
	case 's':
		if w.commands != nil && w.saveName != "" {
			w.commands.RequestSave(w.saveName)
		}
	}
}

// Visible reports whether the user still has the window open.
func (w *Window) Visible() bool {
	return !w.closed && w.window.IsOpen()
}

// Close closes the window.
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
