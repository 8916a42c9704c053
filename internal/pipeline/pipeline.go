// Package pipeline runs the frame loop: acquire, locate, save or recognize,
// annotate, present.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/gaze/internal/capture"
	"github.com/andresmejia3/gaze/internal/locate"
	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/recognizer"
	"github.com/andresmejia3/gaze/internal/render"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/sirupsen/logrus"
)

// Source yields frames until it returns capture.ErrEndOfStream.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
}

// Presenter shows annotated frames. The loop stops once it is no longer
// visible.
type Presenter interface {
	Present(frame image.Image) error
	Visible() bool
}

// Locator finds faces in a grey frame.
type Locator interface {
	Locate(frame *image.Gray) ([]locate.FaceCandidate, error)
}

// Model classifies face crops and can be rebuilt from the corpus.
type Model interface {
	Init(ctx context.Context) (recognizer.Stats, error)
	Recognize(face image.Image) recognizer.Match
	Prepare(face image.Image) *image.Gray
}

// People persists new samples and resolves labels to names.
type People interface {
	SaveFace(ctx context.Context, name string, sample types.Sample) (int, error)
	GetPerson(ctx context.Context, id int) (*types.Person, error)
}

// Progress counts processed frames.
type Progress interface {
	Add(n int) error
}

// Config tunes the controller.
type Config struct {
	// CommandBuffer is how many commands may wait between two frames.
	// Further requests are dropped.
	CommandBuffer int
	// Style is applied to every annotated frame.
	Style render.Style
}

// DefaultConfig leaves room for a burst of key presses between frames.
func DefaultConfig() Config {
	return Config{CommandBuffer: 8}
}

type commandKind int

const (
	cmdReload commandKind = iota
	cmdSave
)

type command struct {
	kind commandKind
	name string
}

// Controller owns the frame loop. Commands may be requested from any
// goroutine; they are applied by the loop between frames.
type Controller struct {
	locator   Locator
	model     Model
	people    People
	source    Source
	presenter Presenter
	progress  Progress
	style     render.Style
	log       *logrus.Entry

	commands chan command

	// Loop-owned state.
	pendingSave string
	names       map[int]string
	frames      int

	reloading  atomic.Bool
	namesStale atomic.Bool
	reloads    sync.WaitGroup
}

// New wires a controller. source and presenter may be nil when only
// ProcessFrame is used.
func New(cfg Config, locator Locator, model Model, people People, source Source, presenter Presenter) *Controller {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	return &Controller{
		locator:   locator,
		model:     model,
		people:    people,
		source:    source,
		presenter: presenter,
		style:     cfg.Style,
		log:       logrus.WithField("component", "pipeline"),
		commands:  make(chan command, cfg.CommandBuffer),
		names:     make(map[int]string),
	}
}

// SetProgress reports each presented frame to p.
func (c *Controller) SetProgress(p Progress) {
	c.progress = p
}

// RequestReload asks for the model to be retrained from the corpus.
func (c *Controller) RequestReload() {
	c.enqueue(command{kind: cmdReload})
}

// RequestSave asks for the next located face to be stored under name.
func (c *Controller) RequestSave(name string) {
	c.enqueue(command{kind: cmdSave, name: name})
}

func (c *Controller) enqueue(cmd command) {
	select {
	case c.commands <- cmd:
	default:
		c.log.WithField("command", cmd.kind).Warn("Command queue full, dropping request")
	}
}

// Frames is the number of frames presented by Run.
func (c *Controller) Frames() int {
	return c.frames
}

// Wait blocks until any running retrain has finished.
func (c *Controller) Wait() {
	c.reloads.Wait()
}

// drain applies every queued command. A later save replaces an earlier one
// that has not found a face yet.
func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdReload:
				c.reload(ctx)
			case cmdSave:
				c.pendingSave = cmd.name
			}
		default:
			return
		}
	}
}

// reload retrains in the background. Recognition keeps using the previous
// model until the new one is swapped in.
func (c *Controller) reload(ctx context.Context) {
	if !c.reloading.CompareAndSwap(false, true) {
		c.log.Debug("Retrain already running")
		return
	}

	c.reloads.Add(1)
	go func() {
		defer c.reloads.Done()
		defer c.reloading.Store(false)

		stats, err := c.model.Init(ctx)
		if err != nil {
			c.log.WithError(err).Error("Retrain failed")
			return
		}
		c.namesStale.Store(true)
		c.log.WithFields(logrus.Fields{
			"samples": stats.Samples,
			"people":  stats.People,
		}).Info("Retrain finished")
	}()
}

// ProcessFrame handles one frame. A pending save consumes the first face
// found; every other face is classified.
func (c *Controller) ProcessFrame(ctx context.Context, img image.Image) (render.Annotated, error) {
	c.drain(ctx)
	if c.namesStale.CompareAndSwap(true, false) {
		clear(c.names)
	}

	gray := normalize.Gray(img)
	candidates, err := c.locator.Locate(gray)
	if err != nil {
		return render.Annotated{}, fmt.Errorf("failed to locate faces: %w", err)
	}

	faces := make([]render.Face, 0, len(candidates))
	for _, cand := range candidates {
		crop := normalize.Crop(gray, cand.Box)

		if c.pendingSave != "" {
			name := c.pendingSave
			c.pendingSave = ""
			faces = append(faces, c.save(ctx, name, cand, crop))
			continue
		}

		match := c.model.Recognize(crop)
		cand.Label = match.Label
		cand.Confidence = match.Distance
		faces = append(faces, render.Face{FaceCandidate: cand, Name: c.name(ctx, match.Label)})
	}

	return render.Annotated{Frame: c.style.Annotate(img, faces), Faces: faces}, nil
}

// save stores crop as a new sample. Failures are logged and the command is
// dropped either way.
func (c *Controller) save(ctx context.Context, name string, cand locate.FaceCandidate, crop *image.Gray) render.Face {
	cand.Label = types.UnknownLabel
	face := render.Face{FaceCandidate: cand}
	log := c.log.WithField("name", name)

	prepared := c.model.Prepare(crop)
	content, err := recognizer.EncodeFace(prepared)
	if err != nil {
		log.WithError(err).Error("Failed to save face")
		return face
	}

	id, err := c.people.SaveFace(ctx, name, types.Sample{
		Content: content,
		Width:   prepared.Rect.Dx(),
		Height:  prepared.Rect.Dy(),
		Type:    types.SampleTypeJPEG,
	})
	if err != nil {
		log.WithError(err).Error("Failed to save face")
		return face
	}

	c.names[id] = name
	face.Label = id
	face.Name = name
	log.WithField("person_id", id).Info("Saved face sample")
	return face
}

// name resolves a label, caching hits and misses until the next retrain.
func (c *Controller) name(ctx context.Context, label int) string {
	if label == types.UnknownLabel {
		return ""
	}
	if n, ok := c.names[label]; ok {
		return n
	}

	person, err := c.people.GetPerson(ctx, label)
	if err != nil {
		c.log.WithError(err).WithField("person_id", label).Warn("Failed to look up person")
		return ""
	}
	n := ""
	if person != nil {
		n = person.Name
	}
	c.names[label] = n
	return n
}

// Run processes frames until the source ends, the presenter closes or ctx
// is cancelled. A failing frame stops the loop.
func (c *Controller) Run(ctx context.Context) error {
	if c.source == nil || c.presenter == nil {
		return errors.New("pipeline has no source or presenter")
	}
	defer c.Wait()

	for c.presenter.Visible() {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := c.source.Next(ctx)
		if errors.Is(err, capture.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}

		out, err := c.safeProcess(ctx, img)
		if err != nil {
			c.log.WithError(err).WithField("frame", c.frames).Error("Frame failed, stopping")
			return fmt.Errorf("frame %d: %w", c.frames, err)
		}

		if err := c.presenter.Present(out.Frame); err != nil {
			return fmt.Errorf("failed to present frame: %w", err)
		}
		c.frames++
		if c.progress != nil {
			_ = c.progress.Add(1)
		}
	}
	return nil
}

func (c *Controller) safeProcess(ctx context.Context, img image.Image) (out render.Annotated, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.ProcessFrame(ctx, img)
}
