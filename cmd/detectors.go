package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/gaze/internal/config"
	"github.com/andresmejia3/gaze/internal/detect"
	"github.com/andresmejia3/gaze/internal/locate"
	"github.com/andresmejia3/gaze/internal/opencv"
	"github.com/andresmejia3/gaze/internal/recognizer"
	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/andresmejia3/gaze/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// detectors owns everything behind a Locator so it can be released at once.
type detectors struct {
	closers []func()
}

func (d *detectors) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *detectors) cascade(path string) *opencv.Cascade {
	c, err := opencv.LoadCascade(path)
	if err != nil {
		d.Close()
		utils.Die("Failed to load cascade", err, nil)
	}
	d.closers = append(d.closers, func() { c.Close() })
	return c
}

// process starts one detector process. target is appended to the command
// so a single script can serve eyes and faces.
func (d *detectors) process(id int, command []string, target string) *worker.ProcessDetector {
	args := append(append([]string{}, command[1:]...), target)
	p, err := worker.NewProcessDetector(id, command[0], args...)
	if err != nil {
		d.Close()
		utils.Die("Failed to start detector process", err, nil)
	}
	d.closers = append(d.closers, p.Close)
	return p
}

// buildLocator creates the detectors named by the profile. Failures exit.
func buildLocator(cfg config.Config) (*locate.Locator, *detectors) {
	d := &detectors{}
	var (
		eyes, faces locate.Detector
		opts        []locate.Option
	)

	switch cfg.Detector {
	case config.DetectorCascade:
		eyes = d.cascade(cfg.Cascades.Eye)
		faces = d.cascade(cfg.Cascades.Face)
	case config.DetectorPigo:
		eyes = d.cascade(cfg.Cascades.Eye)
		p, err := detect.LoadPigo(cfg.Cascades.Pigo)
		if err != nil {
			d.Close()
			utils.Die("Failed to load pigo cascade", err, nil)
		}
		faces = p
	case config.DetectorProcess:
		eyes = d.process(0, cfg.DetectorCommand, "eyes")
		faces = d.process(1, cfg.DetectorCommand, "faces")
	default:
		utils.Die("Invalid profile", fmt.Errorf("unknown detector %q", cfg.Detector), nil)
	}

	if cfg.Cascades.Profile != "" && cfg.Detector != config.DetectorProcess {
		opts = append(opts, locate.WithProfile(d.cascade(cfg.Cascades.Profile)))
	}
	if len(cfg.FrameAngles) > 0 {
		opts = append(opts, locate.WithFramePasses(cfg.FrameAngles...))
	}

	fmt.Fprintf(os.Stderr, "👁️  Detector: %s (back-projection: %s)\n", cfg.Detector, cfg.BackProjection)
	return locate.New(eyes, faces, cfg.Locator(), opts...), d
}

// trainModel builds the recognizer from the stored corpus, optionally with
// a progress bar over the samples.
func trainModel(ctx context.Context, showProgress bool) (*recognizer.Model, recognizer.Stats) {
	model := recognizer.New(DB, Profile.Recognizer)

	if showProgress {
		total, err := DB.CountSamples(ctx)
		if err != nil {
			utils.Die("Failed to count training samples", err, nil)
		}
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription("🧠 Training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		model.SetProgress(bar)
		defer bar.Finish()
	}

	stats, err := model.Init(ctx)
	if err != nil {
		utils.Die("Failed to train model", err, nil)
	}

	logrus.WithFields(logrus.Fields{
		"samples": stats.Samples,
		"skipped": stats.Skipped,
		"people":  stats.People,
		"indexed": stats.Indexed,
	}).Debug("Initial training done")
	if stats.Samples == 0 {
		fmt.Fprintln(os.Stderr, "⚠️  No training samples yet, every face will be reported as unknown.")
	}
	return model, stats
}
