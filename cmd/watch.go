package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/gaze/internal/capture"
	"github.com/andresmejia3/gaze/internal/opencv"
	"github.com/andresmejia3/gaze/internal/pipeline"
	"github.com/andresmejia3/gaze/internal/render"
	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// WatchOptions selects the frame source and where annotated frames go.
type WatchOptions struct {
	Camera        int
	InputPath     string
	Webcam        string
	Preview       bool
	SnapshotDir   string
	SnapshotEvery int
	SaveName      string
	Redact        string
}

var watchOpts WatchOptions

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Locate and recognize faces in a live camera or a video file",
	Long: `Runs the frame loop. In the preview window press 's' to save the next
located face under --save-name, 'r' to retrain from the database and 'q' or Esc to quit.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWatch(cmd.Context(), watchOpts)
	},
}

func init() {
	watchCmd.Flags().IntVarP(&watchOpts.Camera, "camera", "c", 0, "OpenCV camera index")
	watchCmd.Flags().StringVarP(&watchOpts.InputPath, "input", "i", "", "Path to a video file (decoded with ffmpeg)")
	watchCmd.Flags().StringVarP(&watchOpts.Webcam, "webcam", "w", "", "V4L2 device for grey or IR cameras (e.g. /dev/video2)")
	watchCmd.Flags().BoolVarP(&watchOpts.Preview, "preview", "p", false, "Show annotated frames in a window")
	watchCmd.Flags().StringVarP(&watchOpts.SnapshotDir, "snapshots", "s", "", "Write annotated frames as JPEG into this directory")
	watchCmd.Flags().IntVar(&watchOpts.SnapshotEvery, "snapshot-every", 10, "Keep every Nth annotated frame")
	watchCmd.Flags().StringVarP(&watchOpts.SaveName, "save-name", "n", "", "Person name used by the 's' key")
	watchCmd.Flags().StringVar(&watchOpts.Redact, "redact", "", "Hide unknown faces: black, secure, blur or pixel (overrides the profile)")

	watchCmd.MarkFlagsMutuallyExclusive("input", "webcam", "camera")
	watchCmd.MarkFlagsMutuallyExclusive("preview", "snapshots")
	rootCmd.AddCommand(watchCmd)
}

// closingSource is a frame source that must be released.
type closingSource interface {
	pipeline.Source
	Close() error
}

func runWatch(ctx context.Context, opts WatchOptions) {
	cfg := Profile
	if opts.Redact != "" {
		cfg.Render.Redact = opts.Redact
		if err := cfg.Render.Validate(); err != nil {
			utils.Die("Invalid --redact", err, nil)
		}
	}

	locator, dets := buildLocator(cfg)
	defer dets.Close()

	model, _ := trainModel(ctx, false)

	// 1. Open the frame source
	var (
		source  closingSource
		video   *capture.Video
		videoID string
		total   = -1
		err     error
	)
	switch {
	case opts.InputPath != "":
		videoID, err = utils.GenerateVideoID(opts.InputPath)
		if err != nil {
			utils.Die("Failed to generate video ID", err, nil)
		}
		total = utils.EstimateFrames(opts.InputPath, cfg.Camera.FPS)
		video, err = capture.OpenVideo(opts.InputPath, cfg.Camera.FPS)
		source = video
		fmt.Fprintf(os.Stderr, "📼 Processing Video ID: %s\n", videoID[:12])
	case opts.Webcam != "":
		source, err = capture.OpenWebcam(opts.Webcam, cfg.Camera.Width, cfg.Camera.Height)
	default:
		source, err = opencv.OpenCamera(opts.Camera, cfg.Camera.Width, cfg.Camera.Height)
	}
	if err != nil {
		utils.Die("Failed to open frame source", err, nil)
	}
	defer source.Close()

	// 2. Pick the presenter
	var presenter pipeline.Presenter = render.Discard{}
	var window *opencv.Window
	switch {
	case opts.Preview:
		window = opencv.NewWindow("gaze", opts.SaveName)
		defer window.Close()
		presenter = window
	case opts.SnapshotDir != "":
		dir := opts.SnapshotDir
		if videoID != "" {
			dir = filepath.Join(dir, videoID[:12])
		}
		snaps, err := render.NewSnapshots(dir, opts.SnapshotEvery)
		if err != nil {
			utils.Die("Failed to prepare snapshot directory", err, nil)
		}
		presenter = snaps
		defer func() {
			fmt.Fprintf(os.Stderr, "🖼️  Wrote %d snapshots to %s\n", snaps.Written(), dir)
		}()
	}

	controller := pipeline.New(cfg.Pipeline(), locator, model, DB, source, presenter)
	if window != nil {
		window.Bind(controller)
	}

	if video != nil {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription("🔍 Gaze Watching"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
		controller.SetProgress(bar)
		defer bar.Finish()
	}

	// Tell systemd we are up when running as a service; a no-op otherwise.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	// 3. Run until the source ends, the window closes or we are interrupted
	err = controller.Run(ctx)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil && !errors.Is(err, context.Canceled) {
		var child *utils.SafeCommand
		if video != nil {
			child = video.Command()
		}
		utils.Die("Frame loop stopped", err, child)
	}

	fmt.Fprintf(os.Stderr, "\n✅ Processed %d frames.\n", controller.Frames())
}
