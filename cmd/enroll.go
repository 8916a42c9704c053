package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/gaze/internal/pipeline"
	"github.com/andresmejia3/gaze/internal/recognizer"
	"github.com/andresmejia3/gaze/internal/render"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>...",
	Short: "Save the face found in each still image as a training sample",
	Long:  "Locates the first face in every image and stores it under <name>, exactly as the 's' key does in watch. Run 'gaze train' or press 'r' in a running watch afterwards.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runEnroll(cmd.Context(), args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, name string, paths []string) {
	locator, dets := buildLocator(Profile)
	defer dets.Close()

	// Only Prepare is needed to save samples, so the model stays untrained.
	model := recognizer.New(DB, Profile.Recognizer)
	controller := pipeline.New(Profile.Pipeline(), locator, model, DB, nil, nil)

	saved := 0
	for _, path := range paths {
		img, err := imaging.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Skipping %s: %v\n", path, err)
			continue
		}

		controller.RequestSave(name)
		out, err := controller.ProcessFrame(ctx, img)
		if err != nil {
			utils.Die("Failed to process "+path, err, nil)
		}

		if face, ok := savedFace(out, name); ok {
			saved++
			fmt.Fprintf(os.Stderr, "✅ %s: saved face at (%d, %d) %dx%d\n", path, face.Box.X, face.Box.Y, face.Box.W, face.Box.H)
		} else {
			fmt.Fprintf(os.Stderr, "⚠️  %s: no face saved\n", path)
		}
	}

	fmt.Fprintf(os.Stderr, "👤 Enrolled %d of %d images as '%s'\n", saved, len(paths), name)
	if saved < len(paths) {
		os.Exit(1)
	}
}

// savedFace finds the face the pending save was applied to. The model is
// untrained here, so every other face is unknown.
func savedFace(out render.Annotated, name string) (render.Face, bool) {
	for _, f := range out.Faces {
		if f.Label != types.UnknownLabel && f.Name == name {
			return f, true
		}
	}
	return render.Face{}, false
}
