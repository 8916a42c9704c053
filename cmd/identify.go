package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/gaze/internal/pipeline"
	"github.com/andresmejia3/gaze/internal/render"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var identifyOut string

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Locate and recognize the faces in a still image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runIdentify(cmd.Context(), args[0], identifyOut)
	},
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyOut, "output", "o", "", "Write the annotated image to this path")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, path, outPath string) {
	img, err := imaging.Open(path)
	if err != nil {
		utils.Die("Failed to open image", err, nil)
	}

	locator, dets := buildLocator(Profile)
	defer dets.Close()
	model, _ := trainModel(ctx, false)

	controller := pipeline.New(Profile.Pipeline(), locator, model, DB, nil, nil)
	out, err := controller.ProcessFrame(ctx, img)
	if err != nil {
		utils.Die("Failed to process image", err, nil)
	}

	if len(out.Faces) == 0 {
		fmt.Println("No faces found.")
	} else {
		printFaces(out.Faces)
	}

	if outPath != "" {
		if err := imaging.Save(out.Frame, outPath); err != nil {
			utils.Die("Failed to write annotated image", err, nil)
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", outPath)
	}
}

func printFaces(faces []render.Face) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tANGLE\tPERSON\tDISTANCE")
	fmt.Fprintln(w, "----\t---\t-----\t------\t--------")

	for i, f := range faces {
		person, distance := "unknown", "-"
		if f.Label != types.UnknownLabel {
			person = fmt.Sprintf("%d %s", f.Label, f.Name)
			distance = fmt.Sprintf("%.2f", f.Confidence)
		}
		fmt.Fprintf(w, "%d\t%d,%d %dx%d\t%.1f°\t%s\t%s\n", i+1, f.Box.X, f.Box.Y, f.Box.W, f.Box.H, f.Angle, person, distance)
	}
	w.Flush()
}
