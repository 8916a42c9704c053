package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recognizer from every stored face sample",
	Long:  "Reads the whole corpus, reports unreadable samples and prints what the model was built from. Useful to check the corpus before a long watch run.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, stats := trainModel(cmd.Context(), true)

		fmt.Fprintf(os.Stderr, "\n✅ Trained on %d samples of %d people in %s\n", stats.Samples, stats.People, stats.Duration.Round(time.Millisecond))
		if stats.Skipped > 0 {
			fmt.Fprintf(os.Stderr, "⚠️  Skipped %d unreadable samples (run with --log-level debug for details)\n", stats.Skipped)
		}
		if stats.Indexed {
			fmt.Fprintln(os.Stderr, "📇 Corpus is large enough for the approximate index.")
		}
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
