package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <person_id> <name>",
	Short: "Rename a person",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			utils.Die("Invalid person ID", err, nil)
		}
		name := args[1]

		runLabel(cmd.Context(), id, name)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id int, name string) {
	// Database is initialized in Root PersistentPreRun
	if err := DB.RenamePerson(ctx, id, name); err != nil {
		utils.Die("Failed to label person", err, nil)
	}

	fmt.Printf("✅ Person %d labeled as '%s'\n", id, name)
}
