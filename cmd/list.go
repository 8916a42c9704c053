package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known people and their sample counts",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	people, err := DB.ListPeople(ctx)
	if err != nil {
		utils.Die("Failed to list people", err, nil)
	}

	if len(people) == 0 {
		fmt.Println("No people found in database.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSAMPLES\tCREATED")
	fmt.Fprintln(w, "--\t----\t-------\t-------")

	for _, p := range people {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", p.ID, p.Name, p.Count, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
