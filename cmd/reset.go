package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/gaze/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB        bool
	resetSnapshots string
	resetYes       bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (people, face samples, snapshots)",
	Long:  "Drops the people and face sample tables. Pass --snapshots to also delete a snapshot directory written by watch.",
	Run: func(cmd *cobra.Command, args []string) {
		// Without --snapshots the database is the only thing to clear
		if !resetDB && resetSnapshots == "" {
			resetDB = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all people and face samples?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetSnapshots != "" {
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", resetSnapshots)) {
				fmt.Println("🗑️  Clearing Snapshots...")
				removeDir(resetSnapshots)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear PostgreSQL database")
	resetCmd.Flags().StringVar(&resetSnapshots, "snapshots", "", "Delete this snapshot directory")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	return isYes(res)
}

func isYes(answer string) bool {
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
