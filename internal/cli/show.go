package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fee-tracker/internal/app"
)

const maxShowLimit = 1000

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently archived fee snapshots (newest first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 || showLimit > maxShowLimit {
			return fmt.Errorf("--limit must be between 1 and %d", maxShowLimit)
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
}
