package cli

import (
	"github.com/spf13/cobra"

	"fee-tracker/internal/app"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [tx-hash]",
	Short: "Show a transaction's operations (defaults to the latest transaction)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.InspectOptions{}
		if len(args) == 1 {
			opts.TxHash = args[0]
		}
		return getApp().Inspect(cmd.Context(), opts)
	},
}
