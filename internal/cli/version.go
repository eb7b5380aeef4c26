package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fee-tracker/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// Skip config loading so version works without a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.Info())
	},
}
