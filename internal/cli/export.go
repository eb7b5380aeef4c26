package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fee-tracker/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived fee snapshots as CSV and/or a PNG chart of avg, p50 and p95",
	Example: "  feetracker export --csv out/fees.csv --png out/fees.png --from 2025-03-01T00:00:00Z",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}
		if exportMaxPoints < 0 {
			return fmt.Errorf("--max-points cannot be negative")
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

// parseTimeFlag accepts RFC3339 or a bare date. Empty means unset.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: expected RFC3339 or YYYY-MM-DD", name, value)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start of the window (RFC3339 or YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End of the window (RFC3339 or YYYY-MM-DD, exclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum snapshots to export (defaults to export.max_data_points)")
}
