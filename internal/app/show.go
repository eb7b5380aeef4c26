package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"fee-tracker/internal/storage"
)

// Show prints the most recently archived snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return writeSnapshotTable(os.Stdout, records)
}

func writeSnapshotTable(out io.Writer, records []storage.SnapshotRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no snapshots found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Captured (UTC)\tBase\tMin\tMax\tAvg\tP50\tP90\tP95")

	for _, rec := range records {
		s := rec.Snapshot
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.CapturedAt.UTC().Format(time.RFC3339),
			s.BaseFee,
			s.Charged.Min,
			s.Charged.Max,
			s.Charged.Avg,
			s.Charged.P50,
			s.Charged.P90,
			s.Charged.P95,
		)
	}

	return writer.Flush()
}
