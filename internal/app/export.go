package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"fee-tracker/internal/storage"
)

// Export renders archived snapshots as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListSnapshotsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error {
			return writeSnapshotsCSV(w, downsampled)
		}); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(w io.Writer) error {
			return writeSnapshotsPNG(w, downsampled)
		}); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.SnapshotRecord, max int) []storage.SnapshotRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.SnapshotRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

var csvHeader = []string{
	"captured_at", "base_fee", "min", "max", "avg",
	"p10", "p25", "p50", "p75", "p90", "p95",
}

func writeSnapshotsCSV(w io.Writer, records []storage.SnapshotRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, rec := range records {
		s := rec.Snapshot
		row := []string{
			s.CapturedAt.UTC().Format(time.RFC3339),
			s.BaseFee,
			s.Charged.Min,
			s.Charged.Max,
			s.Charged.Avg,
			s.Charged.P10,
			s.Charged.P25,
			s.Charged.P50,
			s.Charged.P75,
			s.Charged.P90,
			s.Charged.P95,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type feeSeries struct {
	x   []time.Time
	avg []float64
	p50 []float64
	p95 []float64
}

// chartSeries converts archived strings for plotting. Rows with an
// unparseable value are skipped.
func chartSeries(records []storage.SnapshotRecord) feeSeries {
	var fs feeSeries
	for _, rec := range records {
		c := rec.Snapshot.Charged
		avg, errAvg := decimal.NewFromString(c.Avg)
		p50, errP50 := decimal.NewFromString(c.P50)
		p95, errP95 := decimal.NewFromString(c.P95)
		if errAvg != nil || errP50 != nil || errP95 != nil {
			continue
		}
		fs.x = append(fs.x, rec.Snapshot.CapturedAt)
		fs.avg = append(fs.avg, avg.InexactFloat64())
		fs.p50 = append(fs.p50, p50.InexactFloat64())
		fs.p95 = append(fs.p95, p95.InexactFloat64())
	}
	return fs
}

func writeSnapshotsPNG(w io.Writer, records []storage.SnapshotRecord) error {
	fs := chartSeries(records)
	if len(fs.x) < 2 {
		return errors.New("need at least two plottable snapshots to render a chart")
	}

	feeFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Fee charged (stroops)",
			ValueFormatter: feeFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Avg", XValues: fs.x, YValues: fs.avg},
			chart.TimeSeries{Name: "P50", XValues: fs.x, YValues: fs.p50},
			chart.TimeSeries{Name: "P95", XValues: fs.x, YValues: fs.p95},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
