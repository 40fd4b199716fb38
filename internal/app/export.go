package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"invest-watcher/internal/history"
	"invest-watcher/internal/instrument"
	"invest-watcher/internal/service"
)

// exportRow is one exported (date, price) point for a single instrument.
type exportRow struct {
	Date   time.Time
	Price  decimal.Decimal
	FXRate *decimal.Decimal
}

// Export renders an instrument's price history as CSV and/or PNG. When the
// PostgreSQL archive is configured it serves the data, giving horizons beyond
// the rolling history file; otherwise the file window is exported.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	registry, err := a.newRegistry()
	if err != nil {
		return err
	}
	inst, ok := registry.Lookup(opts.Instrument)
	if !ok {
		return fmt.Errorf("unknown instrument %q", opts.Instrument)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := history.Day(time.Now()).AddDate(0, 0, 1)
	if opts.To != nil {
		to = history.Day(*opts.To)
	}
	from := to.AddDate(0, 0, -a.Config.Storage.HistoryDays)
	if opts.From != nil {
		from = history.Day(*opts.From)
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := a.collectRows(ctx, registry, inst.Key, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("instrument", inst.Key).Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, inst.Key, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, inst.Name, a.Config.FX.ReportingCurrency, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) collectRows(ctx context.Context, registry *instrument.Registry, key string, from, to time.Time) ([]exportRow, error) {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		defer closeArchive()
		samples, err := archive.ListPricesBetween(ctx, key, from, to)
		if err != nil {
			return nil, err
		}
		rows := make([]exportRow, 0, len(samples))
		for _, sample := range samples {
			rows = append(rows, exportRow{Date: sample.Date, Price: sample.Price, FXRate: sample.FXRate})
		}
		return rows, nil
	}

	svc := service.New(a.Config, registry, nil, nil, nil, nil, a.Logger)
	var rows []exportRow
	for _, sample := range svc.History().Window(key) {
		if sample.Date.Before(from) || !sample.Date.Before(to) {
			continue
		}
		rows = append(rows, exportRow{Date: sample.Date, Price: sample.Price, FXRate: sample.FXRate})
	}
	return rows, nil
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path, key string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"instrument", "date", "price", "fx_rate"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		rate := ""
		if row.FXRate != nil {
			rate = row.FXRate.String()
		}
		record := []string{
			key,
			row.Date.Format(history.DateLayout),
			row.Price.String(),
			rate,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRowsPNG(path, name, currency string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	prices := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = row.Date
		prices[i] = row.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Price (%s)", currency),
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    name,
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
