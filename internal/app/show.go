package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"invest-watcher/internal/history"
	"invest-watcher/internal/service"
)

// Show prints the retained history window for one instrument.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}
	inst, ok := registry.Lookup(opts.Instrument)
	if !ok {
		return fmt.Errorf("unknown instrument %q", opts.Instrument)
	}

	svc := service.New(a.Config, registry, nil, nil, nil, nil, a.Logger)
	window := svc.History().Window(inst.Key)
	if len(window) == 0 {
		fmt.Fprintln(os.Stdout, "no samples recorded")
		return nil
	}

	if opts.Limit > 0 && len(window) > opts.Limit {
		window = window[len(window)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Date\tPrice (%s)\tFX Rate\n", a.Config.FX.ReportingCurrency)

	for _, sample := range window {
		rate := "-"
		if sample.FXRate != nil {
			rate = sample.FXRate.StringFixed(4)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.Date.Format(history.DateLayout),
			sample.Price.StringFixed(2),
			rate,
		)
	}

	return writer.Flush()
}
