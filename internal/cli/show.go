package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"invest-watcher/internal/app"
)

var (
	showInstrument string
	showLimit      int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the retained history window for an instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showInstrument == "" {
			return fmt.Errorf("--instrument must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Instrument: showInstrument,
			Limit:      showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showInstrument, "instrument", "", "Instrument key to display")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
