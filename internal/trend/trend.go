package trend

import (
	"time"

	"github.com/shopspring/decimal"

	"invest-watcher/internal/history"
)

var hundred = decimal.NewFromInt(100)

// Trends carries day-over-day and horizon percentage changes. A nil field
// means "no data", which the formatter renders distinctly from zero.
type Trends struct {
	DayPct   *decimal.Decimal
	ShortPct *decimal.Decimal
	LongPct  *decimal.Decimal
}

// Calculator derives trends from a retained history window.
type Calculator struct {
	shortDays int
	longDays  int
}

// NewCalculator builds a calculator with the configured comparison horizons.
func NewCalculator(shortDays, longDays int) Calculator {
	if shortDays <= 0 {
		shortDays = 5
	}
	if longDays <= 0 {
		longDays = 22
	}
	return Calculator{shortDays: shortDays, longDays: longDays}
}

// Trends computes the percentage changes of current against the window,
// anchored at date. The window must be date-ascending, as the history store
// returns it.
func (c Calculator) Trends(window []history.Sample, date time.Time, current decimal.Decimal) Trends {
	day := history.Day(date)
	return Trends{
		DayPct:   pctSince(latestBefore(window, day), current),
		ShortPct: pctSince(atOrBefore(window, day.AddDate(0, 0, -c.shortDays)), current),
		LongPct:  pctSince(atOrBefore(window, day.AddDate(0, 0, -c.longDays)), current),
	}
}

// latestBefore finds the most recent sample strictly before day.
func latestBefore(window []history.Sample, day time.Time) *history.Sample {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Date.Before(day) {
			return &window[i]
		}
	}
	return nil
}

// atOrBefore finds the sample dated target, or the nearest one before it.
func atOrBefore(window []history.Sample, target time.Time) *history.Sample {
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].Date.After(target) {
			return &window[i]
		}
	}
	return nil
}

// pctSince computes (current - base) / base * 100. Absent base, or a base
// price of exactly zero, yields nil: a data anomaly must not crash a report.
func pctSince(base *history.Sample, current decimal.Decimal) *decimal.Decimal {
	if base == nil || base.Price.IsZero() {
		return nil
	}
	pct := current.Sub(base.Price).Div(base.Price).Mul(hundred)
	return &pct
}
