package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invest-watcher/internal/alerting"
	"invest-watcher/internal/instrument"
	"invest-watcher/internal/trend"
)

// Formatter renders digest and alert payloads as plain text. Pure: the only
// output is the returned string.
type Formatter struct {
	symbol    string
	shortDays int
	longDays  int
}

// NewFormatter builds a formatter for the reporting currency code. The trend
// horizons label the digest trend line and must match the calculator's.
func NewFormatter(reportingCurrency string, shortDays, longDays int) Formatter {
	if shortDays <= 0 {
		shortDays = 5
	}
	if longDays <= 0 {
		longDays = 22
	}
	return Formatter{
		symbol:    currencySymbol(reportingCurrency),
		shortDays: shortDays,
		longDays:  longDays,
	}
}

// DigestEntry is one instrument's row in the daily summary. Err marks the
// instrument as unavailable this cycle; such rows are listed, not dropped.
type DigestEntry struct {
	Instrument instrument.Instrument
	Price      decimal.Decimal
	Trends     trend.Trends
	Err        error
}

// Digest renders the daily summary in configuration order.
func (f Formatter) Digest(now time.Time, entries []DigestEntry, fxRate *decimal.Decimal, fxPair string) string {
	var b strings.Builder
	b.WriteString("Daily Investment Summary\n")
	b.WriteString(now.Format("Monday, 02 January 2006"))
	b.WriteString("\n")

	for _, entry := range entries {
		b.WriteString("\n")
		if entry.Err != nil {
			fmt.Fprintf(&b, "%s: data unavailable\n", entry.Instrument.Name)
			continue
		}

		fmt.Fprintf(&b, "%s\n", entry.Instrument.Name)
		fmt.Fprintf(&b, "  %s%s\n", f.Money(entry.Price), unitSuffix(entry.Instrument))
		fmt.Fprintf(&b, "  1d: %s | %dd: %s | %dd: %s\n",
			signedPct(entry.Trends.DayPct),
			f.shortDays, signedPct(entry.Trends.ShortPct),
			f.longDays, signedPct(entry.Trends.LongPct),
		)
	}

	if fxRate != nil {
		fmt.Fprintf(&b, "\n%s: %s\n", fxPair, fxRate.StringFixed(4))
	}
	return b.String()
}

// Alerts renders the intraday alert payload for one watch pass.
func (f Formatter) Alerts(now time.Time, events []alerting.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intraday Alert (%s)\n", now.Format("15:04"))

	for _, ev := range events {
		b.WriteString("\n")
		switch ev.Kind {
		case alerting.KindSpike, alerting.KindDip:
			label := "SPIKE"
			if ev.Kind == alerting.KindDip {
				label = "DIP"
			}
			fmt.Fprintf(&b, "%s %s\n", label, ev.Instrument.Name)
			fmt.Fprintf(&b, "Current: %s\n", f.Money(ev.Price))
			fmt.Fprintf(&b, "Open: %s\n", f.Money(ev.Reference))
			fmt.Fprintf(&b, "Move: %s%% (threshold ±%s%%)\n",
				signedFixed(ev.MovePct), ev.ThresholdPct.StringFixed(2))
		case alerting.KindPriceAbove:
			fmt.Fprintf(&b, "%s above %s\n", ev.Instrument.Name, f.Money(ev.Level))
			fmt.Fprintf(&b, "Current: %s\n", f.Money(ev.Price))
		case alerting.KindPriceBelow:
			fmt.Fprintf(&b, "%s below %s\n", ev.Instrument.Name, f.Money(ev.Level))
			fmt.Fprintf(&b, "Current: %s\n", f.Money(ev.Price))
		}
	}
	return b.String()
}

// Probe renders the fixed connectivity test message.
func (f Formatter) Probe(now time.Time, appName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - test message\n\n", appName)
	b.WriteString("Notification delivery is working.\n")
	fmt.Fprintf(&b, "Sent at %s\n", now.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

// Money renders a price with the reporting currency symbol at two decimals.
func (f Formatter) Money(v decimal.Decimal) string {
	return f.symbol + v.StringFixed(2)
}

func unitSuffix(inst instrument.Instrument) string {
	if inst.Unit == "" {
		return ""
	}
	return " " + inst.Unit
}

// signedPct renders a trend value, distinguishing "n/a" from a genuine zero.
func signedPct(v *decimal.Decimal) string {
	if v == nil {
		return "n/a"
	}
	return signedFixed(*v) + "%"
}

func signedFixed(v decimal.Decimal) string {
	s := v.StringFixed(2)
	if v.Sign() >= 0 {
		return "+" + s
	}
	return s
}

func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "GBP":
		return "£"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	default:
		return code + " "
	}
}
