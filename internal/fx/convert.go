package fx

import (
	"fmt"

	"github.com/shopspring/decimal"

	"invest-watcher/internal/instrument"
)

// minorUnitFactor rescales minor-unit quotes (pence) into the major unit.
var minorUnitFactor = decimal.NewFromInt(100)

// ConversionError reports a quote that could not be normalised into the
// reporting currency. The instrument is skipped for the cycle, never fatal.
type ConversionError struct {
	Key    string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %s", e.Key, e.Reason)
}

// Convert normalises a raw native quote into the reporting currency.
//
// The minor-unit rescale, when flagged, is applied exactly once and before the
// FX step. Instruments already quoted in the reporting currency pass through
// with the rate ignored; converting instruments require a present, non-zero
// rate.
func Convert(inst instrument.Instrument, raw decimal.Decimal, rate *decimal.Decimal) (decimal.Decimal, error) {
	price := raw
	if inst.MinorUnit {
		price = price.Div(minorUnitFactor)
	}

	if !inst.Convert {
		return price, nil
	}

	if rate == nil {
		return decimal.Decimal{}, &ConversionError{Key: inst.Key, Reason: "fx rate unavailable"}
	}
	if rate.IsZero() {
		return decimal.Decimal{}, &ConversionError{Key: inst.Key, Reason: "fx rate is zero"}
	}

	return price.Mul(*rate), nil
}
