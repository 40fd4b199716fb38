package fx

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"invest-watcher/internal/instrument"
)

func TestConvertPassthrough(t *testing.T) {
	inst := instrument.Instrument{Key: "iswd", Currency: "GBP"}
	raw := decimal.NewFromFloat(61.23)

	got, err := Convert(inst, raw, nil)
	if err != nil {
		t.Fatalf("passthrough should not error: %v", err)
	}
	if !got.Equal(raw) {
		t.Fatalf("passthrough changed the price: %s", got)
	}
}

func TestConvertMinorUnit(t *testing.T) {
	inst := instrument.Instrument{Key: "iswd", Currency: "GBP", MinorUnit: true}

	got, err := Convert(inst, decimal.NewFromInt(6123), nil)
	if err != nil {
		t.Fatalf("minor unit rescale should not error: %v", err)
	}
	if want := decimal.NewFromFloat(61.23); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestConvertWithRate(t *testing.T) {
	inst := instrument.Instrument{Key: "gold_gbp", Currency: "USD", Convert: true}
	rate := decimal.NewFromFloat(0.74)

	got, err := Convert(inst, decimal.NewFromInt(2000), &rate)
	if err != nil {
		t.Fatalf("conversion should not error: %v", err)
	}
	if want := decimal.NewFromInt(1480); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestConvertMinorUnitBeforeRate(t *testing.T) {
	inst := instrument.Instrument{Key: "x", Convert: true, MinorUnit: true}
	rate := decimal.NewFromInt(2)

	got, err := Convert(inst, decimal.NewFromInt(100), &rate)
	if err != nil {
		t.Fatalf("conversion should not error: %v", err)
	}
	// 100 pence -> 1.00, then doubled by the rate. Applied once, never both
	// orders.
	if want := decimal.NewFromInt(2); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestConvertMissingRate(t *testing.T) {
	inst := instrument.Instrument{Key: "gold_gbp", Convert: true}

	_, err := Convert(inst, decimal.NewFromInt(2000), nil)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.Key != "gold_gbp" {
		t.Fatalf("error names wrong instrument: %s", convErr.Key)
	}
}

func TestConvertZeroRate(t *testing.T) {
	inst := instrument.Instrument{Key: "gold_gbp", Convert: true}
	zero := decimal.Zero

	_, err := Convert(inst, decimal.NewFromInt(2000), &zero)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	inst := instrument.Instrument{Key: "gold_gbp", Convert: true}
	rate := decimal.NewFromFloat(0.7431)
	raw := decimal.NewFromFloat(2145.32)

	converted, err := Convert(inst, raw, &rate)
	if err != nil {
		t.Fatalf("conversion should not error: %v", err)
	}

	back := converted.Div(rate)
	tolerance := decimal.New(1, -9)
	if back.Sub(raw).Abs().GreaterThan(tolerance) {
		t.Fatalf("round trip drifted: %s -> %s", raw, back)
	}
}
