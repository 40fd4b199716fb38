package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func date(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecordDailyIdempotent(t *testing.T) {
	store := NewStore(90, zerolog.Nop())
	price := decimal.NewFromFloat(1714.02)

	store.RecordDaily("gold", date("2026-08-26"), price, nil)
	store.RecordDaily("gold", date("2026-08-26"), price, nil)

	window := store.Window("gold")
	if len(window) != 1 {
		t.Fatalf("want 1 sample, got %d", len(window))
	}
	if !window[0].Price.Equal(price) {
		t.Fatalf("sample price changed: %s", window[0].Price)
	}
}

func TestRecordDailyOverwritesSameDate(t *testing.T) {
	store := NewStore(90, zerolog.Nop())

	store.RecordDaily("gold", date("2026-08-26"), decimal.NewFromInt(100), nil)
	store.RecordDaily("gold", date("2026-08-26"), decimal.NewFromInt(101), nil)

	window := store.Window("gold")
	if len(window) != 1 {
		t.Fatalf("duplicate date created a second sample: %d", len(window))
	}
	if !window[0].Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("later write should win, got %s", window[0].Price)
	}
}

func TestRecordDailyKeepsDateOrder(t *testing.T) {
	store := NewStore(90, zerolog.Nop())

	store.RecordDaily("gold", date("2026-08-25"), decimal.NewFromInt(2), nil)
	store.RecordDaily("gold", date("2026-08-21"), decimal.NewFromInt(1), nil)
	store.RecordDaily("gold", date("2026-08-26"), decimal.NewFromInt(3), nil)

	window := store.Window("gold")
	if len(window) != 3 {
		t.Fatalf("want 3 samples, got %d", len(window))
	}
	for i := 1; i < len(window); i++ {
		if !window[i-1].Date.Before(window[i].Date) {
			t.Fatalf("window out of order at %d", i)
		}
	}
}

func TestEviction(t *testing.T) {
	store := NewStore(90, zerolog.Nop())
	today := date("2026-08-26")

	store.RecordDaily("gold", today.AddDate(0, 0, -120), decimal.NewFromInt(1), nil)
	store.RecordDaily("gold", today.AddDate(0, 0, -90), decimal.NewFromInt(2), nil)
	store.RecordDaily("gold", today, decimal.NewFromInt(3), nil)

	cutoff := today.AddDate(0, 0, -90)
	for _, sample := range store.Window("gold") {
		if sample.Date.Before(cutoff) {
			t.Fatalf("sample %s survived eviction", sample.Date.Format(DateLayout))
		}
	}
	if got := len(store.Window("gold")); got != 2 {
		t.Fatalf("want 2 retained samples, got %d", got)
	}
}

func TestLatestBeforeSkipsWeekend(t *testing.T) {
	store := NewStore(90, zerolog.Nop())

	// Friday sample, then a Monday query: the gap is simply absent.
	store.RecordDaily("gold", date("2026-08-21"), decimal.NewFromInt(5), nil)

	sample, ok := store.LatestBefore("gold", date("2026-08-24"))
	if !ok {
		t.Fatal("expected the Friday sample")
	}
	if !sample.Date.Equal(date("2026-08-21")) {
		t.Fatalf("wrong sample: %s", sample.Date.Format(DateLayout))
	}
}

func TestLatestBeforeExcludesSameDay(t *testing.T) {
	store := NewStore(90, zerolog.Nop())
	store.RecordDaily("gold", date("2026-08-26"), decimal.NewFromInt(5), nil)

	if _, ok := store.LatestBefore("gold", date("2026-08-26")); ok {
		t.Fatal("same-day sample must not count as prior")
	}
}

func TestWindowUnseenInstrument(t *testing.T) {
	store := NewStore(90, zerolog.Nop())
	if got := store.Window("nope"); len(got) != 0 {
		t.Fatalf("unseen instrument should have empty window, got %d", len(got))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	rate := decimal.NewFromFloat(0.7431)

	store := NewStore(90, zerolog.Nop())
	store.RecordDaily("gold", date("2026-08-25"), decimal.NewFromFloat(1700.10), &rate)
	store.RecordDaily("gold", date("2026-08-26"), decimal.NewFromFloat(1714.02), nil)
	if err := store.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := Load(path, 90, zerolog.Nop())
	window := loaded.Window("gold")
	if len(window) != 2 {
		t.Fatalf("want 2 samples after reload, got %d", len(window))
	}
	if window[0].FXRate == nil || !window[0].FXRate.Equal(rate) {
		t.Fatalf("fx rate lost in round trip: %v", window[0].FXRate)
	}
	if window[1].FXRate != nil {
		t.Fatal("absent fx rate should stay absent")
	}
}

func TestLoadCorruptFileStartsCold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}

	store := Load(path, 90, zerolog.Nop())
	if got := len(store.Window("gold")); got != 0 {
		t.Fatalf("corrupt file must load as empty store, got %d samples", got)
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	doc := `{"schema_version": 2, "instruments": {"gold": [{"date": "2026-08-26", "price": "1714.02", "source": "yahoo"}]}}`
	if err := writeFile(path, doc); err != nil {
		t.Fatal(err)
	}

	store := Load(path, 90, zerolog.Nop())
	window := store.Window("gold")
	if len(window) != 1 {
		t.Fatalf("additive schema must still parse, got %d samples", len(window))
	}
}
