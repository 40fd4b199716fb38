package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/config"
	"invest-watcher/internal/fetcher"
	"invest-watcher/internal/history"
	"invest-watcher/internal/instrument"
)

// staticQuoteFetcher serves canned quotes keyed by ticker.
type staticQuoteFetcher struct {
	quotes map[string]fetcher.Quote
	errs   map[string]error
	calls  int
}

func (f *staticQuoteFetcher) FetchQuote(_ context.Context, ticker string) (fetcher.Quote, error) {
	f.calls++
	if err, ok := f.errs[ticker]; ok {
		return fetcher.Quote{}, err
	}
	quote, ok := f.quotes[ticker]
	if !ok {
		return fetcher.Quote{}, fmt.Errorf("%s: %w", ticker, fetcher.ErrNoData)
	}
	return quote, nil
}

// staticRateFetcher serves one fixed FX rate.
type staticRateFetcher struct {
	rate decimal.Decimal
	err  error
}

func (f *staticRateFetcher) FetchRate(context.Context, string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	return f.rate, nil
}

// recordingNotifier captures every delivered payload.
type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "investwatcher", Timezone: "UTC"},
		Storage: config.StorageConfig{
			DataDir:     t.TempDir(),
			HistoryFile: "price_history.json",
			StateFile:   "alerts_state.json",
			HistoryDays: 90,
		},
		FX: config.FXConfig{Pair: "GBPUSD=X", Invert: true, ReportingCurrency: "GBP"},
		Instruments: []config.InstrumentConfig{
			{Key: "gold_gbp", Ticker: "GC=F", Name: "Gold", Currency: "USD", Convert: true},
			{Key: "iswd", Ticker: "ISWD.L", Name: "iShares World ETF", Currency: "GBp", MinorUnit: true},
		},
		Alerts: config.AlertsConfig{DefaultThresholdPct: 1.5},
		Trends: config.TrendsConfig{ShortDays: 5, LongDays: 22},
	}
}

func newTestService(t *testing.T, cfg *config.Config, quotes *staticQuoteFetcher, rates *staticRateFetcher, notifier *recordingNotifier) *Service {
	t.Helper()
	registry, err := instrument.NewRegistry(cfg.Instruments)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(cfg, registry, quotes, rates, notifier, nil, zerolog.Nop())
	svc.now = func() time.Time {
		return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestSummaryRecordsAndDelivers(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2441.00), Open: dec(2430.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	// GBPUSD quotes USD per GBP; the service inverts to GBP per USD.
	rates := &staticRateFetcher{rate: dec(1.3245)}
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, quotes, rates, notifier)

	if err := svc.Summary(context.Background()); err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("want one digest delivery, got %d", len(notifier.sent))
	}
	digest := notifier.sent[0]
	if !strings.Contains(digest, "Daily Investment Summary") {
		t.Fatalf("digest header missing:\n%s", digest)
	}
	// 2441.00 / 1.3245 = 1842.96 GBP.
	if !strings.Contains(digest, "£1842.96") {
		t.Fatalf("converted gold price missing:\n%s", digest)
	}
	// 842 pence = £8.42, no FX applied.
	if !strings.Contains(digest, "£8.42") {
		t.Fatalf("minor-unit price missing:\n%s", digest)
	}

	// Both samples must land in the persisted history.
	hist := history.Load(filepath.Join(cfg.Storage.DataDir, cfg.Storage.HistoryFile), 90, zerolog.Nop())
	if got := len(hist.Window("gold_gbp")); got != 1 {
		t.Fatalf("gold history not recorded: %d samples", got)
	}
	if got := len(hist.Window("iswd")); got != 1 {
		t.Fatalf("iswd history not recorded: %d samples", got)
	}
}

func TestSummarySiblingIsolation(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{
		quotes: map[string]fetcher.Quote{
			"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
		},
		errs: map[string]error{"GC=F": fmt.Errorf("GC=F: %w", fetcher.ErrNoData)},
	}
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, quotes, &staticRateFetcher{rate: dec(1.3245)}, notifier)

	err := svc.Summary(context.Background())
	if err == nil {
		t.Fatal("partial failure must surface in the aggregate error")
	}
	if !errors.Is(err, fetcher.ErrNoData) {
		t.Fatalf("aggregate should wrap the fetch failure, got %v", err)
	}

	// The digest still went out and lists the broken instrument.
	if len(notifier.sent) != 1 {
		t.Fatalf("digest must still be delivered, got %d deliveries", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0], "Gold: data unavailable") {
		t.Fatalf("failed instrument not listed:\n%s", notifier.sent[0])
	}
	if !strings.Contains(notifier.sent[0], "£8.42") {
		t.Fatalf("healthy sibling missing:\n%s", notifier.sent[0])
	}

	// The healthy sibling's sample was still recorded.
	hist := history.Load(filepath.Join(cfg.Storage.DataDir, cfg.Storage.HistoryFile), 90, zerolog.Nop())
	if got := len(hist.Window("iswd")); got != 1 {
		t.Fatalf("healthy sibling not recorded: %d samples", got)
	}
	if got := len(hist.Window("gold_gbp")); got != 0 {
		t.Fatalf("failed instrument must not be recorded: %d samples", got)
	}
}

func TestSummaryMissingRateSkipsConvertingOnly(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2441.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, quotes, &staticRateFetcher{err: errors.New("fx down")}, notifier)

	err := svc.Summary(context.Background())
	if err == nil {
		t.Fatal("skipped converting instrument must surface in the aggregate error")
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("digest must still be delivered, got %d", len(notifier.sent))
	}
	out := notifier.sent[0]
	if !strings.Contains(out, "Gold: data unavailable") {
		t.Fatalf("converting instrument should be unavailable without a rate:\n%s", out)
	}
	if !strings.Contains(out, "£8.42") {
		t.Fatalf("same-currency instrument should still report:\n%s", out)
	}
}

func TestWatchFiresOnceAcrossPasses(t *testing.T) {
	cfg := testConfig(t)
	// Open 2430 -> last 2475 is a +1.85% move over the 1.5% threshold.
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2475.00), Open: dec(2430.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	rates := &staticRateFetcher{rate: dec(1.3245)}
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, quotes, rates, notifier)

	if err := svc.Watch(context.Background()); err != nil {
		t.Fatalf("first Watch: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("first pass should deliver one alert, got %d", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0], "SPIKE Gold") {
		t.Fatalf("spike missing:\n%s", notifier.sent[0])
	}

	// A second pass in the same day sees the persisted state and stays quiet.
	svc2 := newTestService(t, cfg, quotes, rates, notifier)
	if err := svc2.Watch(context.Background()); err != nil {
		t.Fatalf("second Watch: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("second pass must not re-fire, got %d deliveries", len(notifier.sent))
	}
}

func TestWatchStatePersistedBeforeDelivery(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2475.00), Open: dec(2430.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	rates := &staticRateFetcher{rate: dec(1.3245)}

	broken := &recordingNotifier{err: errors.New("telegram down")}
	svc := newTestService(t, cfg, quotes, rates, broken)

	if err := svc.Watch(context.Background()); err == nil {
		t.Fatal("failed delivery must surface")
	}

	// The firing was recorded anyway: the next pass does not retry it.
	healthy := &recordingNotifier{}
	svc2 := newTestService(t, cfg, quotes, rates, healthy)
	if err := svc2.Watch(context.Background()); err != nil {
		t.Fatalf("second Watch: %v", err)
	}
	if len(healthy.sent) != 0 {
		t.Fatalf("fired means evaluated, not delivered; got %d deliveries", len(healthy.sent))
	}
}

func TestWatchQuietPassDeliversNothing(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2431.00), Open: dec(2430.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, quotes, &staticRateFetcher{rate: dec(1.3245)}, notifier)

	if err := svc.Watch(context.Background()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("no events means no delivery, got %d", len(notifier.sent))
	}
}

func TestProbe(t *testing.T) {
	cfg := testConfig(t)
	notifier := &recordingNotifier{}
	svc := newTestService(t, cfg, &staticQuoteFetcher{}, &staticRateFetcher{}, notifier)

	if err := svc.Probe(context.Background(), "investwatcher"); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], "test message") {
		t.Fatalf("probe payload wrong: %v", notifier.sent)
	}
}

func TestProbeWithoutNotifier(t *testing.T) {
	cfg := testConfig(t)
	registry, err := instrument.NewRegistry(cfg.Instruments)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(cfg, registry, &staticQuoteFetcher{}, &staticRateFetcher{}, nil, nil, zerolog.Nop())

	if err := svc.Probe(context.Background(), "investwatcher"); err == nil {
		t.Fatal("probe without a channel must fail")
	}
}

func TestSummaryWithoutNotifierDropsPayload(t *testing.T) {
	cfg := testConfig(t)
	quotes := &staticQuoteFetcher{quotes: map[string]fetcher.Quote{
		"GC=F":   {Last: dec(2441.00), Currency: "USD"},
		"ISWD.L": {Last: dec(842.0), Currency: "GBp"},
	}}
	registry, err := instrument.NewRegistry(cfg.Instruments)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(cfg, registry, quotes, &staticRateFetcher{rate: dec(1.3245)}, nil, nil, zerolog.Nop())

	// No channel configured: the pass still records history and succeeds.
	if err := svc.Summary(context.Background()); err != nil {
		t.Fatalf("Summary without notifier: %v", err)
	}
}
