package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/alerting"
	"invest-watcher/internal/config"
	"invest-watcher/internal/fetcher"
	"invest-watcher/internal/fx"
	"invest-watcher/internal/history"
	"invest-watcher/internal/instrument"
	"invest-watcher/internal/report"
	"invest-watcher/internal/storage"
	"invest-watcher/internal/trend"
)

var one = decimal.NewFromInt(1)

// Service orchestrates the one-shot passes: fetch, convert, record, evaluate,
// format, deliver. Each pass runs start to finish under the advisory lock;
// no instrument's failure aborts its siblings.
type Service struct {
	registry  *instrument.Registry
	quotes    fetcher.QuoteFetcher
	rates     fetcher.RateFetcher
	notifier  alerting.Notifier
	archive   *storage.Archive
	evaluator *alerting.Evaluator
	trends    trend.Calculator
	formatter report.Formatter
	logger    zerolog.Logger

	historyPath string
	statePath   string
	lockPath    string
	historyDays int
	fxPair      string
	fxInvert    bool
	location    *time.Location

	now func() time.Time
}

// New constructs the service. Notifier and archive may be nil; delivery and
// long-horizon mirroring are then disabled.
func New(cfg *config.Config, registry *instrument.Registry, quotes fetcher.QuoteFetcher, rates fetcher.RateFetcher, notifier alerting.Notifier, archive *storage.Archive, logger zerolog.Logger) *Service {
	rules := alerting.Rules{
		DefaultThresholdPct: decimal.NewFromFloat(cfg.Alerts.DefaultThresholdPct),
		ThresholdsPct:       make(map[string]decimal.Decimal, len(cfg.Alerts.Thresholds)),
		Levels:              make(map[string]alerting.Level, len(cfg.Alerts.Levels)),
	}
	for key, pct := range cfg.Alerts.Thresholds {
		rules.ThresholdsPct[key] = decimal.NewFromFloat(pct)
	}
	for key, level := range cfg.Alerts.Levels {
		var l alerting.Level
		if level.Above != nil {
			above := decimal.NewFromFloat(*level.Above)
			l.Above = &above
		}
		if level.Below != nil {
			below := decimal.NewFromFloat(*level.Below)
			l.Below = &below
		}
		rules.Levels[key] = l
	}

	dataDir := cfg.Storage.DataDir
	return &Service{
		registry:    registry,
		quotes:      quotes,
		rates:       rates,
		notifier:    notifier,
		archive:     archive,
		evaluator:   alerting.NewEvaluator(rules, logger),
		trends:      trend.NewCalculator(cfg.Trends.ShortDays, cfg.Trends.LongDays),
		formatter:   report.NewFormatter(cfg.FX.ReportingCurrency, cfg.Trends.ShortDays, cfg.Trends.LongDays),
		logger:      logger.With().Str("component", "service").Logger(),
		historyPath: filepath.Join(dataDir, cfg.Storage.HistoryFile),
		statePath:   filepath.Join(dataDir, cfg.Storage.StateFile),
		lockPath:    filepath.Join(dataDir, ".investwatcher.lock"),
		historyDays: cfg.Storage.HistoryDays,
		fxPair:      cfg.FX.Pair,
		fxInvert:    cfg.FX.Invert,
		location:    cfg.Location(),
		now:         time.Now,
	}
}

// Summary runs the daily-digest pass: fetch every instrument, record today's
// samples into the rolling history, compute trends, and deliver the digest.
// Partial failures are reported in the returned aggregate error after the
// digest has been assembled, persisted, and delivered.
func (s *Service) Summary(ctx context.Context) error {
	lock, err := storage.AcquireLock(s.lockPath)
	if err != nil {
		return fmt.Errorf("acquire pass lock: %w", err)
	}
	defer lock.Release()

	now := s.now().In(s.location)
	rate := s.fetchRate(ctx)
	hist := history.Load(s.historyPath, s.historyDays, s.logger)

	var failures []error
	entries := make([]report.DigestEntry, 0, s.registry.Len())

	for _, inst := range s.registry.All() {
		price, _, err := s.observe(ctx, inst, rate)
		if err != nil {
			s.logger.Error().Err(err).Str("instrument", inst.Key).Msg("instrument skipped")
			entries = append(entries, report.DigestEntry{Instrument: inst, Err: err})
			failures = append(failures, err)
			continue
		}

		trends := s.trends.Trends(hist.Window(inst.Key), now, price)
		entries = append(entries, report.DigestEntry{Instrument: inst, Price: price, Trends: trends})

		var usedRate *decimal.Decimal
		if inst.Convert {
			usedRate = rate
		}
		hist.RecordDaily(inst.Key, now, price, usedRate)
		s.mirrorSample(ctx, inst.Key, now, price, usedRate)
	}

	if err := hist.Save(s.historyPath); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist history")
		failures = append(failures, err)
	} else {
		s.logger.Info().Str("date", history.Day(now).Format(history.DateLayout)).Msg("history saved")
	}

	digest := s.formatter.Digest(now, entries, rate, s.fxPair)
	if err := s.deliver(ctx, digest); err != nil {
		failures = append(failures, err)
	}

	return errors.Join(failures...)
}

// Watch runs the intraday pass: evaluate move and level alerts for every
// instrument, persist the fired-today state, then deliver any events. State is
// saved before delivery, so "fired" means evaluated, not delivered.
func (s *Service) Watch(ctx context.Context) error {
	lock, err := storage.AcquireLock(s.lockPath)
	if err != nil {
		return fmt.Errorf("acquire pass lock: %w", err)
	}
	defer lock.Release()

	now := s.now().In(s.location)
	rate := s.fetchRate(ctx)
	state := alerting.LoadState(s.statePath, s.logger)

	var failures []error
	var events []alerting.Event

	for _, inst := range s.registry.All() {
		last, open, err := s.observe(ctx, inst, rate)
		if err != nil {
			s.logger.Error().Err(err).Str("instrument", inst.Key).Msg("instrument skipped")
			failures = append(failures, err)
			continue
		}

		obs := alerting.Observation{Instrument: inst, Date: now, Last: last, Open: open}
		events = append(events, s.evaluator.Evaluate(state, obs)...)
	}

	if err := state.Save(s.statePath, now); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist alert state")
		failures = append(failures, err)
	}

	if len(events) == 0 {
		s.logger.Info().Msg("no new alerts")
		return errors.Join(failures...)
	}

	payload := s.formatter.Alerts(now, events)
	if err := s.deliver(ctx, payload); err != nil {
		failures = append(failures, err)
	}

	return errors.Join(failures...)
}

// Probe sends the fixed connectivity test message, bypassing evaluation.
func (s *Service) Probe(ctx context.Context, appName string) error {
	if s.notifier == nil {
		return errors.New("no notification channel configured")
	}
	return s.notifier.Notify(ctx, s.formatter.Probe(s.now().In(s.location), appName))
}

// History exposes the current persisted window for the show/export surfaces.
func (s *Service) History() *history.Store {
	return history.Load(s.historyPath, s.historyDays, s.logger)
}

// observe fetches one instrument's quote and converts last and session open
// into the reporting currency. A missing or unconvertible open degrades to
// zero; the evaluator then captures the reference from the last price.
func (s *Service) observe(ctx context.Context, inst instrument.Instrument, rate *decimal.Decimal) (last, open decimal.Decimal, err error) {
	quote, err := s.quotes.FetchQuote(ctx, inst.Ticker)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("fetch %s: %w", inst.Ticker, err)
	}

	last, err = fx.Convert(inst, quote.Last, rate)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}

	if quote.Open.IsPositive() {
		if converted, openErr := fx.Convert(inst, quote.Open, rate); openErr == nil {
			open = converted
		}
	}
	return last, open, nil
}

// fetchRate resolves the native-to-reporting FX rate. Failure is not fatal to
// the pass: converting instruments will then skip with a ConversionError while
// same-currency instruments proceed.
func (s *Service) fetchRate(ctx context.Context) *decimal.Decimal {
	if s.rates == nil || s.fxPair == "" {
		return nil
	}
	quoted, err := s.rates.FetchRate(ctx, s.fxPair)
	if err != nil {
		s.logger.Warn().Err(err).Str("pair", s.fxPair).Msg("fx rate unavailable, converting instruments will be skipped")
		return nil
	}
	if s.fxInvert {
		if quoted.IsZero() {
			s.logger.Warn().Str("pair", s.fxPair).Msg("fx rate is zero, cannot invert")
			return nil
		}
		quoted = one.Div(quoted)
	}
	return &quoted
}

func (s *Service) mirrorSample(ctx context.Context, key string, date time.Time, price decimal.Decimal, rate *decimal.Decimal) {
	if s.archive == nil {
		return
	}
	sample := storage.ArchivedSample{
		InstrumentKey: key,
		Date:          history.Day(date),
		Price:         price,
		FXRate:        rate,
	}
	if err := s.archive.UpsertDailyPrice(ctx, sample); err != nil {
		s.logger.Error().Err(err).Str("instrument", key).Msg("archive mirror failed")
	}
}

func (s *Service) deliver(ctx context.Context, text string) error {
	if s.notifier == nil {
		s.logger.Warn().Msg("no notification channel configured, payload dropped")
		return nil
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Error().Err(err).Msg("delivery failed")
		return fmt.Errorf("deliver payload: %w", err)
	}
	return nil
}
