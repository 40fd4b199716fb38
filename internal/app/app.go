package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"invest-watcher/internal/alerting"
	"invest-watcher/internal/config"
	"invest-watcher/internal/fetcher"
	"invest-watcher/internal/instrument"
	"invest-watcher/internal/scheduler"
	"invest-watcher/internal/service"
	"invest-watcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRegistry() (*instrument.Registry, error) {
	return instrument.NewRegistry(a.Config.Instruments)
}

func (a *App) newFetcher() *fetcher.Yahoo {
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:   a.Config.Fetch.BaseURL,
		Timeout:   a.Config.Fetch.RequestTimeout,
		UserAgent: a.Config.Fetch.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerts.Telegram.Enabled {
		cfg := a.Config.Alerts.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger)
	}
	return nil
}

func (a *App) openArchive(ctx context.Context) (*storage.Archive, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	archive := storage.NewArchive(pool)
	return archive, archive.Close, nil
}

// buildService wires a per-command service instance.
func (a *App) buildService(ctx context.Context) (*service.Service, func(), error) {
	registry, err := a.newRegistry()
	if err != nil {
		return nil, nil, err
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if archive == nil {
		a.Logger.Debug().Msg("database.dsn not configured; archive mirroring disabled")
	}

	yahoo := a.newFetcher()
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("telegram disabled; payloads will be logged and dropped")
	}

	svc := service.New(a.Config, registry, yahoo, yahoo, notifier, archive, a.Logger)

	closer := func() {
		if closeArchive != nil {
			closeArchive()
		}
	}
	return svc, closer, nil
}

// Summary executes the daily-digest pass.
func (a *App) Summary(ctx context.Context) error {
	svc, closer, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().Msg("running daily summary pass")
	return svc.Summary(ctx)
}

// Watch executes the intraday alert pass.
func (a *App) Watch(ctx context.Context) error {
	svc, closer, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().Msg("running intraday watch pass")
	return svc.Watch(ctx)
}

// Test sends the fixed probe message to verify the notification channel.
func (a *App) Test(ctx context.Context) error {
	svc, closer, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	return svc.Probe(ctx, a.Config.App.Name)
}

// Run executes watch passes on the in-process scheduler until interrupted,
// for deployments without cron.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch loop")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return svc.Watch(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Instrument string
	Limit      int
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Instrument string
	From       *time.Time
	To         *time.Time
	CSVPath    string
	PNGPath    string
	MaxPoints  int
}
