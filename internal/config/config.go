package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"invest-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Logging     logging.Config     `mapstructure:"logging"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Fetch       FetchConfig        `mapstructure:"fetch"`
	FX          FXConfig           `mapstructure:"fx"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Alerts      AlertsConfig       `mapstructure:"alerts"`
	Trends      TrendsConfig       `mapstructure:"trends"`
	Scheduler   SchedulerConfig    `mapstructure:"scheduler"`
	Export      ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// StorageConfig locates the persisted history and alert-state files.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	HistoryFile string `mapstructure:"history_file"`
	StateFile   string `mapstructure:"state_file"`
	HistoryDays int    `mapstructure:"history_days"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FetchConfig covers quote API access.
type FetchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FXConfig names the exchange-rate pair used to normalise prices into the
// reporting currency. Invert is set when the quoted pair runs
// reporting-to-native (e.g. GBPUSD=X quoting USD per GBP while reporting GBP).
type FXConfig struct {
	Pair              string `mapstructure:"pair"`
	Invert            bool   `mapstructure:"invert"`
	ReportingCurrency string `mapstructure:"reporting_currency"`
}

// InstrumentConfig declares one tracked instrument.
type InstrumentConfig struct {
	Key       string `mapstructure:"key"`
	Ticker    string `mapstructure:"ticker"`
	Name      string `mapstructure:"name"`
	Currency  string `mapstructure:"currency"`
	Convert   bool   `mapstructure:"convert"`
	MinorUnit bool   `mapstructure:"minor_unit"`
	Unit      string `mapstructure:"unit"`
}

// AlertsConfig defines thresholds, price levels, and routing.
type AlertsConfig struct {
	DefaultThresholdPct float64                `mapstructure:"default_threshold_pct"`
	Thresholds          map[string]float64     `mapstructure:"thresholds"`
	Levels              map[string]LevelConfig `mapstructure:"levels"`
	Telegram            TelegramConfig         `mapstructure:"telegram"`
}

// LevelConfig carries the optional absolute price bounds for one instrument.
type LevelConfig struct {
	Above *float64 `mapstructure:"above"`
	Below *float64 `mapstructure:"below"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TrendsConfig sets the comparison horizons for the daily digest.
type TrendsConfig struct {
	ShortDays int `mapstructure:"short_days"`
	LongDays  int `mapstructure:"long_days"`
}

// SchedulerConfig governs the optional in-process watch loop.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVESTWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "investwatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Europe/London")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.history_file", "price_history.json")
	v.SetDefault("storage.state_file", "alerts_state.json")
	v.SetDefault("storage.history_days", 90)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("fetch.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("fetch.request_timeout", "15s")
	v.SetDefault("fetch.user_agent", "investwatcher/1.0")

	v.SetDefault("fx.pair", "GBPUSD=X")
	v.SetDefault("fx.invert", true)
	v.SetDefault("fx.reporting_currency", "GBP")

	v.SetDefault("alerts.default_threshold_pct", 2.0)
	v.SetDefault("alerts.telegram.enabled", false)
	v.SetDefault("alerts.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerts.telegram.request_timeout", "30s")

	v.SetDefault("trends.short_days", 5)
	v.SetDefault("trends.long_days", 22)

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument must be configured")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Key == "" {
			return fmt.Errorf("instruments[%d].key is required", i)
		}
		if inst.Ticker == "" {
			return fmt.Errorf("instrument %q: ticker is required", inst.Key)
		}
		if _, dup := seen[inst.Key]; dup {
			return fmt.Errorf("instrument key %q declared twice", inst.Key)
		}
		seen[inst.Key] = struct{}{}
	}

	if c.Storage.HistoryDays <= 0 {
		return fmt.Errorf("storage.history_days must be greater than zero")
	}
	if c.Trends.ShortDays <= 0 || c.Trends.LongDays <= 0 {
		return fmt.Errorf("trend horizons must be greater than zero")
	}
	if c.Alerts.DefaultThresholdPct < 0 {
		return fmt.Errorf("alerts.default_threshold_pct cannot be negative")
	}
	for key, pct := range c.Alerts.Thresholds {
		if pct < 0 {
			return fmt.Errorf("alerts.thresholds[%s] cannot be negative", key)
		}
	}
	for key, level := range c.Alerts.Levels {
		if level.Above != nil && level.Below != nil && *level.Below > *level.Above {
			return fmt.Errorf("alerts.levels[%s]: below bound exceeds above bound", key)
		}
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.Alerts.Telegram.Enabled {
		if c.Alerts.Telegram.BotToken == "" {
			return fmt.Errorf("alerts.telegram.bot_token 必须配置")
		}
		if c.Alerts.Telegram.ChatID == "" {
			return fmt.Errorf("alerts.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
