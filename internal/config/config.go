// Package config provides configuration management for the meta engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Trading defaults applied when the config file leaves them unset.
const (
	defaultTopNPicks         = 10
	defaultTopNTrades        = 3
	defaultContractsPerTrade = 5
	defaultStrikeOTMPct      = 0.05
	defaultMinDTE            = 5
	defaultMaxDTE            = 21
	defaultTakeProfitMult    = 3.0
	defaultStopLossPct       = 0.50
	defaultPartialProfitMult = 2.0
	defaultPartialProfitPct  = 0.50
	defaultPolygonRatePerSec = 5
	defaultRetentionDays     = 180
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Engines     EnginesConfig     `yaml:"engines"`
	Polygon     PolygonConfig     `yaml:"polygon"`
	Alpaca      AlpacaConfig      `yaml:"alpaca"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	X           XConfig           `yaml:"x"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Trading     TradingConfig     `yaml:"trading"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the runtime environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// EnginesConfig locates the upstream engines' result caches.
type EnginesConfig struct {
	PutsCacheDir     string `yaml:"puts_cache_dir"`
	MoonshotCacheDir string `yaml:"moonshot_cache_dir"`
	TopNPicks        int    `yaml:"top_n_picks"`
	// MaxCacheAge bounds how stale an engine pull may be before the
	// pre-flight check warns. Zero means 24h.
	MaxCacheAge time.Duration `yaml:"max_cache_age"`
}

// PolygonConfig defines the market data API settings.
type PolygonConfig struct {
	APIKey     string  `yaml:"api_key"`
	BaseURL    string  `yaml:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// AlpacaConfig defines the paper-trading broker settings.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// SMTPConfig defines email notification settings.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// TelegramConfig defines Telegram notification settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// XConfig defines the X (Twitter) OAuth 1.0a credentials.
type XConfig struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	AccessToken  string `yaml:"access_token"`
	AccessSecret string `yaml:"access_secret"`
	BearerToken  string `yaml:"bearer_token"`
}

// ScheduleConfig defines the twice-daily run schedule.
type ScheduleConfig struct {
	Timezone     string `yaml:"timezone"`      // e.g. "America/New_York"
	PremarketRun string `yaml:"premarket_run"` // "HH:MM", informational
	MorningRun   string `yaml:"morning_run"`   // "HH:MM"
	AfternoonRun string `yaml:"afternoon_run"` // "HH:MM"
}

// TradingConfig defines the paper-trade sizing and exit parameters.
type TradingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	TopNTrades        int     `yaml:"top_n_trades"`
	ContractsPerTrade int     `yaml:"contracts_per_trade"`
	StrikeOTMPct      float64 `yaml:"strike_otm_pct"`
	MinDTE            int     `yaml:"min_dte"`
	MaxDTE            int     `yaml:"max_dte"`
	TakeProfitMult    float64 `yaml:"take_profit_mult"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	PartialProfitMult float64 `yaml:"partial_profit_mult"`
	PartialProfitPct  float64 `yaml:"partial_profit_pct"`
}

// StorageConfig defines persistence settings.
type StorageConfig struct {
	DBPath        string `yaml:"db_path"`
	OutputDir     string `yaml:"output_dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// DashboardConfig defines the JSON API dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables so secrets stay out of the file
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Engines.TopNPicks <= 0 {
		c.Engines.TopNPicks = defaultTopNPicks
	}
	if c.Engines.MaxCacheAge <= 0 {
		c.Engines.MaxCacheAge = 24 * time.Hour
	}
	if c.Polygon.BaseURL == "" {
		c.Polygon.BaseURL = "https://api.polygon.io"
	}
	if c.Polygon.RatePerSec <= 0 {
		c.Polygon.RatePerSec = defaultPolygonRatePerSec
	}
	if c.Alpaca.BaseURL == "" {
		c.Alpaca.BaseURL = "https://paper-api.alpaca.markets/v2"
	}
	if c.Alpaca.DataURL == "" {
		c.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	// Normalize the Alpaca base URL to always include the /v2 prefix.
	c.Alpaca.BaseURL = strings.TrimRight(c.Alpaca.BaseURL, "/")
	if !strings.HasSuffix(c.Alpaca.BaseURL, "/v2") {
		c.Alpaca.BaseURL += "/v2"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if c.Schedule.PremarketRun == "" {
		c.Schedule.PremarketRun = "08:30"
	}
	if c.Schedule.MorningRun == "" {
		c.Schedule.MorningRun = "09:35"
	}
	if c.Schedule.AfternoonRun == "" {
		c.Schedule.AfternoonRun = "15:15"
	}
	if c.Trading.TopNTrades <= 0 {
		c.Trading.TopNTrades = defaultTopNTrades
	}
	if c.Trading.ContractsPerTrade <= 0 {
		c.Trading.ContractsPerTrade = defaultContractsPerTrade
	}
	if c.Trading.StrikeOTMPct <= 0 {
		c.Trading.StrikeOTMPct = defaultStrikeOTMPct
	}
	if c.Trading.MinDTE <= 0 {
		c.Trading.MinDTE = defaultMinDTE
	}
	if c.Trading.MaxDTE <= 0 {
		c.Trading.MaxDTE = defaultMaxDTE
	}
	if c.Trading.TakeProfitMult <= 0 {
		c.Trading.TakeProfitMult = defaultTakeProfitMult
	}
	if c.Trading.StopLossPct <= 0 {
		c.Trading.StopLossPct = defaultStopLossPct
	}
	if c.Trading.PartialProfitMult <= 0 {
		c.Trading.PartialProfitMult = defaultPartialProfitMult
	}
	if c.Trading.PartialProfitPct <= 0 {
		c.Trading.PartialProfitPct = defaultPartialProfitPct
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/meta_trades.db"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "output"
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = defaultRetentionDays
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = ":8750"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Engines.PutsCacheDir == "" {
		return fmt.Errorf("engines.puts_cache_dir is required")
	}
	if c.Engines.MoonshotCacheDir == "" {
		return fmt.Errorf("engines.moonshot_cache_dir is required")
	}
	if c.Engines.TopNPicks <= 0 {
		return fmt.Errorf("engines.top_n_picks must be > 0")
	}

	if c.Polygon.APIKey == "" {
		return fmt.Errorf("polygon.api_key is required")
	}

	if c.Trading.Enabled {
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required when trading is enabled")
		}
	}

	if c.Trading.MinDTE > c.Trading.MaxDTE {
		return fmt.Errorf("trading.min_dte (%d) must be <= trading.max_dte (%d)",
			c.Trading.MinDTE, c.Trading.MaxDTE)
	}
	if c.Trading.TakeProfitMult <= 1.0 {
		return fmt.Errorf("trading.take_profit_mult must be > 1.0")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1.0 {
		return fmt.Errorf("trading.stop_loss_pct must be in (0,1)")
	}
	if c.Trading.PartialProfitMult >= c.Trading.TakeProfitMult {
		return fmt.Errorf("trading.partial_profit_mult (%.1f) must be < trading.take_profit_mult (%.1f)",
			c.Trading.PartialProfitMult, c.Trading.TakeProfitMult)
	}
	if c.Trading.PartialProfitPct <= 0 || c.Trading.PartialProfitPct > 1.0 {
		return fmt.Errorf("trading.partial_profit_pct must be in (0,1]")
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q is invalid: %w", c.Schedule.Timezone, err)
	}
	for _, hhmm := range []string{c.Schedule.PremarketRun, c.Schedule.MorningRun, c.Schedule.AfternoonRun} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return fmt.Errorf("schedule time %q must be HH:MM: %w", hhmm, err)
		}
	}

	return nil
}

// SectionStatus reports whether each optional integration is configured.
// Used by the --check flag.
type SectionStatus struct {
	Name       string
	Configured bool
	Detail     string
}

// Status returns per-section configuration state for diagnostics.
func (c *Config) Status() []SectionStatus {
	return []SectionStatus{
		{"polygon", c.Polygon.APIKey != "", c.Polygon.BaseURL},
		{"alpaca", c.Alpaca.APIKey != "" && c.Alpaca.APISecret != "", c.Alpaca.BaseURL},
		{"smtp", c.SMTP.Host != "" && len(c.SMTP.To) > 0, c.SMTP.Host},
		{"telegram", c.Telegram.BotToken != "" && c.Telegram.ChatID != 0, ""},
		{"x", c.X.APIKey != "" && c.X.APISecret != "" && c.X.AccessToken != "" && c.X.AccessSecret != "", ""},
		{"dashboard", c.Dashboard.Enabled, c.Dashboard.Addr},
	}
}

// Location returns the configured schedule timezone. Validate has
// already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
