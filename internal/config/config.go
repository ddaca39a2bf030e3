package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/adudulescu/stock-predictor/internal/strategy"
)

// Upstream providers.
const (
	ProviderYahoo     = "yahoo"
	ProviderRapidAPI  = "rapidapi"
	ProviderSynthetic = "synthetic"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// DefaultPath is used when neither --config nor CONFIG_PATH is given.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Symbols   []string `yaml:"symbols"`
	MinUpside float64  `yaml:"min_upside"`

	Upstream struct {
		Provider          string        `yaml:"provider"`
		YahooBaseURL      string        `yaml:"yahoo_base_url"`
		RapidAPIBaseURL   string        `yaml:"rapidapi_base_url"`
		RapidAPIHost      string        `yaml:"rapidapi_host"`
		RapidAPIKey       string        `yaml:"rapidapi_key"`
		Region            string        `yaml:"region"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
		MaxRetries        int           `yaml:"max_retries"`
		Timeout           time.Duration `yaml:"timeout"`
		HistoryDays       int           `yaml:"history_days"`
	} `yaml:"upstream"`

	Quota struct {
		DailyLimit int    `yaml:"daily_limit"`
		StateFile  string `yaml:"state_file"`
	} `yaml:"quota"`

	Cache struct {
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		KeyPrefix     string        `yaml:"key_prefix"`
		QuoteTTL      time.Duration `yaml:"quote_ttl"`
	} `yaml:"cache"`

	Predictor struct {
		Workers       int           `yaml:"workers"`
		PredictionTTL time.Duration `yaml:"prediction_ttl"`
		MinHistory    int           `yaml:"min_history"`
		HistoryDays   int           `yaml:"history_days"`
	} `yaml:"predictor"`

	Model strategy.Params `yaml:"model"`

	Database struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		URL        string `yaml:"url"`
	} `yaml:"database"`

	Schedule struct {
		CollectCron    string `yaml:"collect_cron"`
		ScanCron       string `yaml:"scan_cron"`
		QuotaResetCron string `yaml:"quota_reset_cron"`
		PruneCron      string `yaml:"prune_cron"`
		RetentionDays  int    `yaml:"retention_days"`
	} `yaml:"schedule"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Proxy string `yaml:"proxy"`
}

// ResolvePath picks the config file: explicit flag, then CONFIG_PATH, then
// DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads .env (if present), the YAML file (if present), applies
// environment overrides and fills defaults. It does not validate.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := newConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.Symbols = NormalizeSymbols(cfg.Symbols)
	return cfg, nil
}

// newConfig presets the fields where zero is a meaningful setting, so an
// explicit zero in the file survives: no upside floor, no retries, no daily
// limit, no prediction reuse, no pruning, no upstream history top-up.
func newConfig() *Config {
	c := &Config{Model: strategy.DefaultParams()}
	c.MinUpside = 10
	c.Upstream.RequestsPerSecond = 10
	c.Upstream.MaxRetries = 3
	c.Quota.DailyLimit = 500
	c.Predictor.PredictionTTL = time.Hour
	c.Predictor.MinHistory = 20
	c.Schedule.RetentionDays = 180
	return c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RAPIDAPI_KEY"); v != "" {
		c.Upstream.RapidAPIKey = v
	}
	if v := os.Getenv("RAPIDAPI_HOST"); v != "" {
		c.Upstream.RapidAPIHost = v
	}
	if v := os.Getenv("UPSTREAM_PROVIDER"); v != "" {
		c.Upstream.Provider = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("PREDICTOR_SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("DAILY_REQUEST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Quota.DailyLimit = n
		}
	}
	if v := os.Getenv("MIN_UPSIDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinUpside = f
		}
	}
}

// DefaultSymbols is the watch universe when none is configured.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META"}

func (c *Config) applyDefaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = append([]string(nil), DefaultSymbols...)
	}

	if c.Upstream.Provider == "" {
		if c.Upstream.RapidAPIKey != "" {
			c.Upstream.Provider = ProviderRapidAPI
		} else {
			c.Upstream.Provider = ProviderYahoo
		}
	}
	if c.Upstream.YahooBaseURL == "" {
		c.Upstream.YahooBaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Upstream.RapidAPIHost == "" {
		c.Upstream.RapidAPIHost = "apidojo-yahoo-finance-v1.p.rapidapi.com"
	}
	if c.Upstream.RapidAPIBaseURL == "" {
		c.Upstream.RapidAPIBaseURL = "https://" + c.Upstream.RapidAPIHost
	}
	if c.Upstream.Region == "" {
		c.Upstream.Region = "US"
	}
	if c.Upstream.Burst == 0 {
		c.Upstream.Burst = 1
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 30 * time.Second
	}
	if c.Upstream.HistoryDays == 0 {
		c.Upstream.HistoryDays = 90
	}

	if c.Quota.StateFile == "" {
		c.Quota.StateFile = "data/quota_state.json"
	}

	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "predictor"
	}
	if c.Cache.QuoteTTL == 0 {
		c.Cache.QuoteTTL = time.Hour
	}

	if c.Predictor.Workers == 0 {
		c.Predictor.Workers = 4
	}
	if c.Predictor.HistoryDays == 0 {
		c.Predictor.HistoryDays = 90
	}

	if c.Database.Driver == "" {
		if c.Database.URL != "" {
			c.Database.Driver = DriverPostgres
		} else {
			c.Database.Driver = DriverSQLite
		}
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stock_predictor.db"
	}

	if c.Schedule.CollectCron == "" {
		c.Schedule.CollectCron = "0 30 21 * * 1-5"
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 0 22 * * 1-5"
	}
	if c.Schedule.QuotaResetCron == "" {
		c.Schedule.QuotaResetCron = "0 0 0 * * *"
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 0 3 * * 0"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Upstream.Provider {
	case ProviderYahoo, ProviderSynthetic:
	case ProviderRapidAPI:
		if c.Upstream.RapidAPIKey == "" {
			return fmt.Errorf("upstream.rapidapi_key (RAPIDAPI_KEY) is required for provider %q", ProviderRapidAPI)
		}
	default:
		return fmt.Errorf("upstream.provider must be one of yahoo, rapidapi, synthetic, got %q", c.Upstream.Provider)
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must not be negative")
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("upstream.max_retries must not be negative")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverNone:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (DATABASE_URL) is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres, none, got %q", c.Database.Driver)
	}

	if c.Quota.DailyLimit < 0 {
		return fmt.Errorf("quota.daily_limit must not be negative")
	}
	if c.Predictor.Workers <= 0 {
		return fmt.Errorf("predictor.workers must be positive")
	}
	if c.Predictor.PredictionTTL < 0 || c.Cache.QuoteTTL < 0 {
		return fmt.Errorf("ttl values must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// TelegramEnabled reports whether push notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, keeping the
// first occurrence order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
