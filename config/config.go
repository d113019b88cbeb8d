package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-dashboard/internal/model"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration. Values come from the defaults,
// then an optional YAML file named by DASH_CONFIG, then environment variables.
type Config struct {
	// Listeners
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Storage: "sqlite", "redis" or "memory"
	StoreBackend  string `yaml:"store_backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	HistoryKeep   int    `yaml:"history_keep"`

	// Exchange feed
	RESTURL      string `yaml:"rest_url"`
	StreamURL    string `yaml:"stream_url"`
	StreamTicks  bool   `yaml:"stream_ticks"`
	FeedTimeout  string `yaml:"feed_timeout"`
	BarInterval  int    `yaml:"bar_interval"` // minutes
	BarLimit     int    `yaml:"bar_limit"`
	Watch        string `yaml:"watch"` // comma-separated SYMBOL or market:SYMBOL
	RefreshCron  string `yaml:"refresh_cron"`
	PruneCron    string `yaml:"prune_cron"`       // alert history
	PurgeCron    string `yaml:"cache_purge_cron"` // expired cache entries
	CacheTTL     string `yaml:"cache_ttl"`
	CoalesceWait string `yaml:"coalesce_wait"`

	// Indicators, e.g. "SMA:20,EMA:50,RSI:14,MACD,BB:20,STOCH:14,ADX:14"
	Indicators string `yaml:"indicators"`
	MACDSignal string `yaml:"macd_signal"` // simplified | smoothed
	StochD     string `yaml:"stoch_d"`     // simplified | smoothed

	// Notifications
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	WebhookURL     string `yaml:"webhook_url"`

	// Mutating REST calls need an X-OTP code when set.
	OTPSecret string `yaml:"otp_secret"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		MetricsAddr:  ":9090",
		StoreBackend: "sqlite",
		SQLitePath:   "data/alerts.db",
		RedisAddr:    "localhost:6379",
		HistoryKeep:  1000,
		RESTURL:      "https://api.binance.us/api/v3",
		StreamURL:    "wss://stream.binance.us:9443",
		StreamTicks:  true,
		FeedTimeout:  "10s",
		BarInterval:  60,
		BarLimit:     500,
		Watch:        "BTCUSDT,ETHUSDT",
		RefreshCron:  "0 * * * * *",
		PruneCron:    "0 0 3 * * *",
		PurgeCron:    "30 */5 * * * *",
		CacheTTL:     "5m",
		CoalesceWait: "1s",
		MACDSignal:   "simplified",
		StochD:       "simplified",
		LogLevel:     "info",
	}
}

// Load builds the configuration. A missing DASH_CONFIG file is not an error.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DASH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.StoreBackend, "STORE_BACKEND")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.RedisDB, "REDIS_DB")
	setInt(&c.HistoryKeep, "HISTORY_KEEP")
	setString(&c.RESTURL, "FEED_REST_URL")
	setString(&c.StreamURL, "FEED_STREAM_URL")
	setBool(&c.StreamTicks, "FEED_STREAM_TICKS")
	setString(&c.FeedTimeout, "FEED_TIMEOUT")
	setInt(&c.BarInterval, "BAR_INTERVAL")
	setInt(&c.BarLimit, "BAR_LIMIT")
	setString(&c.Watch, "WATCH")
	setString(&c.RefreshCron, "REFRESH_CRON")
	setString(&c.PruneCron, "PRUNE_CRON")
	setString(&c.PurgeCron, "CACHE_PURGE_CRON")
	setString(&c.CacheTTL, "CACHE_TTL")
	setString(&c.CoalesceWait, "COALESCE_WAIT")
	setString(&c.Indicators, "INDICATORS")
	setString(&c.MACDSignal, "MACD_SIGNAL")
	setString(&c.StochD, "STOCH_D")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.WebhookURL, "WEBHOOK_URL")
	setString(&c.OTPSecret, "OTP_SECRET")
	setString(&c.LogLevel, "LOG_LEVEL")
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("store_backend must be sqlite, redis or memory, got %q", c.StoreBackend)
	}
	if c.BarInterval <= 0 {
		return fmt.Errorf("bar_interval must be positive")
	}
	if c.BarLimit <= 0 {
		return fmt.Errorf("bar_limit must be positive")
	}
	for name, v := range map[string]string{
		"feed_timeout":  c.FeedTimeout,
		"cache_ttl":     c.CacheTTL,
		"coalesce_wait": c.CoalesceWait,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ParseWatch returns the watched "market:SYMBOL" keys. A bare symbol is a
// crypto symbol. Duplicates are dropped.
func (c *Config) ParseWatch() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, p := range strings.Split(c.Watch, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		market, symbol := model.MarketCrypto, p
		if i := strings.IndexByte(p, ':'); i >= 0 {
			market, symbol = strings.ToLower(p[:i]), p[i+1:]
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			log.Printf("[config] skipping invalid watch entry: %q", p)
			continue
		}
		k := model.Key(market, symbol)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Durations already passed Validate, so parse errors fall back to zero.

func (c *Config) FeedTimeoutDur() time.Duration  { return dur(c.FeedTimeout) }
func (c *Config) CacheTTLDur() time.Duration     { return dur(c.CacheTTL) }
func (c *Config) CoalesceWaitDur() time.Duration { return dur(c.CoalesceWait) }

func dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = n
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = b
}
