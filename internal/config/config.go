// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARB_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Fees     FeesConfig     `toml:"fees"`
	Detector DetectorConfig `toml:"detector"`
	Trading  TradingConfig  `toml:"trading"`
	Feed     FeedConfig     `toml:"feed"`
	Pairs    []PairConfig   `toml:"pairs"`
	Venues   VenuesConfig   `toml:"venues"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
}

// FeesConfig holds the venue fee schedule.
type FeesConfig struct {
	GeneralRate    float64  `toml:"general_rate"`
	MakerRate      float64  `toml:"maker_rate"`
	MakerMarkets   []string `toml:"maker_markets"`
	PolymarketRate float64  `toml:"polymarket_rate"`
}

// DetectorConfig tunes opportunity detection.
type DetectorConfig struct {
	MinSpread     float64 `toml:"min_spread"`
	PositionLimit float64 `toml:"position_limit"`
	AlertBuffer   int     `toml:"alert_buffer"`
}

// TradingConfig holds the initial trading settings. They can be changed at
// runtime through the operator API.
type TradingConfig struct {
	EnableTrading       bool     `toml:"enable_trading"`
	CooldownSeconds     float64  `toml:"cooldown_seconds"`
	MaxPositionSize     float64  `toml:"max_position_size"`
	MinProfitThreshold  float64  `toml:"min_profit_threshold"`
	MaxSlippage         float64  `toml:"max_slippage"`
	MaxConcurrentOrders int      `toml:"max_concurrent_orders"`
	DisabledVenues      []string `toml:"disabled_venues"`
	LockTTL             duration `toml:"lock_ttl"`
}

// Settings converts the startup values into engine settings.
func (t TradingConfig) Settings() domain.TradingSettings {
	s := domain.TradingSettings{
		EnableTrading:       t.EnableTrading,
		CooldownSeconds:     t.CooldownSeconds,
		MaxPositionSize:     t.MaxPositionSize,
		MinProfitThreshold:  t.MinProfitThreshold,
		MaxSlippage:         t.MaxSlippage,
		MaxConcurrentOrders: t.MaxConcurrentOrders,
		PlatformEnabled: map[domain.Venue]bool{
			domain.VenueKalshi:     true,
			domain.VenuePolymarket: true,
		},
	}
	for _, v := range t.DisabledVenues {
		s.PlatformEnabled[domain.Venue(v)] = false
	}
	return s
}

// TradingSettings is Trading.Settings with every venue whose connection is
// disabled also disabled for trading.
func (c *Config) TradingSettings() domain.TradingSettings {
	s := c.Trading.Settings()
	if !c.Venues.Kalshi.Enabled {
		s.PlatformEnabled[domain.VenueKalshi] = false
	}
	if !c.Venues.Polymarket.Enabled {
		s.PlatformEnabled[domain.VenuePolymarket] = false
	}
	return s
}

// FeedConfig selects where raw venue frames come from.
type FeedConfig struct {
	// Source is "ws" for direct venue WebSockets or "kafka" for frames
	// relayed through the ingest topic.
	Source     string `toml:"source"`
	FrameQueue int    `toml:"frame_queue"`
}

// PairConfig is one cross-venue market pair watched from startup.
type PairConfig struct {
	ID           string `toml:"id"`
	KalshiTicker string `toml:"kalshi_ticker"`
	PolyYesAsset string `toml:"poly_yes_asset"`
	PolyNoAsset  string `toml:"poly_no_asset"`
}

// VenuesConfig groups the per-venue connection settings.
type VenuesConfig struct {
	Kalshi     VenueConfig `toml:"kalshi"`
	Polymarket VenueConfig `toml:"polymarket"`
}

// VenueConfig holds the market-data and order endpoints of one venue.
type VenueConfig struct {
	Enabled     bool     `toml:"enabled"`
	WsURL       string   `toml:"ws_url"`
	ExecutorURL string   `toml:"executor_url"`
	Timeout     duration `toml:"timeout"`
	SignerKey   string   `toml:"signer_key"`
	// SignerSecret is the raw HMAC secret; EncryptedSecretPath plus
	// SecretPassword is the sealed alternative.
	SignerSecret        string `toml:"signer_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled         bool     `toml:"enabled"`
	Addr            string   `toml:"addr"`
	Password        string   `toml:"password"`
	DB              int      `toml:"db"`
	PoolSize        int      `toml:"pool_size"`
	MaxRetries      int      `toml:"max_retries"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	KeyPrefix       string   `toml:"key_prefix"`
	SummaryInterval duration `toml:"summary_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// KafkaConfig holds broker addresses and topic names.
type KafkaConfig struct {
	Enabled            bool     `toml:"enabled"`
	Brokers            []string `toml:"brokers"`
	IngestTopic        string   `toml:"ingest_topic"`
	IngestGroup        string   `toml:"ingest_group"`
	OpportunitiesTopic string   `toml:"opportunities_topic"`
	ExecutionsTopic    string   `toml:"executions_topic"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per RateWindow per client, enforced through
	// Redis; zero or a disabled Redis turns it off.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Fees: FeesConfig{
			GeneralRate: 0.07,
			MakerRate:   0.0175,
		},
		Detector: DetectorConfig{
			MinSpread:   0.02,
			AlertBuffer: 256,
		},
		Trading: TradingConfig{
			EnableTrading:       false,
			CooldownSeconds:     60,
			MaxPositionSize:     100,
			MinProfitThreshold:  0.02,
			MaxSlippage:         0.01,
			MaxConcurrentOrders: 2,
			LockTTL:             duration{30 * time.Second},
		},
		Feed: FeedConfig{
			Source:     "ws",
			FrameQueue: 1024,
		},
		Venues: VenuesConfig{
			Kalshi: VenueConfig{
				Enabled: true,
				WsURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
				Timeout: duration{10 * time.Second},
			},
			Polymarket: VenueConfig{
				Enabled: true,
				WsURL:   "wss://ws-subscriptions-clob.polymarket.com/ws/market",
				Timeout: duration{10 * time.Second},
			},
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			KeyPrefix:       "arb",
			SummaryInterval: duration{time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Kafka: KafkaConfig{
			Brokers:            []string{"localhost:9092"},
			IngestTopic:        "arb.frames",
			IngestGroup:        "arbbot",
			OpportunitiesTopic: "arb.opportunities",
			ExecutionsTopic:    "arb.executions",
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "arbbot-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"partial_execution", "emergency_shutdown"},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode. "monitor"
// detects and publishes opportunities without placing orders.
var validModes = map[string]bool{
	"full":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSources = map[string]bool{
	"ws":    true,
	"kafka": true,
}

var validVenues = map[string]bool{
	"kalshi":     true,
	"polymarket": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Fees
	if !nonNegative(c.Fees.GeneralRate) || !nonNegative(c.Fees.MakerRate) || !nonNegative(c.Fees.PolymarketRate) {
		errs = append(errs, "fees: rates must be >= 0")
	}

	// Detector
	if !finite(c.Detector.MinSpread) || c.Detector.MinSpread <= 0 || c.Detector.MinSpread >= 1 {
		errs = append(errs, fmt.Sprintf("detector: min_spread must be within (0, 1), got %g", c.Detector.MinSpread))
	}
	if !nonNegative(c.Detector.PositionLimit) {
		errs = append(errs, "detector: position_limit must be >= 0")
	}
	if c.Detector.AlertBuffer < 1 {
		errs = append(errs, "detector: alert_buffer must be >= 1")
	}

	// Trading
	if !unitRange(c.Trading.MinProfitThreshold) {
		errs = append(errs, "trading: min_profit_threshold must be within [0, 1]")
	}
	if !unitRange(c.Trading.MaxSlippage) {
		errs = append(errs, "trading: max_slippage must be within [0, 1]")
	}
	if !nonNegative(c.Trading.CooldownSeconds) {
		errs = append(errs, "trading: cooldown_seconds must be >= 0")
	}
	if !finite(c.Trading.MaxPositionSize) || c.Trading.MaxPositionSize <= 0 {
		errs = append(errs, "trading: max_position_size must be > 0")
	}
	if c.Trading.MaxConcurrentOrders < 1 {
		errs = append(errs, "trading: max_concurrent_orders must be >= 1")
	}
	for _, v := range c.Trading.DisabledVenues {
		if !validVenues[v] {
			errs = append(errs, fmt.Sprintf("trading: unknown venue %q in disabled_venues", v))
		}
	}

	// Feed
	if !validSources[c.Feed.Source] {
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: ws, kafka)", c.Feed.Source))
	}
	if c.Feed.Source == "kafka" && (len(c.Kafka.Brokers) == 0 || c.Kafka.IngestTopic == "") {
		errs = append(errs, "feed: kafka source requires kafka.brokers and kafka.ingest_topic")
	}

	// Pairs
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.ID == "" || p.KalshiTicker == "" || p.PolyYesAsset == "" || p.PolyNoAsset == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: id, kalshi_ticker, poly_yes_asset and poly_no_asset are required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("pairs[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}

	// Venues
	if strings.EqualFold(c.Mode, "full") {
		for name, v := range map[string]VenueConfig{"kalshi": c.Venues.Kalshi, "polymarket": c.Venues.Polymarket} {
			if !v.Enabled {
				errs = append(errs, fmt.Sprintf("venues.%s: must be enabled in full mode (use monitor mode or trading.disabled_venues)", name))
			}
			if v.Enabled && v.ExecutorURL == "" {
				errs = append(errs, fmt.Sprintf("venues.%s: executor_url is required in full mode", name))
			}
			if v.EncryptedSecretPath != "" && v.SecretPassword == "" {
				errs = append(errs, fmt.Sprintf("venues.%s: secret_password is required when encrypted_secret_path is set", name))
			}
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.SummaryInterval.Duration <= 0 {
			errs = append(errs, "redis: summary_interval must be > 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka: brokers must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}

func unitRange(v float64) bool {
	return finite(v) && v >= 0 && v <= 1
}
