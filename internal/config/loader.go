package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "ARB_MODE")
	setStr(&cfg.LogLevel, "ARB_LOG_LEVEL")

	// ── Detector / trading ──
	setFloat64(&cfg.Detector.MinSpread, "ARB_DETECTOR_MIN_SPREAD")
	setFloat64(&cfg.Detector.PositionLimit, "ARB_DETECTOR_POSITION_LIMIT")
	setBool(&cfg.Trading.EnableTrading, "ARB_TRADING_ENABLE")
	setFloat64(&cfg.Trading.MaxPositionSize, "ARB_TRADING_MAX_POSITION_SIZE")
	setFloat64(&cfg.Trading.MinProfitThreshold, "ARB_TRADING_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Trading.MaxSlippage, "ARB_TRADING_MAX_SLIPPAGE")
	setFloat64(&cfg.Trading.CooldownSeconds, "ARB_TRADING_COOLDOWN_SECONDS")
	setInt(&cfg.Trading.MaxConcurrentOrders, "ARB_TRADING_MAX_CONCURRENT_ORDERS")
	setStringSlice(&cfg.Trading.DisabledVenues, "ARB_TRADING_DISABLED_VENUES")
	setDuration(&cfg.Trading.LockTTL, "ARB_TRADING_LOCK_TTL")
	setStr(&cfg.Feed.Source, "ARB_FEED_SOURCE")

	// ── Venues ──
	setStr(&cfg.Venues.Kalshi.WsURL, "ARB_KALSHI_WS_URL")
	setStr(&cfg.Venues.Kalshi.ExecutorURL, "ARB_KALSHI_EXECUTOR_URL")
	setStr(&cfg.Venues.Kalshi.SignerKey, "ARB_KALSHI_SIGNER_KEY")
	setStr(&cfg.Venues.Kalshi.SignerSecret, "ARB_KALSHI_SIGNER_SECRET")
	setStr(&cfg.Venues.Kalshi.EncryptedSecretPath, "ARB_KALSHI_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Venues.Kalshi.SecretPassword, "ARB_KALSHI_SECRET_PASSWORD")
	setStr(&cfg.Venues.Polymarket.WsURL, "ARB_POLYMARKET_WS_URL")
	setStr(&cfg.Venues.Polymarket.ExecutorURL, "ARB_POLYMARKET_EXECUTOR_URL")
	setStr(&cfg.Venues.Polymarket.SignerKey, "ARB_POLYMARKET_SIGNER_KEY")
	setStr(&cfg.Venues.Polymarket.SignerSecret, "ARB_POLYMARKET_SIGNER_SECRET")
	setStr(&cfg.Venues.Polymarket.EncryptedSecretPath, "ARB_POLYMARKET_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Venues.Polymarket.SecretPassword, "ARB_POLYMARKET_SECRET_PASSWORD")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARB_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "ARB_POSTGRES_RUN_MIGRATIONS")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "ARB_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "ARB_KAFKA_BROKERS")
	setStr(&cfg.Kafka.IngestTopic, "ARB_KAFKA_INGEST_TOPIC")
	setStr(&cfg.Kafka.IngestGroup, "ARB_KAFKA_INGEST_GROUP")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARB_S3_SECRET_KEY")
	setDuration(&cfg.S3.ArchiveInterval, "ARB_S3_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARB_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARB_SERVER_RATE_LIMIT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
