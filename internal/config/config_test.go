package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const sampleTOML = `
mode = "monitor"
log_level = "debug"

[detector]
min_spread = 0.03

[trading]
max_position_size = 25
disabled_venues = ["polymarket"]
lock_ttl = "45s"

[[pairs]]
id = "btc-100k"
kalshi_ticker = "KXBTC-100K"
poly_yes_asset = "111"
poly_no_asset = "222"

[redis]
enabled = true
password = "hunter2"
summary_interval = "250ms"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 0.03, cfg.Detector.MinSpread)
	assert.Equal(t, 256, cfg.Detector.AlertBuffer)
	assert.Equal(t, 25.0, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 0.01, cfg.Trading.MaxSlippage)
	assert.Equal(t, 45*time.Second, cfg.Trading.LockTTL.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.SummaryInterval.Duration)
	assert.Equal(t, "arb", cfg.Redis.KeyPrefix)
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "KXBTC-100K", cfg.Pairs[0].KalshiTicker)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARB_MODE", "full")
	t.Setenv("ARB_DETECTOR_MIN_SPREAD", "0.05")
	t.Setenv("ARB_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ARB_TRADING_LOCK_TTL", "not-a-duration")
	t.Setenv("ARB_SERVER_PORT", "9090")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 0.05, cfg.Detector.MinSpread)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Trading.LockTTL.Duration, "unparsable values are ignored")
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "monitor defaults",
			mutate: func(c *Config) { c.Mode = "monitor" },
		},
		{
			name: "full mode needs executor urls",
			want: []string{
				"venues.kalshi: executor_url is required in full mode",
				"venues.polymarket: executor_url is required in full mode",
			},
		},
		{
			name: "full mode with executors",
			mutate: func(c *Config) {
				c.Venues.Kalshi.ExecutorURL = "http://kalshi-proxy"
				c.Venues.Polymarket.ExecutorURL = "http://poly-proxy"
			},
		},
		{
			name: "collects every problem",
			mutate: func(c *Config) {
				c.Mode = "backtest"
				c.Detector.MinSpread = 0
				c.Trading.MaxSlippage = 2
				c.Trading.DisabledVenues = []string{"binance"}
				c.Feed.Source = "file"
			},
			want: []string{
				`unknown mode "backtest"`,
				"detector: min_spread must be within (0, 1)",
				"trading: max_slippage must be within [0, 1]",
				`trading: unknown venue "binance"`,
				`feed: unknown source "file"`,
			},
		},
		{
			name: "bad pairs",
			mutate: func(c *Config) {
				c.Mode = "monitor"
				c.Pairs = []PairConfig{
					{ID: "a", KalshiTicker: "K", PolyYesAsset: "1", PolyNoAsset: "2"},
					{ID: "a", KalshiTicker: "K", PolyYesAsset: "1", PolyNoAsset: "2"},
					{ID: "b"},
				}
			},
			want: []string{
				`pairs[1]: duplicate id "a"`,
				"pairs[2]: id, kalshi_ticker, poly_yes_asset and poly_no_asset are required",
			},
		},
		{
			name: "kafka source without topic",
			mutate: func(c *Config) {
				c.Mode = "monitor"
				c.Feed.Source = "kafka"
				c.Kafka.IngestTopic = ""
			},
			want: []string{"feed: kafka source requires kafka.brokers and kafka.ingest_topic"},
		},
		{
			name: "full mode with a disabled venue",
			mutate: func(c *Config) {
				c.Venues.Kalshi.Enabled = false
				c.Venues.Polymarket.ExecutorURL = "http://poly-proxy"
			},
			want: []string{"venues.kalshi: must be enabled in full mode"},
		},
		{
			name: "non-finite numbers",
			mutate: func(c *Config) {
				c.Mode = "monitor"
				c.Fees.PolymarketRate = math.NaN()
				c.Detector.MinSpread = math.NaN()
				c.Trading.MaxSlippage = math.NaN()
				c.Trading.MaxPositionSize = math.Inf(1)
				c.Trading.CooldownSeconds = math.NaN()
			},
			want: []string{
				"fees: rates must be >= 0",
				"detector: min_spread must be within (0, 1)",
				"trading: max_slippage must be within [0, 1]",
				"trading: max_position_size must be > 0",
				"trading: cooldown_seconds must be >= 0",
			},
		},
		{
			name: "half configured telegram",
			mutate: func(c *Config) {
				c.Mode = "monitor"
				c.Notify.TelegramToken = "token"
			},
			want: []string{"notify: telegram_token and telegram_chat_id must be set together"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestTradingSettings(t *testing.T) {
	tc := Defaults().Trading
	tc.DisabledVenues = []string{"kalshi"}

	s := tc.Settings()
	assert.False(t, s.PlatformEnabled[domain.VenueKalshi])
	assert.True(t, s.PlatformEnabled[domain.VenuePolymarket])
	assert.NoError(t, s.Validate())
}

func TestTradingSettingsFollowVenueConnections(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Venues.Polymarket.Enabled = false

	s := cfg.TradingSettings()
	assert.True(t, s.PlatformEnabled[domain.VenueKalshi])
	assert.False(t, s.PlatformEnabled[domain.VenuePolymarket])
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Venues.Kalshi.SignerSecret = "kalshi-secret"
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = "api"
	cfg.Notify.Events = []string{"partial_execution"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Venues.Kalshi.SignerSecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Venues.Polymarket.SignerSecret)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "kalshi-secret", cfg.Venues.Kalshi.SignerSecret)
	assert.Equal(t, "partial_execution", cfg.Notify.Events[0])
}
