package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/fee"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
	"github.com/alanyoungcy/crossarb/internal/queue/kafka"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
	"github.com/alanyoungcy/crossarb/internal/trading"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core pipeline
	Books    *orderbook.Registry
	Detector *arbitrage.Detector
	Router   *feed.Router
	Sources  []feed.Source

	// Execution; nil in monitor mode
	Coordinator *executor.Coordinator
	Engine      *trading.Engine

	// Stores and caches; nil when the backing service is disabled
	Journal     domain.ExecutionStore
	Audit       domain.AuditLog
	AlertBus    *redis.AlertBus
	Summaries   domain.SummaryCache
	RateLimiter domain.RateLimiter
	Archiver    *s3blob.Archiver

	// Fan-out to notifier, Redis and Kafka
	Sinks    *sinks
	Notifier *notify.Notifier

	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Books:        orderbook.NewRegistry(),
		Sinks:        newSinks(logger),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Journal = postgres.NewExecutionStore(pgClient.Pool())
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	var locker domain.PairLocker
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.AlertBus = redis.NewAlertBus(redisClient)
		deps.Summaries = redis.NewSummaryCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		locker = redis.NewLockManager(redisClient)
		deps.Sinks.addAlerts(deps.AlertBus)
		deps.Sinks.addExecutions(deps.AlertBus)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:            cfg.Kafka.Brokers,
			OpportunitiesTopic: cfg.Kafka.OpportunitiesTopic,
			ExecutionsTopic:    cfg.Kafka.ExecutionsTopic,
		})
		if err != nil {
			return fail("kafka", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Sinks.addAlerts(pub)
		deps.Sinks.addExecutions(pub)
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Journal, deps.Audit)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Sinks.addAlerts(deps.Notifier)
	deps.Sinks.addExecutions(deps.Notifier)

	// --- Detection ---
	fees := fee.New(fee.Config{
		GeneralRate:    cfg.Fees.GeneralRate,
		MakerRate:      cfg.Fees.MakerRate,
		MakerMarkets:   cfg.Fees.MakerMarkets,
		PolymarketRate: cfg.Fees.PolymarketRate,
	})
	deps.Detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Calculator:    arbitrage.NewCalculator(fees),
		Books:         deps.Books,
		MinSpread:     cfg.Detector.MinSpread,
		PositionLimit: cfg.Detector.PositionLimit,
		SizeLimit:     engineSizeLimit(deps),
		AlertBuffer:   cfg.Detector.AlertBuffer,
		Logger:        logger,
	})
	for _, p := range cfg.Pairs {
		if err := deps.Detector.AddMarketPair(p.ID, p.KalshiTicker, p.PolyYesAsset, p.PolyNoAsset); err != nil {
			return fail("pairs", err)
		}
	}
	deps.Router = feed.NewRouter(deps.Books, deps.Detector, logger)

	// --- Execution ---
	if strings.EqualFold(cfg.Mode, "full") {
		kalshiExec, err := venueExecutor(domain.VenueKalshi, cfg.Venues.Kalshi)
		if err != nil {
			return fail("kalshi executor", err)
		}
		polyExec, err := venueExecutor(domain.VenuePolymarket, cfg.Venues.Polymarket)
		if err != nil {
			return fail("polymarket executor", err)
		}

		partials := []executor.PartialHandler{deps.Notifier}
		if deps.Archiver != nil {
			partials = append(partials, deps.Archiver)
		}
		deps.Coordinator = executor.NewCoordinator(executor.CoordinatorConfig{
			Kalshi:          kalshiExec,
			Polymarket:      polyExec,
			Journal:         deps.Journal,
			Publisher:       deps.Sinks,
			PartialHandlers: partials,
			Logger:          logger,
		})

		settings := cfg.TradingSettings()
		deps.Engine, err = trading.NewEngine(trading.Config{
			Executor:   deps.Coordinator,
			Settings:   &settings,
			Locker:     locker,
			LockTTL:    cfg.Trading.LockTTL.Duration,
			OnShutdown: onShutdown(deps.Notifier, deps.Audit, logger),
			Logger:     logger,
		})
		if err != nil {
			return fail("trading engine", err)
		}
	}

	// --- Sources ---
	sources, sourceClosers, err := buildSources(cfg, logger)
	if err != nil {
		return fail("feed sources", err)
	}
	closers = append(closers, sourceClosers...)
	deps.Sources = sources

	return deps, cleanup, nil
}

// engineSizeLimit sizes opportunities with the engine's live
// max_position_size. The engine is built after the detector, so it is read
// lazily; in monitor mode there is no engine and no cap.
func engineSizeLimit(deps *Dependencies) func() float64 {
	return func() float64 {
		if deps.Engine == nil {
			return 0
		}
		return deps.Engine.MaxPositionSize()
	}
}

// venueExecutor returns nil for a disabled venue; the coordinator then
// fails that leg.
func venueExecutor(venue domain.Venue, vc config.VenueConfig) (executor.VenueExecutor, error) {
	if !vc.Enabled {
		return nil, nil
	}
	signer, err := venueSigner(vc)
	if err != nil {
		return nil, err
	}
	return executor.NewHTTPExecutor(venue, vc.ExecutorURL, signer, vc.Timeout.Duration), nil
}

func venueSigner(vc config.VenueConfig) (*crypto.RequestSigner, error) {
	secret, err := crypto.LoadSecret(crypto.SecretSource{
		Raw:           vc.SignerSecret,
		EncryptedPath: vc.EncryptedSecretPath,
		Password:      vc.SecretPassword,
	})
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, nil
	}
	return &crypto.RequestSigner{Key: vc.SignerKey, Secret: secret}, nil
}

func onShutdown(n *notify.Notifier, audit domain.AuditLog, logger *slog.Logger) func(context.Context, string) {
	return func(ctx context.Context, reason string) {
		n.NotifyShutdown(ctx, reason)
		if audit == nil {
			return
		}
		if err := audit.Log(ctx, "trading.emergency_shutdown", map[string]any{"reason": reason}); err != nil {
			logger.ErrorContext(ctx, "audit emergency shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// buildSources returns the frame sources for the configured feed.
func buildSources(cfg *config.Config, logger *slog.Logger) ([]feed.Source, []func(), error) {
	if cfg.Feed.Source == "kafka" {
		src := feed.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.IngestTopic, cfg.Kafka.IngestGroup, logger)
		return []feed.Source{src}, []func(){func() { _ = src.Close() }}, nil
	}

	var tickers, assets []string
	for _, p := range cfg.Pairs {
		tickers = append(tickers, p.KalshiTicker)
		assets = append(assets, p.PolyYesAsset, p.PolyNoAsset)
	}

	var sources []feed.Source
	if vc := cfg.Venues.Kalshi; vc.Enabled && len(tickers) > 0 {
		header, err := wsHeader(vc)
		if err != nil {
			return nil, nil, err
		}
		src, err := feed.NewKalshiWSSource(vc.WsURL, header, tickers, logger)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	if vc := cfg.Venues.Polymarket; vc.Enabled && len(assets) > 0 {
		src, err := feed.NewPolymarketWSSource(vc.WsURL, assets, logger)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil, nil
}

// wsHeader signs the WebSocket upgrade request for the gateway in front of
// the venue, when a signer is configured.
func wsHeader(vc config.VenueConfig) (http.Header, error) {
	signer, err := venueSigner(vc)
	if err != nil || signer == nil {
		return nil, err
	}
	u, err := url.Parse(vc.WsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	header := http.Header{}
	for k, v := range signer.Headers(http.MethodGet, u.Path, nil) {
		header.Set(k, v)
	}
	return header, nil
}
