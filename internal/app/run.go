package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
)

// runPipeline starts the sources, the router (single writer of every book),
// the alert dispatcher, the trading engine, the periodic publishers and the
// HTTP server. In monitor mode there is no engine and alerts only reach the
// sinks.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pipeline",
		slog.Int("sources", len(deps.Sources)),
		slog.Bool("trading", deps.Engine != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	frames := make(chan feed.Frame, a.cfg.Feed.FrameQueue)
	for _, src := range deps.Sources {
		g.Go(func() error {
			return src.Run(ctx, frames)
		})
	}
	g.Go(func() error {
		return deps.Router.Run(ctx, frames)
	})

	var engineCh chan domain.ArbitrageOpportunity
	if deps.Engine != nil {
		engineCh = make(chan domain.ArbitrageOpportunity, a.cfg.Detector.AlertBuffer)
		g.Go(func() error {
			return deps.Engine.Run(ctx, engineCh)
		})
	}
	g.Go(func() error {
		return dispatchAlerts(ctx, deps.Detector.Alerts(), engineCh, deps.Sinks)
	})

	if deps.Summaries != nil {
		g.Go(func() error {
			a.publishSummaries(ctx, deps)
			return nil
		})
	}
	if deps.Archiver != nil && deps.Journal != nil {
		g.Go(func() error {
			a.exportJournal(ctx, deps)
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// publishSummaries periodically copies every ready book summary to Redis.
// Reads are lock-free snapshots, so this never contends with the router.
func (a *App) publishSummaries(ctx context.Context, deps *Dependencies) {
	ticker := time.NewTicker(a.cfg.Redis.SummaryInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summaries := deps.Books.Summaries()
			if len(summaries) == 0 {
				continue
			}
			if err := deps.Summaries.PutSummaries(ctx, summaries); err != nil {
				a.logger.WarnContext(ctx, "summary publish failed",
					slog.Int("books", len(summaries)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// exportJournal writes the executions of each interval to object storage.
func (a *App) exportJournal(ctx context.Context, deps *Dependencies) {
	interval := a.cfg.S3.ArchiveInterval.Duration
	since := time.Now().UTC().Add(-interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC()
			n, err := deps.Archiver.ExportJournal(ctx, since)
			if err != nil {
				a.logger.ErrorContext(ctx, "journal export failed",
					slog.Time("since", since),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "journal exported",
				slog.Int("executions", n),
				slog.Time("since", since),
			)
			since = cutoff
		}
	}
}

// startHTTPServer adds the operator API to the errgroup and shuts it down
// gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	health := handler.NewHealthHandler(a.base).WithFeed(deps.Router)
	for name, check := range deps.HealthChecks {
		health.WithCheck(name, check)
	}

	handlers := server.Handlers{
		Health:        health,
		Pairs:         handler.NewPairHandler(deps.Detector, deps.Audit, a.base),
		Books:         handler.NewBookHandler(deps.Books, deps.Summaries, a.base),
		Executions:    handler.NewExecutionHandler(deps.Journal, deps.Audit, a.base),
		Audit:         handler.NewAuditHandler(deps.Audit, a.base),
		Opportunities: handler.NewOpportunityHandler(nil, a.base),
	}
	if deps.AlertBus != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.AlertBus, a.base)
	}
	if deps.Engine != nil {
		handlers.Trading = handler.NewTradingHandler(deps.Engine, deps.Audit, a.base)
	} else {
		handlers.Trading = handler.NewTradingHandler(nil, deps.Audit, a.base)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.base)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
