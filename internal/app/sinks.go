package app

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// sinks fans opportunities and execution results out to every configured
// downstream (notifier, Redis bus, Kafka). A failing sink is logged and
// never blocks the others.
type sinks struct {
	alerts []domain.AlertPublisher
	execs  []domain.ExecutionPublisher
	logger *slog.Logger
}

var (
	_ domain.AlertPublisher     = (*sinks)(nil)
	_ domain.ExecutionPublisher = (*sinks)(nil)
)

func newSinks(logger *slog.Logger) *sinks {
	return &sinks{logger: logger.With(slog.String("component", "sinks"))}
}

func (s *sinks) addAlerts(p domain.AlertPublisher) { s.alerts = append(s.alerts, p) }

func (s *sinks) addExecutions(p domain.ExecutionPublisher) { s.execs = append(s.execs, p) }

// PublishOpportunity always returns nil; failures are logged per sink.
func (s *sinks) PublishOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	for _, p := range s.alerts {
		if err := p.PublishOpportunity(ctx, opp); err != nil {
			s.logger.WarnContext(ctx, "publish opportunity failed",
				slog.String("pair_id", opp.Pair.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// PublishExecution always returns nil; failures are logged per sink.
func (s *sinks) PublishExecution(ctx context.Context, res domain.ExecutionResult) error {
	for _, p := range s.execs {
		if err := p.PublishExecution(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "publish execution failed",
				slog.String("execution_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// dispatchAlerts moves detector alerts to the engine first and then to the
// alert sinks, so slow sinks never delay an execution. engine may be nil.
func dispatchAlerts(ctx context.Context, alerts <-chan domain.ArbitrageOpportunity, engine chan<- domain.ArbitrageOpportunity, pub domain.AlertPublisher) error {
	if engine != nil {
		defer close(engine)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp := <-alerts:
			if engine != nil {
				select {
				case engine <- opp:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			_ = pub.PublishOpportunity(ctx, opp)
		}
	}
}
