// Package notify pushes operator alerts to chat channels. Each alert is
// tagged with an event type so operators receive only what they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Event types understood by the notifier.
const (
	EventOpportunity       = "opportunity"
	EventExecution         = "execution"
	EventPartialExecution  = "partial_execution"
	EventEmergencyShutdown = "emergency_shutdown"
)

// Severity controls how a sender decorates a message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Message is one notification.
type Message struct {
	Title    string
	Body     string
	Severity Severity
}

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier dispatches to every registered Sender. Notify honours the
// allowed event set; NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be forwarded by Notify.
func (n *Notifier) Enabled(event string) bool {
	return len(n.senders) > 0 && (len(n.events) == 0 || n.events[event])
}

// Notify sends msg if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifyAll sends msg regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, msg Message) error {
	return n.dispatch(ctx, msg)
}

// PublishOpportunity lets the notifier act as an alert sink.
func (n *Notifier) PublishOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return n.Notify(ctx, EventOpportunity, Message{
		Title: fmt.Sprintf("Arbitrage %s %s/%s", opp.Pair.ID, opp.Direction, opp.Side),
		Body: fmt.Sprintf("spread %.4f on %.0f contracts (A %.4f, B %.4f)",
			opp.Spread, opp.ExecutionSize, opp.PriceA, opp.PriceB),
		Severity: SeverityInfo,
	})
}

// PublishExecution reports a completed execution.
func (n *Notifier) PublishExecution(ctx context.Context, res domain.ExecutionResult) error {
	sev := SeverityInfo
	if !res.Success {
		sev = SeverityWarning
	}
	return n.Notify(ctx, EventExecution, Message{
		Title: fmt.Sprintf("Execution %s %s", res.Status(), res.Opportunity.Pair.ID),
		Body: fmt.Sprintf("id %s, value %.2f\n%s\n%s",
			res.ID, res.TotalValue, describeLeg(res.LegA), describeLeg(res.LegB)),
		Severity: sev,
	})
}

// HandlePartial escalates a partial execution.
func (n *Notifier) HandlePartial(ctx context.Context, res domain.ExecutionResult) error {
	return n.Notify(ctx, EventPartialExecution, Message{
		Title: fmt.Sprintf("PARTIAL EXECUTION %s", res.Opportunity.Pair.ID),
		Body: fmt.Sprintf("execution %s left an unhedged position, reconcile manually\n%s\n%s",
			res.ID, describeLeg(res.LegA), describeLeg(res.LegB)),
		Severity: SeverityCritical,
	})
}

// NotifyShutdown reports an emergency shutdown.
func (n *Notifier) NotifyShutdown(ctx context.Context, reason string) {
	err := n.Notify(ctx, EventEmergencyShutdown, Message{
		Title:    "Emergency shutdown",
		Body:     fmt.Sprintf("trading halted: %s", reason),
		Severity: SeverityCritical,
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "shutdown notification failed", slog.String("error", err.Error()))
	}
}

func describeLeg(l domain.LegResult) string {
	status := "ok"
	if !l.Success {
		status = "FAILED: " + l.Error
	}
	return fmt.Sprintf("%s %s %s %s %.0f @ %.4f -> filled %.0f @ %.4f (order %q) %s",
		l.Venue, l.Action, l.Side, l.MarketID, l.Quantity, l.LimitPrice,
		l.FilledQuantity, l.FilledPrice, l.OrderID, status)
}

// dispatch sends to every sender. One failing sender does not stop the
// rest; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
