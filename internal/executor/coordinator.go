// Package executor dispatches the two legs of an arbitrage trade to the
// venue order services and reports what happened.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// VenueExecutor places one order on one venue.
type VenueExecutor interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error)
}

// PartialHandler is invoked after a partial execution. This is where
// escalation happens; compensating trades would also hook in here.
type PartialHandler interface {
	HandlePartial(ctx context.Context, res domain.ExecutionResult) error
}

// PartialHandlerFunc adapts a function to PartialHandler.
type PartialHandlerFunc func(ctx context.Context, res domain.ExecutionResult) error

// HandlePartial calls f.
func (f PartialHandlerFunc) HandlePartial(ctx context.Context, res domain.ExecutionResult) error {
	return f(ctx, res)
}

// CoordinatorConfig configures the coordinator. Journal, Publisher and
// PartialHandlers are optional.
type CoordinatorConfig struct {
	Kalshi          VenueExecutor
	Polymarket      VenueExecutor
	Journal         domain.ExecutionStore
	Publisher       domain.ExecutionPublisher
	PartialHandlers []PartialHandler
	Logger          *slog.Logger
	Now             func() time.Time
	NewID           func() string
}

// Coordinator runs both legs of an opportunity at the same time.
type Coordinator struct {
	kalshi    VenueExecutor
	poly      VenueExecutor
	journal   domain.ExecutionStore
	publisher domain.ExecutionPublisher
	partials  []PartialHandler
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	return &Coordinator{
		kalshi:    cfg.Kalshi,
		poly:      cfg.Polymarket,
		journal:   cfg.Journal,
		publisher: cfg.Publisher,
		partials:  cfg.PartialHandlers,
		logger:    cfg.Logger.With(slog.String("component", "coordinator")),
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
}

// Limit prices stay strictly inside (0, 1).
const (
	minLimit = 0.001
	maxLimit = 0.999
)

type legPlan struct {
	venue domain.Venue
	req   domain.OrderRequest
}

// planLegs maps an opportunity onto concrete orders. The sold leg uses the
// bid it was priced from, the bought leg the ask; slippage widens both
// limits against us.
func planLegs(opp domain.ArbitrageOpportunity, maxSlippage float64) (a, b legPlan, err error) {
	size := opp.ExecutionSize
	sell := func(p float64) float64 { return clampLimit(p - maxSlippage) }
	buy := func(p float64) float64 { return clampLimit(p + maxSlippage) }

	a.venue, b.venue = domain.VenueKalshi, domain.VenuePolymarket
	a.req = domain.OrderRequest{MarketID: opp.Pair.KalshiTicker, Quantity: size}
	b.req = domain.OrderRequest{Quantity: size}

	switch {
	case opp.Direction == domain.DirectionAToB && opp.Side == domain.OutcomeYes:
		a.req.Side, a.req.Action, a.req.Price = domain.OutcomeYes, domain.ActionSell, sell(opp.QuoteA)
		b.req.MarketID, b.req.Side, b.req.Action, b.req.Price = opp.Pair.PolyNoAsset, domain.OutcomeNo, domain.ActionBuy, buy(opp.QuoteB)
	case opp.Direction == domain.DirectionBToA && opp.Side == domain.OutcomeYes:
		b.req.MarketID, b.req.Side, b.req.Action, b.req.Price = opp.Pair.PolyYesAsset, domain.OutcomeYes, domain.ActionSell, sell(opp.QuoteB)
		a.req.Side, a.req.Action, a.req.Price = domain.OutcomeNo, domain.ActionBuy, buy(opp.QuoteA)
	case opp.Direction == domain.DirectionAToB && opp.Side == domain.OutcomeNo:
		a.req.Side, a.req.Action, a.req.Price = domain.OutcomeNo, domain.ActionSell, sell(opp.QuoteA)
		b.req.MarketID, b.req.Side, b.req.Action, b.req.Price = opp.Pair.PolyYesAsset, domain.OutcomeYes, domain.ActionBuy, buy(opp.QuoteB)
	case opp.Direction == domain.DirectionBToA && opp.Side == domain.OutcomeNo:
		b.req.MarketID, b.req.Side, b.req.Action, b.req.Price = opp.Pair.PolyNoAsset, domain.OutcomeNo, domain.ActionSell, sell(opp.QuoteB)
		a.req.Side, a.req.Action, a.req.Price = domain.OutcomeYes, domain.ActionBuy, buy(opp.QuoteA)
	default:
		return a, b, fmt.Errorf("executor: unknown direction/side %q/%q", opp.Direction, opp.Side)
	}
	return a, b, nil
}

func clampLimit(p float64) float64 {
	return min(max(p, minLimit), maxLimit)
}

// Execute validates the opportunity, then places both legs concurrently
// and waits for both. A failing or panicking leg never cancels the other.
//
// The returned error is non-nil only when nothing was sent to a venue.
// Every dispatched execution comes back as a result; Success is set only
// when both legs filled, and a partial execution carries
// Error == "partial execution" with both leg results.
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity, maxSlippage, maxPositionSize float64) (domain.ExecutionResult, error) {
	// Kalshi only fills whole contracts, so both legs get the floored size.
	size := math.Floor(opp.ExecutionSize + 1e-9)
	if size < 1 {
		return domain.ExecutionResult{}, fmt.Errorf("executor: %s: size %v: %w",
			opp.Pair.ID, opp.ExecutionSize, domain.ErrBelowOneContract)
	}
	opp.ExecutionSize = size
	if opp.ExecutionSize > maxPositionSize {
		return domain.ExecutionResult{}, fmt.Errorf("executor: %s: size %v > limit %v: %w",
			opp.Pair.ID, opp.ExecutionSize, maxPositionSize, domain.ErrPositionSize)
	}
	planA, planB, err := planLegs(opp, maxSlippage)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	res := domain.ExecutionResult{ID: c.newID(), Opportunity: opp}
	log := c.logger.With(
		slog.String("execution_id", res.ID),
		slog.String("pair_id", opp.Pair.ID),
		slog.String("direction", string(opp.Direction)),
		slog.String("side", string(opp.Side)),
	)
	log.InfoContext(ctx, "dispatching legs",
		slog.Float64("size", opp.ExecutionSize),
		slog.Float64("spread", opp.Spread),
	)

	var g errgroup.Group
	g.Go(func() error {
		res.LegA = c.placeLeg(ctx, c.kalshi, planA)
		return nil
	})
	g.Go(func() error {
		res.LegB = c.placeLeg(ctx, c.poly, planB)
		return nil
	})
	_ = g.Wait()

	res.Timestamp = c.now()
	res.TotalValue = res.LegA.Value() + res.LegB.Value()
	res.Success = res.LegA.Success && res.LegB.Success
	res.Partial = res.LegA.Success != res.LegB.Success

	switch {
	case res.Success:
		log.InfoContext(ctx, "execution filled",
			slog.String("order_a", res.LegA.OrderID),
			slog.String("order_b", res.LegB.OrderID),
			slog.Float64("total_value", res.TotalValue),
		)
	case res.Partial:
		res.Error = domain.ErrPartialExecution.Error()
		filled, failed := res.LegA, res.LegB
		if !filled.Success {
			filled, failed = failed, filled
		}
		log.Log(ctx, domain.LevelCritical, "partial execution, unhedged position needs manual reconciliation",
			slog.String("filled_venue", string(filled.Venue)),
			slog.String("filled_order_id", filled.OrderID),
			slog.Float64("filled_quantity", filled.FilledQuantity),
			slog.Float64("filled_price", filled.FilledPrice),
			slog.String("failed_venue", string(failed.Venue)),
			slog.String("failed_error", failed.Error),
		)
	default:
		res.Error = "both legs failed"
		log.WarnContext(ctx, "execution failed on both legs",
			slog.String("error_a", res.LegA.Error),
			slog.String("error_b", res.LegB.Error),
		)
	}

	c.record(ctx, log, res)
	if res.Partial {
		c.escalate(ctx, log, res)
	}
	return res, nil
}

// placeLeg turns whatever the executor does, including panicking, into a
// LegResult.
func (c *Coordinator) placeLeg(ctx context.Context, ex VenueExecutor, plan legPlan) (leg domain.LegResult) {
	leg = domain.LegResult{
		Venue:      plan.venue,
		MarketID:   plan.req.MarketID,
		Side:       plan.req.Side,
		Action:     plan.req.Action,
		Quantity:   plan.req.Quantity,
		LimitPrice: plan.req.Price,
	}
	defer func() {
		if r := recover(); r != nil {
			leg.Success = false
			leg.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if ex == nil {
		leg.Error = fmt.Sprintf("no executor for %s", plan.venue)
		return leg
	}
	fill, err := ex.PlaceOrder(ctx, plan.req)
	if err != nil {
		leg.Error = err.Error()
		return leg
	}
	leg.OrderID = fill.OrderID
	leg.FilledQuantity = fill.FilledQuantity
	leg.FilledPrice = fill.FilledPrice
	leg.Success = fill.Success
	if !fill.Success {
		leg.Error = fill.Error
		if leg.Error == "" {
			leg.Error = "order rejected"
		}
	}
	return leg
}

func (c *Coordinator) record(ctx context.Context, log *slog.Logger, res domain.ExecutionResult) {
	if c.journal != nil {
		if err := c.journal.Create(ctx, res); err != nil {
			log.ErrorContext(ctx, "journal execution failed", slog.String("error", err.Error()))
		}
	}
	if c.publisher != nil {
		if err := c.publisher.PublishExecution(ctx, res); err != nil {
			log.WarnContext(ctx, "publish execution failed", slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) escalate(ctx context.Context, log *slog.Logger, res domain.ExecutionResult) {
	var errs []error
	for _, h := range c.partials {
		if err := h.HandlePartial(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.ErrorContext(ctx, "partial execution escalation incomplete", slog.String("error", err.Error()))
	}
}
