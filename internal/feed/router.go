package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

// ChangeListener is told about every book that changed. It runs on the
// router goroutine, so it must not block on I/O.
type ChangeListener interface {
	OnBookChange(ctx context.Context, venue domain.Venue, key string)
}

// Stats counts what the router did with incoming events of one venue.
type Stats struct {
	Snapshots uint64 `json:"snapshots"`
	Deltas    uint64 `json:"deltas"`
	Gaps      uint64 `json:"gaps"`
	Stale     uint64 `json:"stale"`
	Malformed uint64 `json:"malformed"`
	Other     uint64 `json:"other"`
}

type counters struct {
	snapshots atomic.Uint64
	deltas    atomic.Uint64
	gaps      atomic.Uint64
	stale     atomic.Uint64
	malformed atomic.Uint64
	other     atomic.Uint64
}

func (c *counters) load() Stats {
	return Stats{
		Snapshots: c.snapshots.Load(),
		Deltas:    c.deltas.Load(),
		Gaps:      c.gaps.Load(),
		Stale:     c.stale.Load(),
		Malformed: c.malformed.Load(),
		Other:     c.other.Load(),
	}
}

// Router is the single writer of every order book. Feed it frames from one
// goroutine only.
type Router struct {
	books    *orderbook.Registry
	listener ChangeListener
	logger   *slog.Logger

	kalshi counters
	poly   counters
}

// NewRouter creates a router writing into books. listener may be nil.
func NewRouter(books *orderbook.Registry, listener ChangeListener, logger *slog.Logger) *Router {
	return &Router{
		books:    books,
		listener: listener,
		logger:   logger.With(slog.String("component", "feed_router")),
	}
}

// Run applies frames until ctx is cancelled or frames is closed.
func (r *Router) Run(ctx context.Context, frames <-chan Frame) error {
	r.logger.InfoContext(ctx, "router started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.HandleFrame(ctx, f)
		}
	}
}

// HandleFrame decodes f and applies every event in it. Decoding failures
// are logged and counted; they never stop the pipeline.
func (r *Router) HandleFrame(ctx context.Context, f Frame) {
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now().UTC()
	}
	var (
		events []Event
		err    error
	)
	switch f.Venue {
	case domain.VenueKalshi:
		var ev Event
		ev, err = DecodeKalshi(f.Data, f.ReceivedAt)
		events = []Event{ev}
	case domain.VenuePolymarket:
		events, err = DecodePolymarket(f.Data, f.ReceivedAt)
	default:
		err = fmt.Errorf("feed: unknown venue %q", f.Venue)
	}
	if err != nil {
		r.countersFor(f.Venue).malformed.Add(1)
		r.logger.WarnContext(ctx, "dropping malformed frame",
			slog.String("venue", string(f.Venue)),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, ev := range events {
		if err := r.Apply(ctx, ev); err != nil && !errors.Is(err, domain.ErrSequenceGap) && !errors.Is(err, errStale) {
			r.logger.WarnContext(ctx, "event not applied",
				slog.String("kind", ev.Kind.String()),
				slog.String("market", ev.MarketKey),
				slog.String("error", err.Error()),
			)
		}
	}
}

var errStale = errors.New("stale event")

// Apply mutates the book an event refers to and notifies the listener.
// Sequence gaps and stale events are logged here and returned so callers
// can tell them apart; the book is unchanged in both cases.
func (r *Router) Apply(ctx context.Context, ev Event) error {
	c := r.countersFor(ev.Kind.Venue())

	switch ev.Kind {
	case KindKalshiSnapshot:
		st := r.books.Kalshi(ev.MarketKey)
		if err := st.ApplySnapshot(ev.Snapshot, ev.Sequence, ev.Timestamp); err != nil {
			return err
		}
		c.snapshots.Add(1)
		r.changed(ctx, domain.VenueKalshi, ev.MarketKey)

	case KindKalshiDelta:
		st := r.books.Kalshi(ev.MarketKey)
		batch := make([]orderbook.Delta, 0, len(ev.Changes))
		for i, ch := range ev.Changes {
			batch = append(batch, orderbook.Delta{
				Side:      ch.Side,
				Price:     ch.Price,
				Size:      st.Size(ch.Side, ch.Price) + ch.Size,
				Sequence:  ev.Sequence + int64(i),
				Timestamp: ev.Timestamp,
			})
		}
		if err := st.ApplyDeltas(batch); err != nil {
			return r.rejected(ctx, c, ev, err)
		}
		c.deltas.Add(1)
		r.changed(ctx, domain.VenueKalshi, ev.MarketKey)

	case KindPolyBook:
		st := r.books.Polymarket(ev.MarketKey)
		if err := st.ApplySnapshot(ev.Snapshot, 0, ev.Timestamp); err != nil {
			return err
		}
		c.snapshots.Add(1)
		r.changed(ctx, domain.VenuePolymarket, ev.MarketKey)

	case KindPolyPriceChange:
		st := r.books.Polymarket(ev.MarketKey)
		cur := st.Load()
		if cur.Ready() && ev.Timestamp.Before(cur.UpdatedAt()) {
			c.stale.Add(1)
			r.logger.DebugContext(ctx, "dropping stale price change",
				slog.String("asset_id", ev.MarketKey),
				slog.Time("event_ts", ev.Timestamp),
				slog.Time("book_ts", cur.UpdatedAt()),
			)
			return errStale
		}
		// Polymarket has no sequence numbers; changes are numbered locally
		// so they go through the same gap checks as Kalshi deltas.
		batch := make([]orderbook.Delta, 0, len(ev.Changes))
		for i, ch := range ev.Changes {
			batch = append(batch, orderbook.Delta{
				Side:      ch.Side,
				Price:     ch.Price,
				Size:      ch.Size,
				Sequence:  cur.Sequence() + 1 + int64(i),
				Timestamp: ev.Timestamp,
			})
		}
		if err := st.ApplyDeltas(batch); err != nil {
			return r.rejected(ctx, c, ev, err)
		}
		c.deltas.Add(1)
		r.changed(ctx, domain.VenuePolymarket, ev.MarketKey)

	case KindKalshiFill:
		c.other.Add(1)
		r.logger.InfoContext(ctx, "kalshi fill",
			slog.String("market", ev.MarketKey),
			slog.String("order_id", ev.Fill.OrderID),
			slog.String("side", ev.Fill.Side),
			slog.String("action", ev.Fill.Action),
			slog.Float64("count", ev.Fill.Count),
			slog.Float64("yes_price", ev.Fill.Price.Float64()),
		)

	case KindKalshiError:
		c.other.Add(1)
		r.logger.ErrorContext(ctx, "kalshi error frame", slog.String("error", ev.Err.Error()))

	case KindPolyTickSize:
		c.other.Add(1)
		r.logger.InfoContext(ctx, "polymarket tick size change",
			slog.String("asset_id", ev.MarketKey),
			slog.String("tick_size", ev.TickSize),
		)

	case KindKalshiTrade, KindKalshiTicker, KindKalshiOK, KindPolyLastTrade:
		c.other.Add(1)

	default:
		return fmt.Errorf("feed: unhandled kind %d", ev.Kind)
	}
	return nil
}

func (r *Router) rejected(ctx context.Context, c *counters, ev Event, err error) error {
	if errors.Is(err, domain.ErrSequenceGap) {
		c.gaps.Add(1)
		r.logger.WarnContext(ctx, "sequence gap, waiting for snapshot",
			slog.String("kind", ev.Kind.String()),
			slog.String("market", ev.MarketKey),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (r *Router) changed(ctx context.Context, venue domain.Venue, key string) {
	if r.listener != nil {
		r.listener.OnBookChange(ctx, venue, key)
	}
}

func (r *Router) countersFor(v domain.Venue) *counters {
	if v == domain.VenuePolymarket {
		return &r.poly
	}
	return &r.kalshi
}

// Stats returns per-venue counters.
func (r *Router) Stats() map[domain.Venue]Stats {
	return map[domain.Venue]Stats{
		domain.VenueKalshi:     r.kalshi.load(),
		domain.VenuePolymarket: r.poly.load(),
	}
}
