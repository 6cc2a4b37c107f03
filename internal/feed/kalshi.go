package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
)

func kalshiMalformed(reason string, err error) error {
	return &domain.MalformedMessageError{Venue: domain.VenueKalshi, Reason: reason, Err: err}
}

// DecodeKalshi decodes one Kalshi frame. Frames without a venue timestamp
// are stamped with receivedAt.
func DecodeKalshi(raw []byte, receivedAt time.Time) (Event, error) {
	var env kalshi.WSMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, kalshiMalformed("envelope", err)
	}

	ev := Event{Sequence: env.Seq, Timestamp: receivedAt}

	switch env.Type {
	case kalshi.TypeOrderbookSnapshot:
		var msg kalshi.OrderbookSnapshot
		if err := decodeBody(env.Msg, &msg); err != nil {
			return Event{}, kalshiMalformed("orderbook_snapshot", err)
		}
		if msg.MarketTicker == "" {
			return Event{}, kalshiMalformed("orderbook_snapshot: missing market_ticker", nil)
		}
		ev.Kind = KindKalshiSnapshot
		ev.MarketKey = msg.MarketTicker
		ev.Snapshot = map[orderbook.Side][]orderbook.Level{
			orderbook.SideYes: kalshiLevels(msg.Yes),
			orderbook.SideNo:  kalshiLevels(msg.No),
		}

	case kalshi.TypeOrderbookDelta:
		var msg kalshi.OrderbookDelta
		if err := decodeBody(env.Msg, &msg); err != nil {
			return Event{}, kalshiMalformed("orderbook_delta", err)
		}
		side, err := kalshiSide(msg.Side)
		switch {
		case err != nil:
			return Event{}, kalshiMalformed("orderbook_delta", err)
		case msg.MarketTicker == "":
			return Event{}, kalshiMalformed("orderbook_delta: missing market_ticker", nil)
		case msg.Price < 0 || msg.Price > 100:
			return Event{}, kalshiMalformed(fmt.Sprintf("orderbook_delta: price %d out of range", msg.Price), nil)
		case env.Seq == 0:
			return Event{}, kalshiMalformed("orderbook_delta: missing seq", nil)
		}
		if ts, err := time.Parse(time.RFC3339Nano, msg.TS); err == nil {
			ev.Timestamp = ts
		}
		ev.Kind = KindKalshiDelta
		ev.MarketKey = msg.MarketTicker
		ev.Changes = []LevelChange{{
			Side:  side,
			Price: domain.PriceFromCents(msg.Price),
			Size:  float64(msg.Delta),
		}}

	case kalshi.TypeTrade:
		var msg kalshi.Trade
		if err := decodeBody(env.Msg, &msg); err != nil {
			return Event{}, kalshiMalformed("trade", err)
		}
		ev.Kind = KindKalshiTrade
		ev.MarketKey = msg.MarketTicker
		ev.Timestamp = unixOr(msg.TS, receivedAt)
		ev.Trade = &TradePrint{
			Price:     domain.PriceFromCents(msg.YesPrice),
			Size:      float64(msg.Count),
			TakerSide: msg.TakerSide,
		}

	case kalshi.TypeTickerV2:
		var msg kalshi.TickerV2
		if err := decodeBody(env.Msg, &msg); err != nil {
			return Event{}, kalshiMalformed("ticker_v2", err)
		}
		ev.Kind = KindKalshiTicker
		ev.MarketKey = msg.MarketTicker
		ev.Timestamp = unixOr(msg.TS, receivedAt)
		ev.Ticker = &TickerQuote{
			Last:   centsPtr(msg.Price),
			YesBid: centsPtr(msg.YesBid),
			YesAsk: centsPtr(msg.YesAsk),
		}

	case kalshi.TypeFill:
		var msg kalshi.Fill
		if err := decodeBody(env.Msg, &msg); err != nil {
			return Event{}, kalshiMalformed("fill", err)
		}
		ev.Kind = KindKalshiFill
		ev.MarketKey = msg.MarketTicker
		ev.Timestamp = unixOr(msg.TS, receivedAt)
		ev.Fill = &OwnFill{
			OrderID: msg.OrderID,
			Side:    msg.Side,
			Action:  msg.Action,
			Price:   domain.PriceFromCents(msg.YesPrice),
			Count:   float64(msg.Count),
			IsTaker: msg.IsTaker,
		}

	case kalshi.TypeOK, "subscribed", "unsubscribed":
		ev.Kind = KindKalshiOK

	case kalshi.TypeError:
		var body kalshi.ErrorBody
		if err := decodeBody(env.Msg, &body); err != nil {
			return Event{}, kalshiMalformed("error", err)
		}
		ev.Kind = KindKalshiError
		ev.Err = body

	default:
		return Event{}, kalshiMalformed("unknown type "+strconv.Quote(env.Type), nil)
	}
	return ev, nil
}

func decodeBody(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing msg")
	}
	return json.Unmarshal(raw, v)
}

func kalshiSide(s string) (orderbook.Side, error) {
	switch s {
	case "yes":
		return orderbook.SideYes, nil
	case "no":
		return orderbook.SideNo, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func kalshiLevels(in []kalshi.PriceLevel) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(in))
	for _, l := range in {
		out = append(out, orderbook.Level{
			Price: domain.PriceFromCents(l.Cents()),
			Size:  float64(l.Quantity()),
		})
	}
	return out
}

func centsPtr(c *int64) *domain.Price {
	if c == nil {
		return nil
	}
	p := domain.PriceFromCents(*c)
	return &p
}

func unixOr(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}
