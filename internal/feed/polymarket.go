package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
)

func polyMalformed(reason string, err error) error {
	return &domain.MalformedMessageError{Venue: domain.VenuePolymarket, Reason: reason, Err: err}
}

// DecodePolymarket decodes one Polymarket frame, which may hold several
// events. A batched price_change touching several assets yields one event
// per asset, in first-seen order. Any malformed element rejects the frame.
func DecodePolymarket(raw []byte, receivedAt time.Time) ([]Event, error) {
	parts, err := polymarket.SplitFrame(raw)
	if err != nil {
		return nil, polyMalformed("frame", err)
	}
	var out []Event
	for _, part := range parts {
		evs, err := decodePolyEvent(part, receivedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

func decodePolyEvent(raw json.RawMessage, receivedAt time.Time) ([]Event, error) {
	var env polymarket.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, polyMalformed("envelope", err)
	}
	ts, err := polymarket.ParseTimestamp(env.Timestamp)
	if err != nil {
		return nil, polyMalformed("timestamp", err)
	}
	if ts.IsZero() {
		ts = receivedAt
	}

	switch env.EventType {
	case polymarket.EventBook:
		var msg polymarket.BookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, polyMalformed("book", err)
		}
		if msg.AssetID == "" {
			return nil, polyMalformed("book: missing asset_id", nil)
		}
		bids, err := polyLevels(msg.BidLevels())
		if err != nil {
			return nil, polyMalformed("book bids", err)
		}
		asks, err := polyLevels(msg.AskLevels())
		if err != nil {
			return nil, polyMalformed("book asks", err)
		}
		return []Event{{
			Kind:      KindPolyBook,
			MarketKey: msg.AssetID,
			Timestamp: ts,
			Snapshot: map[orderbook.Side][]orderbook.Level{
				orderbook.SideBid: bids,
				orderbook.SideAsk: asks,
			},
		}}, nil

	case polymarket.EventPriceChange:
		var msg polymarket.PriceChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, polyMalformed("price_change", err)
		}
		return polyPriceChanges(msg, ts)

	case polymarket.EventTickSizeChange:
		var msg polymarket.TickSizeChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, polyMalformed("tick_size_change", err)
		}
		return []Event{{
			Kind:      KindPolyTickSize,
			MarketKey: msg.AssetID,
			Timestamp: ts,
			TickSize:  msg.NewTickSize,
		}}, nil

	case polymarket.EventLastTradePrice:
		var msg polymarket.LastTradePriceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, polyMalformed("last_trade_price", err)
		}
		price, err := domain.ParsePrice(msg.Price)
		if err != nil {
			return nil, polyMalformed("last_trade_price", err)
		}
		size, _ := strconv.ParseFloat(msg.Size, 64)
		return []Event{{
			Kind:      KindPolyLastTrade,
			MarketKey: msg.AssetID,
			Timestamp: ts,
			Trade:     &TradePrint{Price: price, Size: size, TakerSide: msg.Side},
		}}, nil
	}
	return nil, polyMalformed("unknown event_type "+strconv.Quote(env.EventType), nil)
}

func polyPriceChanges(msg polymarket.PriceChangeMessage, ts time.Time) ([]Event, error) {
	changes := msg.Changes
	if len(msg.PriceChanges) > 0 {
		changes = msg.PriceChanges
	}
	if len(changes) == 0 {
		return nil, polyMalformed("price_change: no changes", nil)
	}

	var out []Event
	index := make(map[string]int)
	for _, c := range changes {
		asset := c.AssetID
		if asset == "" {
			asset = msg.AssetID
		}
		if asset == "" {
			return nil, polyMalformed("price_change: missing asset_id", nil)
		}
		lc, err := polyChange(c)
		if err != nil {
			return nil, polyMalformed("price_change", err)
		}
		i, ok := index[asset]
		if !ok {
			i = len(out)
			index[asset] = i
			out = append(out, Event{Kind: KindPolyPriceChange, MarketKey: asset, Timestamp: ts})
		}
		out[i].Changes = append(out[i].Changes, lc)
	}
	return out, nil
}

func polyChange(c polymarket.PriceChange) (LevelChange, error) {
	var side orderbook.Side
	switch c.Side {
	case "BUY", "buy":
		side = orderbook.SideBid
	case "SELL", "sell":
		side = orderbook.SideAsk
	default:
		return LevelChange{}, fmt.Errorf("unknown side %q", c.Side)
	}
	price, err := domain.ParsePrice(c.Price)
	if err != nil {
		return LevelChange{}, err
	}
	size, err := strconv.ParseFloat(c.Size, 64)
	if err != nil {
		return LevelChange{}, fmt.Errorf("parse size %q: %w", c.Size, err)
	}
	return LevelChange{Side: side, Price: price, Size: size}, nil
}

func polyLevels(in []polymarket.WSPriceLevel) ([]orderbook.Level, error) {
	out := make([]orderbook.Level, 0, len(in))
	for _, l := range in {
		p, err := domain.ParsePrice(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", l.Size, err)
		}
		out = append(out, orderbook.Level{Price: p, Size: size})
	}
	return out, nil
}
