// Package feed turns raw venue frames into typed events and applies them to
// the order books.
package feed

import (
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

// Kind is the closed set of venue message kinds the pipeline understands.
type Kind uint8

const (
	KindKalshiSnapshot Kind = iota + 1
	KindKalshiDelta
	KindKalshiTrade
	KindKalshiTicker
	KindKalshiFill
	KindKalshiOK
	KindKalshiError
	KindPolyBook
	KindPolyPriceChange
	KindPolyTickSize
	KindPolyLastTrade
)

var kindNames = map[Kind]string{
	KindKalshiSnapshot:  "orderbook_snapshot",
	KindKalshiDelta:     "orderbook_delta",
	KindKalshiTrade:     "trade",
	KindKalshiTicker:    "ticker_v2",
	KindKalshiFill:      "fill",
	KindKalshiOK:        "ok",
	KindKalshiError:     "error",
	KindPolyBook:        "book",
	KindPolyPriceChange: "price_change",
	KindPolyTickSize:    "tick_size_change",
	KindPolyLastTrade:   "last_trade_price",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Venue returns the venue that emits k.
func (k Kind) Venue() domain.Venue {
	if k >= KindPolyBook {
		return domain.VenuePolymarket
	}
	return domain.VenueKalshi
}

// LevelChange is one level update. For Kalshi deltas Size is the change in
// resting contracts; for Polymarket it is the new absolute size.
type LevelChange struct {
	Side  orderbook.Side
	Price domain.Price
	Size  float64
}

// TradePrint is a public trade.
type TradePrint struct {
	Price     domain.Price
	Size      float64
	TakerSide string
}

// TickerQuote is a top-of-book ticker update. Nil fields were not sent.
type TickerQuote struct {
	Last   *domain.Price
	YesBid *domain.Price
	YesAsk *domain.Price
}

// OwnFill is a fill of one of our own orders.
type OwnFill struct {
	OrderID string
	Side    string
	Action  string
	Price   domain.Price
	Count   float64
	IsTaker bool
}

// Event is a decoded venue message. Only the fields relevant to Kind are set.
type Event struct {
	Kind      Kind
	MarketKey string
	Sequence  int64
	Timestamp time.Time

	Snapshot map[orderbook.Side][]orderbook.Level
	Changes  []LevelChange
	Trade    *TradePrint
	Ticker   *TickerQuote
	Fill     *OwnFill
	Err      error
	TickSize string
}

// Frame is one raw message as received from a transport.
type Frame struct {
	Venue      domain.Venue
	Data       []byte
	ReceivedAt time.Time
}
