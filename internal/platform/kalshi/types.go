// Package kalshi holds the Kalshi WebSocket wire format.
package kalshi

import (
	"encoding/json"
	"fmt"
)

// Message types sent by the Kalshi market data WebSocket.
const (
	TypeOrderbookSnapshot = "orderbook_snapshot"
	TypeOrderbookDelta    = "orderbook_delta"
	TypeTrade             = "trade"
	TypeTickerV2          = "ticker_v2"
	TypeFill              = "fill"
	TypeOK                = "ok"
	TypeError             = "error"
)

// WSMessage is the envelope of every Kalshi WebSocket frame.
type WSMessage struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	SID  int64           `json:"sid,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// PriceLevel is a [price_cents, quantity] pair.
type PriceLevel [2]int64

// Cents returns the price in cents.
func (l PriceLevel) Cents() int64 { return l[0] }

// Quantity returns the resting contracts.
func (l PriceLevel) Quantity() int64 { return l[1] }

// OrderbookSnapshot is the msg of an orderbook_snapshot frame. Both ladders
// are bids: yes holds bids for YES, no holds bids for NO.
type OrderbookSnapshot struct {
	MarketTicker string       `json:"market_ticker"`
	Yes          []PriceLevel `json:"yes"`
	No           []PriceLevel `json:"no"`
}

// OrderbookDelta is the msg of an orderbook_delta frame. Delta is a change
// in resting contracts at Price, not an absolute size.
type OrderbookDelta struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	Delta        int64  `json:"delta"`
	Side         string `json:"side"`
	TS           string `json:"ts,omitempty"`
}

// Trade is the msg of a public trade frame.
type Trade struct {
	TradeID      string `json:"trade_id"`
	MarketTicker string `json:"market_ticker"`
	YesPrice     int64  `json:"yes_price"`
	NoPrice      int64  `json:"no_price"`
	Count        int64  `json:"count"`
	TakerSide    string `json:"taker_side"`
	TS           int64  `json:"ts"`
}

// TickerV2 is the msg of a ticker_v2 frame. Fields absent from an update
// are left nil.
type TickerV2 struct {
	MarketTicker string `json:"market_ticker"`
	Price        *int64 `json:"price,omitempty"`
	YesBid       *int64 `json:"yes_bid,omitempty"`
	YesAsk       *int64 `json:"yes_ask,omitempty"`
	VolumeDelta  int64  `json:"volume_delta,omitempty"`
	TS           int64  `json:"ts"`
}

// Fill is the msg of a private fill frame for one of our orders.
type Fill struct {
	TradeID      string `json:"trade_id"`
	OrderID      string `json:"order_id"`
	MarketTicker string `json:"market_ticker"`
	IsTaker      bool   `json:"is_taker"`
	Side         string `json:"side"`
	Action       string `json:"action"`
	YesPrice     int64  `json:"yes_price"`
	Count        int64  `json:"count"`
	TS           int64  `json:"ts"`
}

// ErrorBody is the msg of an error frame.
type ErrorBody struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (e ErrorBody) Error() string {
	return fmt.Sprintf("kalshi: code %d: %s", e.Code, e.Msg)
}

// SubscribeCmd subscribes to channels for a set of markets.
type SubscribeCmd struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params SubscribeParams `json:"params"`
}

// SubscribeParams defines the subscription parameters.
type SubscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// SubscribeCommands returns one orderbook_delta subscription per ticker so
// that each market gets its own sid and therefore its own sequence stream,
// plus a single ticker_v2 and trade subscription for all of them.
func SubscribeCommands(tickers []string) []SubscribeCmd {
	cmds := make([]SubscribeCmd, 0, len(tickers)+1)
	id := int64(1)
	for _, t := range tickers {
		cmds = append(cmds, SubscribeCmd{
			ID:     id,
			Cmd:    "subscribe",
			Params: SubscribeParams{Channels: []string{"orderbook_delta"}, MarketTickers: []string{t}},
		})
		id++
	}
	if len(tickers) > 0 {
		cmds = append(cmds, SubscribeCmd{
			ID:     id,
			Cmd:    "subscribe",
			Params: SubscribeParams{Channels: []string{"ticker_v2", "trade"}, MarketTickers: tickers},
		})
	}
	return cmds
}
