// Package polymarket holds the Polymarket CLOB market WebSocket wire format.
package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Event types sent on the market channel.
const (
	EventBook           = "book"
	EventPriceChange    = "price_change"
	EventTickSizeChange = "tick_size_change"
	EventLastTradePrice = "last_trade_price"
)

// Envelope carries just enough to route a frame.
type Envelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id,omitempty"`
	Market    string `json:"market,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// WSPriceLevel is a single level; prices and sizes are decimal strings.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookMessage is a full snapshot of one outcome token's book.
type BookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	// Older feeds name the ladders buys/sells.
	Buys      []WSPriceLevel `json:"buys,omitempty"`
	Sells     []WSPriceLevel `json:"sells,omitempty"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// BidLevels returns the bid ladder under either name.
func (b BookMessage) BidLevels() []WSPriceLevel {
	if len(b.Bids) > 0 {
		return b.Bids
	}
	return b.Buys
}

// AskLevels returns the ask ladder under either name.
func (b BookMessage) AskLevels() []WSPriceLevel {
	if len(b.Asks) > 0 {
		return b.Asks
	}
	return b.Sells
}

// PriceChange is one absolute level update. AssetID is only set in the
// batched price_changes form.
type PriceChange struct {
	AssetID string `json:"asset_id,omitempty"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // BUY or SELL
	Hash    string `json:"hash,omitempty"`
}

// PriceChangeMessage is an incremental update. The legacy form carries one
// asset_id with changes; the batched form carries price_changes, each with
// its own asset_id.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	AssetID      string        `json:"asset_id,omitempty"`
	Market       string        `json:"market"`
	Changes      []PriceChange `json:"changes,omitempty"`
	PriceChanges []PriceChange `json:"price_changes,omitempty"`
	Timestamp    string        `json:"timestamp"`
}

// TickSizeChangeMessage announces a new minimum tick.
type TickSizeChangeMessage struct {
	EventType   string `json:"event_type"`
	AssetID     string `json:"asset_id"`
	Market      string `json:"market"`
	OldTickSize string `json:"old_tick_size"`
	NewTickSize string `json:"new_tick_size"`
	Timestamp   string `json:"timestamp"`
}

// LastTradePriceMessage reports a trade.
type LastTradePriceMessage struct {
	EventType  string `json:"event_type"`
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"`
	FeeRateBps string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"`
}

// SubscribeCmd subscribes the market channel to a set of outcome tokens.
type SubscribeCmd struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// NewSubscribeCmd builds the market channel subscription.
func NewSubscribeCmd(assetIDs []string) SubscribeCmd {
	return SubscribeCmd{Type: "market", AssetIDs: assetIDs}
}

// ParseTimestamp decodes the millisecond epoch strings used by the feed.
// An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// SplitFrame returns the individual events of a frame, which may be a
// single object or an array of objects.
func SplitFrame(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []json.RawMessage{raw}, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, err
	}
	return out, nil
}
