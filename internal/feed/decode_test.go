package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

var recv = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeKalshi(t *testing.T) {
	t.Run("snapshot", func(t *testing.T) {
		ev, err := DecodeKalshi([]byte(`{"type":"orderbook_snapshot","sid":2,"seq":2,
			"msg":{"market_ticker":"FED-23DEC-T3.00","yes":[[8,300],[22,333]],"no":[[54,20],[56,146]]}}`), recv)
		require.NoError(t, err)
		assert.Equal(t, KindKalshiSnapshot, ev.Kind)
		assert.Equal(t, "FED-23DEC-T3.00", ev.MarketKey)
		assert.Equal(t, int64(2), ev.Sequence)
		assert.Equal(t, recv, ev.Timestamp)
		require.Len(t, ev.Snapshot[orderbook.SideYes], 2)
		assert.Equal(t, orderbook.Level{Price: domain.PriceFromCents(22), Size: 333}, ev.Snapshot[orderbook.SideYes][1])
		assert.Len(t, ev.Snapshot[orderbook.SideNo], 2)
	})

	t.Run("delta", func(t *testing.T) {
		ev, err := DecodeKalshi([]byte(`{"type":"orderbook_delta","sid":2,"seq":3,
			"msg":{"market_ticker":"FED-23DEC-T3.00","price":96,"delta":-54,"side":"no"}}`), recv)
		require.NoError(t, err)
		assert.Equal(t, KindKalshiDelta, ev.Kind)
		assert.Equal(t, int64(3), ev.Sequence)
		require.Len(t, ev.Changes, 1)
		assert.Equal(t, LevelChange{Side: orderbook.SideNo, Price: domain.PriceFromCents(96), Size: -54}, ev.Changes[0])
	})

	t.Run("error frame", func(t *testing.T) {
		ev, err := DecodeKalshi([]byte(`{"id":7,"type":"error","msg":{"code":6,"msg":"Already subscribed"}}`), recv)
		require.NoError(t, err)
		assert.Equal(t, KindKalshiError, ev.Kind)
		assert.Contains(t, ev.Err.Error(), "Already subscribed")
	})

	t.Run("ticker", func(t *testing.T) {
		ev, err := DecodeKalshi([]byte(`{"type":"ticker_v2","sid":11,"msg":{"market_ticker":"X","yes_bid":45,"ts":1669149841}}`), recv)
		require.NoError(t, err)
		assert.Equal(t, KindKalshiTicker, ev.Kind)
		require.NotNil(t, ev.Ticker.YesBid)
		assert.Equal(t, domain.PriceFromCents(45), *ev.Ticker.YesBid)
		assert.Nil(t, ev.Ticker.YesAsk)
		assert.Equal(t, time.Unix(1669149841, 0).UTC(), ev.Timestamp)
	})

	malformed := map[string]string{
		"not json":        `{"type":`,
		"unknown type":    `{"type":"mystery"}`,
		"missing msg":     `{"type":"orderbook_snapshot","seq":1}`,
		"missing ticker":  `{"type":"orderbook_snapshot","seq":1,"msg":{"yes":[]}}`,
		"bad side":        `{"type":"orderbook_delta","seq":3,"msg":{"market_ticker":"X","price":5,"delta":1,"side":"maybe"}}`,
		"price range":     `{"type":"orderbook_delta","seq":3,"msg":{"market_ticker":"X","price":500,"delta":1,"side":"yes"}}`,
		"delta no seq":    `{"type":"orderbook_delta","msg":{"market_ticker":"X","price":5,"delta":1,"side":"yes"}}`,
		"wrong msg shape": `{"type":"orderbook_delta","seq":3,"msg":[1,2]}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeKalshi([]byte(raw), recv)
			require.ErrorIs(t, err, domain.ErrMalformedMessage)
			var mm *domain.MalformedMessageError
			require.ErrorAs(t, err, &mm)
			assert.Equal(t, domain.VenueKalshi, mm.Venue)
		})
	}
}

func TestDecodePolymarket(t *testing.T) {
	t.Run("book array", func(t *testing.T) {
		evs, err := DecodePolymarket([]byte(`[{"event_type":"book","asset_id":"111","market":"0xabc",
			"bids":[{"price":"0.48","size":"30"},{"price":"0.49","size":"20"}],
			"asks":[{"price":"0.52","size":"25"}],"timestamp":"1700000000000","hash":"h"}]`), recv)
		require.NoError(t, err)
		require.Len(t, evs, 1)
		ev := evs[0]
		assert.Equal(t, KindPolyBook, ev.Kind)
		assert.Equal(t, "111", ev.MarketKey)
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.Timestamp)
		assert.Equal(t, orderbook.Level{Price: 490000, Size: 20}, ev.Snapshot[orderbook.SideBid][1])
		assert.Len(t, ev.Snapshot[orderbook.SideAsk], 1)
	})

	t.Run("legacy price change", func(t *testing.T) {
		evs, err := DecodePolymarket([]byte(`{"event_type":"price_change","asset_id":"111","market":"0xabc",
			"changes":[{"price":"0.4","side":"SELL","size":"0"}],"timestamp":"1700000000001"}`), recv)
		require.NoError(t, err)
		require.Len(t, evs, 1)
		assert.Equal(t, []LevelChange{{Side: orderbook.SideAsk, Price: 400000, Size: 0}}, evs[0].Changes)
	})

	t.Run("batched price changes split per asset", func(t *testing.T) {
		evs, err := DecodePolymarket([]byte(`{"event_type":"price_change","market":"0xabc","timestamp":"1700000000002",
			"price_changes":[
				{"asset_id":"111","price":"0.5","size":"10","side":"BUY"},
				{"asset_id":"222","price":"0.5","size":"3","side":"SELL"},
				{"asset_id":"111","price":"0.51","size":"1","side":"BUY"}]}`), recv)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, "111", evs[0].MarketKey)
		assert.Len(t, evs[0].Changes, 2)
		assert.Equal(t, "222", evs[1].MarketKey)
		assert.Len(t, evs[1].Changes, 1)
	})

	t.Run("tick size and last trade", func(t *testing.T) {
		evs, err := DecodePolymarket([]byte(`[
			{"event_type":"tick_size_change","asset_id":"111","old_tick_size":"0.01","new_tick_size":"0.001"},
			{"event_type":"last_trade_price","asset_id":"111","price":"0.456","size":"219.21","side":"BUY"}]`), recv)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, KindPolyTickSize, evs[0].Kind)
		assert.Equal(t, "0.001", evs[0].TickSize)
		assert.Equal(t, recv, evs[0].Timestamp)
		assert.Equal(t, KindPolyLastTrade, evs[1].Kind)
		assert.Equal(t, domain.Price(456000), evs[1].Trade.Price)
	})

	malformed := map[string]string{
		"unknown event":  `{"event_type":"nope"}`,
		"bad price":      `{"event_type":"book","asset_id":"1","bids":[{"price":"x","size":"1"}]}`,
		"bad side":       `{"event_type":"price_change","asset_id":"1","changes":[{"price":"0.1","side":"HOLD","size":"1"}]}`,
		"no asset":       `{"event_type":"price_change","changes":[{"price":"0.1","side":"BUY","size":"1"}]}`,
		"no changes":     `{"event_type":"price_change","asset_id":"1"}`,
		"bad timestamp":  `{"event_type":"book","asset_id":"1","timestamp":"yesterday"}`,
		"broken array":   `[{"event_type":"book"`,
		"one bad in arr": `[{"event_type":"book","asset_id":"1"},{"event_type":"nope"}]`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePolymarket([]byte(raw), recv)
			require.ErrorIs(t, err, domain.ErrMalformedMessage)
		})
	}
}

func TestKindVenue(t *testing.T) {
	assert.Equal(t, domain.VenueKalshi, KindKalshiError.Venue())
	assert.Equal(t, domain.VenuePolymarket, KindPolyBook.Venue())
	assert.Equal(t, "price_change", KindPolyPriceChange.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
