// Package arbitrage finds cross-venue trades between a Kalshi market and
// the pair of Polymarket outcome tokens that describe the same event.
package arbitrage

import (
	"math"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/fee"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

// Input is the current view of the three books behind one pair. Any of the
// snapshots may be nil when a book has not been seen yet.
type Input struct {
	Pair    domain.MarketPair
	Kalshi  *orderbook.Snapshot
	PolyYes *orderbook.Snapshot
	PolyNo  *orderbook.Snapshot
	Now     time.Time
}

// Calculator evaluates the four two-leg strategies of a pair.
type Calculator struct {
	fees *fee.Model
}

// NewCalculator returns a calculator pricing Kalshi legs with fees.
func NewCalculator(fees *fee.Model) *Calculator {
	return &Calculator{fees: fees}
}

// quote is the top of one ladder as seen by a strategy leg.
type quote struct {
	price domain.Price
	size  float64
	ok    bool
}

func top(snap *orderbook.Snapshot, side orderbook.Side, bid bool) quote {
	if snap == nil || !snap.Ready() {
		return quote{}
	}
	var (
		lvl orderbook.Level
		ok  bool
	)
	if bid {
		lvl, ok = snap.BestBid(side)
	} else {
		lvl, ok = snap.BestAsk(side)
	}
	if !ok {
		return quote{}
	}
	return quote{price: lvl.Price, size: lvl.Size, ok: true}
}

// complement turns a bid on one Kalshi outcome into an ask on the other:
// buying YES at 1-p is matched against a NO bid at p.
func complement(q quote) quote {
	if !q.ok {
		return q
	}
	return quote{price: q.price.Complement(), size: q.size, ok: true}
}

type books struct {
	aYesBid, aNoBid, aYesAsk, aNoAsk quote
	bYesBid, bYesAsk, bNoBid, bNoAsk quote
}

func readBooks(in Input) books {
	b := books{
		aYesBid: top(in.Kalshi, orderbook.SideYes, true),
		aNoBid:  top(in.Kalshi, orderbook.SideNo, true),
		bYesBid: top(in.PolyYes, orderbook.SideBid, true),
		bYesAsk: top(in.PolyYes, orderbook.SideAsk, false),
		bNoBid:  top(in.PolyNo, orderbook.SideBid, true),
		bNoAsk:  top(in.PolyNo, orderbook.SideAsk, false),
	}
	b.aYesAsk = complement(b.aNoBid)
	b.aNoAsk = complement(b.aYesBid)
	return b
}

// strategy is one row of the strategy table. Leg 1 sells at a bid, leg 2
// buys at an ask; kalshiSells says which of them trades on Kalshi.
type strategy struct {
	direction   domain.Direction
	side        domain.Outcome
	kalshiSells bool
	pick        func(books) (sell, buy quote)
}

var strategies = []strategy{
	{
		// Kalshi YES rich: sell Kalshi YES, buy Polymarket NO.
		direction: domain.DirectionAToB, side: domain.OutcomeYes, kalshiSells: true,
		pick: func(b books) (quote, quote) { return b.aYesBid, b.bNoAsk },
	},
	{
		// Polymarket YES rich: sell Polymarket YES, buy Kalshi NO.
		direction: domain.DirectionBToA, side: domain.OutcomeYes, kalshiSells: false,
		pick: func(b books) (quote, quote) { return b.bYesBid, b.aNoAsk },
	},
	{
		// Kalshi NO rich: sell Kalshi NO, buy Polymarket YES.
		direction: domain.DirectionAToB, side: domain.OutcomeNo, kalshiSells: true,
		pick: func(b books) (quote, quote) { return b.aNoBid, b.bYesAsk },
	},
	{
		// Polymarket NO rich: sell Polymarket NO, buy Kalshi YES.
		direction: domain.DirectionBToA, side: domain.OutcomeNo, kalshiSells: false,
		pick: func(b books) (quote, quote) { return b.bNoBid, b.aYesAsk },
	},
}

// wholeContracts floors size to the whole contracts Kalshi can trade. Both
// legs are sized with it so they stay matched.
func wholeContracts(size float64) float64 {
	return math.Floor(size + 1e-9)
}

// Compute returns every strategy whose two legs are quoted, whatever its
// spread. positionLimit caps the execution size; zero means no cap. Sizes
// are whole contracts and a strategy with less than one is skipped.
func (c *Calculator) Compute(in Input, positionLimit float64) []domain.ArbitrageOpportunity {
	b := readBooks(in)
	tier := c.fees.Tier(in.Pair.KalshiTicker)

	var out []domain.ArbitrageOpportunity
	for _, s := range strategies {
		sell, buy := s.pick(b)
		if !sell.ok || !buy.ok {
			continue
		}
		size := min(sell.size, buy.size)
		if positionLimit > 0 {
			size = min(size, positionLimit)
		}
		size = wholeContracts(size)
		if size < 1 {
			continue
		}

		sellRaw, buyRaw := sell.price.Float64(), buy.price.Float64()
		var sellEff, buyEff, quoteA, quoteB, priceA, priceB float64
		if s.kalshiSells {
			sellEff = c.fees.EffectiveBid(sellRaw, size, tier)
			buyEff = c.fees.PolymarketAsk(buyRaw)
			quoteA, quoteB = sellRaw, buyRaw
			priceA, priceB = sellEff, buyEff
		} else {
			sellEff = c.fees.PolymarketBid(sellRaw)
			buyEff = c.fees.EffectiveAsk(buyRaw, size, tier)
			quoteA, quoteB = buyRaw, sellRaw
			priceA, priceB = buyEff, sellEff
		}

		out = append(out, domain.ArbitrageOpportunity{
			Pair:          in.Pair,
			Direction:     s.direction,
			Side:          s.side,
			PriceA:        priceA,
			PriceB:        priceB,
			QuoteA:        quoteA,
			QuoteB:        quoteB,
			Spread:        sellEff + buyEff - 1.0,
			ExecutionSize: size,
			Timestamp:     in.Now,
		})
	}
	return out
}
