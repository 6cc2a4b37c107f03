package domain

import "time"

// ArbitrageOpportunity is one candidate two-leg trade. Leg A always trades on
// Kalshi and leg B on Polymarket; Direction says which of them is sold.
type ArbitrageOpportunity struct {
	Pair      MarketPair `json:"pair"`
	Direction Direction  `json:"direction"`
	Side      Outcome    `json:"side"`

	// PriceA and PriceB are the effective (fee adjusted) leg prices.
	PriceA float64 `json:"price_a"`
	PriceB float64 `json:"price_b"`
	// QuoteA and QuoteB are the raw quoted prices, used as order limits.
	QuoteA float64 `json:"quote_a"`
	QuoteB float64 `json:"quote_b"`

	Spread        float64   `json:"spread"`
	ExecutionSize float64   `json:"execution_size"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key identifies the condition an opportunity describes, ignoring prices.
func (o ArbitrageOpportunity) Key() OpportunityKey {
	return OpportunityKey{PairID: o.Pair.ID, Direction: o.Direction, Side: o.Side}
}

// ExpectedProfit is the spread captured over the execution size.
func (o ArbitrageOpportunity) ExpectedProfit() float64 {
	return o.Spread * o.ExecutionSize
}

// OpportunityKey is the dedup key of an opportunity.
type OpportunityKey struct {
	PairID    string
	Direction Direction
	Side      Outcome
}
