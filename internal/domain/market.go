package domain

// Venue identifies one of the two prediction-market venues.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool {
	return v == VenueKalshi || v == VenuePolymarket
}

// Outcome is one side of a binary contract.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Action is the order action sent to a venue.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Direction says which venue holds the overpriced leg that is sold.
type Direction string

const (
	DirectionAToB Direction = "A_to_B"
	DirectionBToA Direction = "B_to_A"
)

// MarketPair links one Kalshi market to the two Polymarket outcome tokens
// that describe the same event.
type MarketPair struct {
	ID           string `json:"id"`
	KalshiTicker string `json:"kalshi_ticker"`
	PolyYesAsset string `json:"poly_yes_asset"`
	PolyNoAsset  string `json:"poly_no_asset"`
}

// References reports whether the pair depends on the book (venue, key).
func (p MarketPair) References(venue Venue, key string) bool {
	switch venue {
	case VenueKalshi:
		return p.KalshiTicker == key
	case VenuePolymarket:
		return p.PolyYesAsset == key || p.PolyNoAsset == key
	}
	return false
}
