// Package fee computes venue trading fees and the effective prices they
// imply. Everything here is pure and safe for concurrent use.
package fee

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tier selects the Kalshi fee schedule for a market.
type Tier int

const (
	TierGeneral Tier = iota
	TierMaker
)

func (t Tier) String() string {
	if t == TierMaker {
		return "maker"
	}
	return "general"
}

const (
	DefaultGeneralRate = 0.07
	DefaultMakerRate   = 0.0175
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Config holds the fee parameters. Zero rates are taken literally, so use
// DefaultConfig as the starting point.
type Config struct {
	GeneralRate float64
	MakerRate   float64
	// MakerMarkets are Kalshi market identifiers, or identifier prefixes,
	// that are charged the maker rate.
	MakerMarkets []string
	// PolymarketRate is charged on the notional of Polymarket legs.
	PolymarketRate float64
}

// DefaultConfig returns the published Kalshi rates and no Polymarket fee.
func DefaultConfig() Config {
	return Config{
		GeneralRate: DefaultGeneralRate,
		MakerRate:   DefaultMakerRate,
	}
}

// Model prices fees for both venues.
type Model struct {
	generalRate decimal.Decimal
	makerRate   decimal.Decimal
	polyRate    decimal.Decimal
	makerIDs    []string
}

// New builds a Model from cfg.
func New(cfg Config) *Model {
	ids := make([]string, 0, len(cfg.MakerMarkets))
	for _, id := range cfg.MakerMarkets {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &Model{
		generalRate: decimal.NewFromFloat(cfg.GeneralRate),
		makerRate:   decimal.NewFromFloat(cfg.MakerRate),
		polyRate:    decimal.NewFromFloat(cfg.PolymarketRate),
		makerIDs:    ids,
	}
}

// Tier returns TierMaker when marketID equals, or starts with, one of the
// configured maker identifiers.
func (m *Model) Tier(marketID string) Tier {
	for _, id := range m.makerIDs {
		if strings.HasPrefix(marketID, id) {
			return TierMaker
		}
	}
	return TierGeneral
}

// TradingFee is the Kalshi fee in value units for q contracts at price p:
//
//	ceil(rate * q * p * (1-p) * 100) / 100
//
// Prices outside (0,1) and non-positive quantities cost nothing.
func (m *Model) TradingFee(p, q float64, tier Tier) float64 {
	return m.fee(p, q, tier).InexactFloat64()
}

// EffectiveBid is what selling at p actually yields per contract.
func (m *Model) EffectiveBid(p, q float64, tier Tier) float64 {
	if q <= 0 {
		return p
	}
	dp := decimal.NewFromFloat(p)
	eff := dp.Sub(m.fee(p, q, tier).Div(decimal.NewFromFloat(q)))
	if eff.IsNegative() {
		return 0
	}
	return eff.InexactFloat64()
}

// EffectiveAsk is what buying at p actually costs per contract.
func (m *Model) EffectiveAsk(p, q float64, tier Tier) float64 {
	if q <= 0 {
		return p
	}
	dp := decimal.NewFromFloat(p)
	eff := dp.Add(m.fee(p, q, tier).Div(decimal.NewFromFloat(q)))
	if eff.GreaterThan(one) {
		return 1
	}
	return eff.InexactFloat64()
}

// PolymarketBid applies the configured Polymarket rate to a sell at p.
// With the default zero rate the price passes through untouched.
func (m *Model) PolymarketBid(p float64) float64 {
	if m.polyRate.IsZero() {
		return p
	}
	dp := decimal.NewFromFloat(p)
	eff := dp.Sub(dp.Mul(m.polyRate))
	if eff.IsNegative() {
		return 0
	}
	return eff.InexactFloat64()
}

// PolymarketAsk applies the configured Polymarket rate to a buy at p.
func (m *Model) PolymarketAsk(p float64) float64 {
	if m.polyRate.IsZero() {
		return p
	}
	dp := decimal.NewFromFloat(p)
	eff := dp.Add(dp.Mul(m.polyRate))
	if eff.GreaterThan(one) {
		return 1
	}
	return eff.InexactFloat64()
}

func (m *Model) fee(p, q float64, tier Tier) decimal.Decimal {
	if p <= 0 || p >= 1 || q <= 0 {
		return decimal.Zero
	}
	rate := m.generalRate
	if tier == TierMaker {
		rate = m.makerRate
	}
	dp := decimal.NewFromFloat(p)
	raw := rate.
		Mul(decimal.NewFromFloat(q)).
		Mul(dp).
		Mul(one.Sub(dp)).
		Mul(hundred)
	return raw.Ceil().Div(hundred)
}
