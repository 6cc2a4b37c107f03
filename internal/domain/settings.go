package domain

import "math"

// TradingSettings is the runtime policy read on every opportunity.
type TradingSettings struct {
	EnableTrading       bool           `json:"enable_trading"`
	CooldownSeconds     float64        `json:"cooldown_seconds"`
	MaxPositionSize     float64        `json:"max_position_size"`
	MinProfitThreshold  float64        `json:"min_profit_threshold"`
	MaxSlippage         float64        `json:"max_slippage"`
	PlatformEnabled     map[Venue]bool `json:"platform_enabled"`
	MaxConcurrentOrders int            `json:"max_concurrent_orders"`
}

// Clone returns a deep copy.
func (s TradingSettings) Clone() TradingSettings {
	out := s
	out.PlatformEnabled = make(map[Venue]bool, len(s.PlatformEnabled))
	for k, v := range s.PlatformEnabled {
		out.PlatformEnabled[k] = v
	}
	return out
}

// Validate checks every range constraint and returns the first violation.
func (s TradingSettings) Validate() error {
	switch {
	case !unitInterval(s.MinProfitThreshold):
		return &SettingsValidationError{Field: "min_profit_threshold", Value: s.MinProfitThreshold, Rule: "must be within [0, 1]"}
	case !unitInterval(s.MaxSlippage):
		return &SettingsValidationError{Field: "max_slippage", Value: s.MaxSlippage, Rule: "must be within [0, 1]"}
	case !finite(s.CooldownSeconds) || s.CooldownSeconds < 0:
		return &SettingsValidationError{Field: "cooldown_seconds", Value: s.CooldownSeconds, Rule: "must be >= 0"}
	case !finite(s.MaxPositionSize) || s.MaxPositionSize <= 0:
		return &SettingsValidationError{Field: "max_position_size", Value: s.MaxPositionSize, Rule: "must be > 0"}
	case s.MaxConcurrentOrders < 1:
		return &SettingsValidationError{Field: "max_concurrent_orders", Value: s.MaxConcurrentOrders, Rule: "must be >= 1"}
	}
	for v := range s.PlatformEnabled {
		if !v.Valid() {
			return &SettingsValidationError{Field: "platform_enabled", Value: v, Rule: "unknown venue"}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unitInterval(v float64) bool {
	return finite(v) && v >= 0 && v <= 1
}

// DefaultTradingSettings starts with trading disabled.
func DefaultTradingSettings() TradingSettings {
	return TradingSettings{
		EnableTrading:       false,
		CooldownSeconds:     60,
		MaxPositionSize:     100,
		MinProfitThreshold:  0.02,
		MaxSlippage:         0.01,
		PlatformEnabled:     map[Venue]bool{VenueKalshi: true, VenuePolymarket: true},
		MaxConcurrentOrders: 2,
	}
}
