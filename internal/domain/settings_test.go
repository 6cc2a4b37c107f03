package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TradingSettings)
		field  string
	}{
		{"defaults", func(*TradingSettings) {}, ""},
		{"slippage above one", func(s *TradingSettings) { s.MaxSlippage = 1.5 }, "max_slippage"},
		{"nan slippage", func(s *TradingSettings) { s.MaxSlippage = math.NaN() }, "max_slippage"},
		{"nan threshold", func(s *TradingSettings) { s.MinProfitThreshold = math.NaN() }, "min_profit_threshold"},
		{"nan cooldown", func(s *TradingSettings) { s.CooldownSeconds = math.NaN() }, "cooldown_seconds"},
		{"infinite position", func(s *TradingSettings) { s.MaxPositionSize = math.Inf(1) }, "max_position_size"},
		{"nan position", func(s *TradingSettings) { s.MaxPositionSize = math.NaN() }, "max_position_size"},
		{"no concurrency", func(s *TradingSettings) { s.MaxConcurrentOrders = 0 }, "max_concurrent_orders"},
		{"unknown venue", func(s *TradingSettings) { s.PlatformEnabled["binance"] = true }, "platform_enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultTradingSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrSettingsValidation)
			var verr *SettingsValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
