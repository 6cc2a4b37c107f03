package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/fee"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
	"github.com/alanyoungcy/crossarb/internal/trading"
)

type fillingExecutor struct{ sizes []float64 }

func (f *fillingExecutor) Execute(_ context.Context, opp domain.ArbitrageOpportunity, _, _ float64) (domain.ExecutionResult, error) {
	f.sizes = append(f.sizes, opp.ExecutionSize)
	return domain.ExecutionResult{ID: "exec", Opportunity: opp, Success: true}, nil
}

func level(t *testing.T, price string, size float64) orderbook.Level {
	t.Helper()
	p, err := domain.ParsePrice(price)
	require.NoError(t, err)
	return orderbook.Level{Price: p, Size: size}
}

func TestDetectorSizesWithEngineLimit(t *testing.T) {
	pair := domain.MarketPair{ID: "deep", KalshiTicker: "KXDEEP", PolyYesAsset: "deep-yes", PolyNoAsset: "deep-no"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	deps := &Dependencies{Books: orderbook.NewRegistry()}
	deps.Detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Calculator: arbitrage.NewCalculator(fee.New(fee.Config{})),
		Books:      deps.Books,
		SizeLimit:  engineSizeLimit(deps),
		Logger:     discardLogger(),
		Now:        func() time.Time { return now },
	})
	require.NoError(t, deps.Detector.AddMarketPair(pair.ID, pair.KalshiTicker, pair.PolyYesAsset, pair.PolyNoAsset))

	require.NoError(t, deps.Books.Kalshi(pair.KalshiTicker).ApplySnapshot(
		map[orderbook.Side][]orderbook.Level{orderbook.SideYes: {level(t, "0.75", 500)}}, 1, now))
	require.NoError(t, deps.Books.Polymarket(pair.PolyNoAsset).ApplySnapshot(
		map[orderbook.Side][]orderbook.Level{orderbook.SideAsk: {level(t, "0.30", 500)}}, 0, now))

	check := func() domain.ArbitrageOpportunity {
		opps, err := deps.Detector.CheckPair(pair.ID)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		return opps[0]
	}
	assert.Equal(t, 500.0, check().ExecutionSize, "no engine, no cap")

	ex := &fillingExecutor{}
	settings := domain.DefaultTradingSettings()
	settings.EnableTrading = true
	engine, err := trading.NewEngine(trading.Config{Executor: ex, Settings: &settings, Logger: discardLogger()})
	require.NoError(t, err)
	deps.Engine = engine

	opp := check()
	assert.Equal(t, settings.MaxPositionSize, opp.ExecutionSize)
	d := engine.Process(context.Background(), opp)
	assert.Equal(t, trading.StateExecuted, d.State, "a capped opportunity passes the position filter")

	bigger := 250.0
	_, err = engine.UpdateSettings(trading.SettingsUpdate{MaxPositionSize: &bigger})
	require.NoError(t, err)
	assert.Equal(t, 250.0, check().ExecutionSize)

	assert.Equal(t, []float64{100}, ex.sizes)
}
