package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

type detectorFixture struct {
	d     *Detector
	books *orderbook.Registry
}

func newDetectorFixture(t *testing.T, buffer int) detectorFixture {
	t.Helper()
	books := orderbook.NewRegistry()
	d := NewDetector(DetectorConfig{
		Calculator:  NewCalculator(noFees()),
		Books:       books,
		AlertBuffer: buffer,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return now },
	})
	require.NoError(t, d.AddMarketPair(testPair.ID, testPair.KalshiTicker, testPair.PolyYesAsset, testPair.PolyNoAsset))
	return detectorFixture{d: d, books: books}
}

func (f detectorFixture) setKalshiYesBid(t *testing.T, price string, seq int64) {
	t.Helper()
	require.NoError(t, f.books.Kalshi(testPair.KalshiTicker).ApplySnapshot(
		map[orderbook.Side][]orderbook.Level{orderbook.SideYes: {lvl(price, 100)}}, seq, now))
	f.d.OnBookChange(context.Background(), domain.VenueKalshi, testPair.KalshiTicker)
}

func (f detectorFixture) setPolyNoAsk(t *testing.T, price string) {
	t.Helper()
	require.NoError(t, f.books.Polymarket(testPair.PolyNoAsset).ApplySnapshot(
		map[orderbook.Side][]orderbook.Level{orderbook.SideAsk: {lvl(price, 100)}}, 0, now))
	f.d.OnBookChange(context.Background(), domain.VenuePolymarket, testPair.PolyNoAsset)
}

func drain(d *Detector) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for {
		select {
		case o := <-d.Alerts():
			out = append(out, o)
		default:
			return out
		}
	}
}

func TestDetector_BelowThresholdNotAlerted(t *testing.T) {
	f := newDetectorFixture(t, 8)
	f.setPolyNoAsk(t, "0.30")
	f.setKalshiYesBid(t, "0.65", 1)

	assert.Empty(t, drain(f.d))
}

func TestDetector_AlertsAboveThreshold(t *testing.T) {
	f := newDetectorFixture(t, 8)
	f.setPolyNoAsk(t, "0.30")
	f.setKalshiYesBid(t, "0.75", 1)

	alerts := drain(f.d)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.DirectionAToB, alerts[0].Direction)
	assert.Equal(t, domain.OutcomeYes, alerts[0].Side)
	assert.InDelta(t, 0.05, alerts[0].Spread, 1e-9)
	assert.Equal(t, uint64(1), f.d.Stats().Emitted)
}

func TestDetector_JustBelowThreshold(t *testing.T) {
	f := newDetectorFixture(t, 8)
	f.setPolyNoAsk(t, "0.299")
	f.setKalshiYesBid(t, "0.72", 1)

	assert.Empty(t, drain(f.d))

	opps, err := f.d.CheckPair(testPair.ID)
	require.NoError(t, err)
	assert.Empty(t, opps)

	opps, err = f.d.CheckPair(testPair.ID, Unfiltered())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.019, opps[0].Spread, 1e-9)
	// CheckPair never alerts.
	assert.Empty(t, drain(f.d))
}

func TestDetector_DedupWhileConditionPersists(t *testing.T) {
	f := newDetectorFixture(t, 8)
	f.setPolyNoAsk(t, "0.30")
	f.setKalshiYesBid(t, "0.75", 1)
	f.setKalshiYesBid(t, "0.76", 2)
	f.setKalshiYesBid(t, "0.74", 3)
	require.Len(t, drain(f.d), 1)
	assert.Equal(t, uint64(2), f.d.Stats().Suppressed)
	assert.Equal(t, 1, f.d.Stats().Active)

	// Condition clears, then returns: alert again.
	f.setKalshiYesBid(t, "0.60", 4)
	assert.Equal(t, 0, f.d.Stats().Active)
	f.setKalshiYesBid(t, "0.75", 5)
	assert.Len(t, drain(f.d), 1)
}

func TestDetector_DropsOldestWhenFull(t *testing.T) {
	f := newDetectorFixture(t, 1)
	f.setPolyNoAsk(t, "0.30")
	f.setKalshiYesBid(t, "0.75", 1)

	// Clear and re-trigger without consuming; the second alert replaces the first.
	f.setKalshiYesBid(t, "0.10", 2)
	f.setKalshiYesBid(t, "0.80", 3)

	alerts := drain(f.d)
	require.Len(t, alerts, 1)
	assert.InDelta(t, 0.10, alerts[0].Spread, 1e-9)
	assert.Equal(t, uint64(1), f.d.Stats().Dropped)
}

func TestDetector_UnrelatedBookIgnored(t *testing.T) {
	f := newDetectorFixture(t, 8)
	f.d.OnBookChange(context.Background(), domain.VenueKalshi, "OTHER")
	assert.Equal(t, uint64(0), f.d.Stats().Evaluations)
}

func TestDetector_Pairs(t *testing.T) {
	f := newDetectorFixture(t, 8)

	require.Error(t, f.d.AddMarketPair("", "a", "b", "c"))
	require.Error(t, f.d.AddMarketPair("p", "a", "", "c"))
	require.Error(t, f.d.AddMarketPair("p", "a", "b", "b"))

	require.NoError(t, f.d.AddMarketPair("another", "KXB", "y2", "n2"))
	pairs := f.d.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "another", pairs[0].ID)

	// Re-adding replaces the mapping and its index.
	require.NoError(t, f.d.AddMarketPair("another", "KXC", "y3", "n3"))
	f.d.OnBookChange(context.Background(), domain.VenueKalshi, "KXB")
	assert.Equal(t, uint64(0), f.d.Stats().Evaluations)
	f.d.OnBookChange(context.Background(), domain.VenueKalshi, "KXC")
	assert.Equal(t, uint64(1), f.d.Stats().Evaluations)

	assert.True(t, f.d.RemoveMarketPair("another"))
	assert.False(t, f.d.RemoveMarketPair("another"))

	_, err := f.d.CheckPair("another")
	require.ErrorIs(t, err, domain.ErrUnknownPair)
}

func TestDetector_SetMinSpread(t *testing.T) {
	f := newDetectorFixture(t, 8)
	assert.Equal(t, DefaultMinSpread, f.d.MinSpread())

	require.ErrorIs(t, f.d.SetMinSpread(1.5), domain.ErrSettingsValidation)
	assert.Equal(t, DefaultMinSpread, f.d.MinSpread())

	require.NoError(t, f.d.SetMinSpread(0.01))
	f.setPolyNoAsk(t, "0.299")
	f.setKalshiYesBid(t, "0.72", 1)
	assert.Len(t, drain(f.d), 1)
}

func TestDetector_SizeLimitFollowsProvider(t *testing.T) {
	books := orderbook.NewRegistry()
	limit := 40.0
	d := NewDetector(DetectorConfig{
		Calculator:    NewCalculator(noFees()),
		Books:         books,
		PositionLimit: 60,
		SizeLimit:     func() float64 { return limit },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           func() time.Time { return now },
	})
	require.NoError(t, d.AddMarketPair(testPair.ID, testPair.KalshiTicker, testPair.PolyYesAsset, testPair.PolyNoAsset))
	f := detectorFixture{d: d, books: books}
	f.setPolyNoAsk(t, "0.30")
	f.setKalshiYesBid(t, "0.75", 1)

	check := func() float64 {
		opps, err := d.CheckPair(testPair.ID)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		return opps[0].ExecutionSize
	}
	assert.Equal(t, 40.0, check())

	limit = 80
	assert.Equal(t, 60.0, check(), "static limit still applies when tighter")

	limit = 0
	assert.Equal(t, 60.0, check())
}
