package trading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var (
	t0       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testPair = domain.MarketPair{ID: "btc-100k", KalshiTicker: "KXBTC-100K", PolyYesAsset: "tok-yes", PolyNoAsset: "tok-no"}
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(opp domain.ArbitrageOpportunity) (domain.ExecutionResult, error)
}

func (f *fakeExecutor) Execute(_ context.Context, opp domain.ArbitrageOpportunity, _, _ float64) (domain.ExecutionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(opp)
	}
	return domain.ExecutionResult{ID: "e", Opportunity: opp, Success: true, TotalValue: 50}, nil
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func enabledSettings() *domain.TradingSettings {
	s := domain.DefaultTradingSettings()
	s.EnableTrading = true
	return &s
}

func newEngine(t *testing.T, ex Executor, s *domain.TradingSettings, clk *clock) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		Executor: ex,
		Settings: s,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      clk.Now,
	})
	require.NoError(t, err)
	return e
}

func opp(spread, size float64) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Pair:          testPair,
		Direction:     domain.DirectionAToB,
		Side:          domain.OutcomeYes,
		Spread:        spread,
		ExecutionSize: size,
		Timestamp:     t0,
	}
}

func TestFilterChain(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(e *Engine)
		opp    domain.ArbitrageOpportunity
		reason Reason
	}{
		{
			name:   "emergency shutdown",
			setup:  func(e *Engine) { e.EmergencyShutdown(context.Background(), "test") },
			opp:    opp(0.05, 10),
			reason: ReasonEmergencyShutdown,
		},
		{
			name:   "trading disabled",
			setup:  func(e *Engine) { e.DisableTrading() },
			opp:    opp(0.05, 10),
			reason: ReasonTradingDisabled,
		},
		{
			name:   "below min profit",
			opp:    opp(0.015, 10),
			reason: ReasonBelowMinProfit,
		},
		{
			name:   "position limit",
			opp:    opp(0.05, 101),
			reason: ReasonPositionLimit,
		},
		{
			name: "platform disabled",
			setup: func(e *Engine) {
				_, err := e.UpdateSettings(SettingsUpdate{PlatformEnabled: map[domain.Venue]bool{domain.VenuePolymarket: false}})
				if err != nil {
					panic(err)
				}
			},
			opp:    opp(0.05, 10),
			reason: ReasonPlatformDisabled,
		},
		{
			name: "shutdown wins over disabled",
			setup: func(e *Engine) {
				e.DisableTrading()
				e.EmergencyShutdown(context.Background(), "test")
			},
			opp:    opp(0.001, 1000),
			reason: ReasonEmergencyShutdown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExecutor{}
			e := newEngine(t, ex, enabledSettings(), &clock{now: t0})
			if tt.setup != nil {
				tt.setup(e)
			}
			d := e.Process(context.Background(), tt.opp)
			assert.Equal(t, StateFiltered, d.State)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Zero(t, ex.Calls())
			assert.Equal(t, int64(1), e.Stats().Filtered[tt.reason])
		})
	}
}

// A 1.5% spread against the 2% threshold is filtered and never
// reaches the coordinator.
func TestBelowMinProfitNeverExecutes(t *testing.T) {
	ex := &fakeExecutor{}
	e := newEngine(t, ex, enabledSettings(), &clock{now: t0})

	d := e.Process(context.Background(), opp(0.015, 10))
	assert.Equal(t, ReasonBelowMinProfit, d.Reason)
	assert.Zero(t, ex.Calls())
}

func TestCooldown(t *testing.T) {
	ex := &fakeExecutor{}
	clk := &clock{now: t0}
	e := newEngine(t, ex, enabledSettings(), clk)

	d := e.Process(context.Background(), opp(0.05, 10))
	require.Equal(t, StateExecuted, d.State)

	clk.Advance(59 * time.Second)
	d = e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, ReasonCooldown, d.Reason)

	other := opp(0.05, 10)
	other.Pair.ID = "eth-5k"
	d = e.Process(context.Background(), other)
	assert.Equal(t, StateExecuted, d.State, "cooldown is per pair")

	clk.Advance(time.Second)
	d = e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StateExecuted, d.State)
	assert.Equal(t, 3, ex.Calls())
}

func TestFailedExecutionDoesNotStartCooldown(t *testing.T) {
	ex := &fakeExecutor{fn: func(domain.ArbitrageOpportunity) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{ID: "e", Partial: true, Error: "partial execution"}, nil
	}}
	e := newEngine(t, ex, enabledSettings(), &clock{now: t0})

	d := e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StatePartial, d.State)
	require.NotNil(t, d.Result)

	d = e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StatePartial, d.State)

	st := e.Stats()
	assert.Equal(t, int64(2), st.Partial)
	assert.Zero(t, st.Succeeded)
	assert.Zero(t, st.TotalVolume)
}

func TestExecutorErrorAndPanic(t *testing.T) {
	ex := &fakeExecutor{fn: func(domain.ArbitrageOpportunity) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{}, domain.ErrPositionSize
	}}
	e := newEngine(t, ex, enabledSettings(), &clock{now: t0})

	d := e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StateError, d.State)
	assert.ErrorIs(t, d.Err, domain.ErrPositionSize)

	ex.fn = func(domain.ArbitrageOpportunity) (domain.ExecutionResult, error) { panic("boom") }
	d = e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StateError, d.State)

	st := e.Stats()
	assert.Equal(t, int64(2), st.Errors)
	assert.Zero(t, st.ActiveOrders, "slots are released after errors")
}

func TestStatsAccumulate(t *testing.T) {
	e := newEngine(t, &fakeExecutor{}, enabledSettings(), &clock{now: t0})

	e.Process(context.Background(), opp(0.05, 10))
	st := e.Stats()
	assert.Equal(t, int64(1), st.Received)
	assert.Equal(t, int64(1), st.Executed)
	assert.Equal(t, int64(1), st.Succeeded)
	assert.InDelta(t, 50, st.TotalVolume, 1e-9)
	assert.InDelta(t, 0.5, st.TotalProfit, 1e-9)
	assert.Equal(t, t0, st.LastExecution)
	assert.True(t, st.TradingEnabled)
}

func TestMaxConcurrentAndInFlightCooldown(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	ex := &fakeExecutor{fn: func(domain.ArbitrageOpportunity) (domain.ExecutionResult, error) {
		started <- struct{}{}
		<-release
		return domain.ExecutionResult{ID: "e", Success: true}, nil
	}}
	s := enabledSettings()
	s.MaxConcurrentOrders = 1
	e := newEngine(t, ex, s, &clock{now: t0})

	done := make(chan Decision)
	go func() { done <- e.Process(context.Background(), opp(0.05, 10)) }()
	<-started

	d := e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, ReasonCooldown, d.Reason, "an in-flight pair counts as cooling down")

	other := opp(0.05, 10)
	other.Pair.ID = "eth-5k"
	d = e.Process(context.Background(), other)
	assert.Equal(t, ReasonMaxConcurrent, d.Reason)
	assert.Equal(t, 1, e.Stats().ActiveOrders)

	close(release)
	assert.Equal(t, StateExecuted, (<-done).State)
	assert.Zero(t, e.Stats().ActiveOrders)
}

func TestEmergencyShutdownKeepsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	ex := &fakeExecutor{fn: func(domain.ArbitrageOpportunity) (domain.ExecutionResult, error) {
		close(started)
		<-release
		return domain.ExecutionResult{ID: "e", Success: true}, nil
	}}

	var shutdownReason string
	clk := &clock{now: t0}
	e, err := NewEngine(Config{
		Executor:   ex,
		Settings:   enabledSettings(),
		OnShutdown: func(_ context.Context, reason string) { shutdownReason = reason },
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        clk.Now,
	})
	require.NoError(t, err)

	done := make(chan Decision)
	go func() { done <- e.Process(context.Background(), opp(0.05, 10)) }()
	<-started

	e.EmergencyShutdown(context.Background(), "operator")
	assert.Equal(t, "operator", shutdownReason)
	assert.True(t, e.Stats().EmergencyShutdown)
	assert.False(t, e.Settings().EnableTrading)

	close(release)
	assert.Equal(t, StateExecuted, (<-done).State)

	assert.ErrorIs(t, e.EnableTrading(), ErrShutdown)
	e.ResetShutdown()
	assert.False(t, e.Settings().EnableTrading)
	require.NoError(t, e.EnableTrading())
	assert.True(t, e.Settings().EnableTrading)
}

func TestUpdateSettingsAllOrNothing(t *testing.T) {
	e := newEngine(t, &fakeExecutor{}, nil, &clock{now: t0})
	before := e.Settings()

	minProfit, slippage := 0.03, 1.5
	_, err := e.UpdateSettings(SettingsUpdate{MinProfitThreshold: &minProfit, MaxSlippage: &slippage})
	require.Error(t, err)

	var verr *domain.SettingsValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "max_slippage", verr.Field)
	assert.ErrorIs(t, err, domain.ErrSettingsValidation)
	assert.Equal(t, before, e.Settings())

	slippage = 0.02
	got, err := e.UpdateSettings(SettingsUpdate{MinProfitThreshold: &minProfit, MaxSlippage: &slippage})
	require.NoError(t, err)
	assert.Equal(t, 0.03, got.MinProfitThreshold)
	assert.Equal(t, 0.02, got.MaxSlippage)
	assert.Equal(t, before.CooldownSeconds, got.CooldownSeconds)
}

func TestUpdateSettingsValidation(t *testing.T) {
	neg, zero, big := -1.0, 0.0, 2.0
	zeroInt := 0
	tests := []struct {
		name  string
		u     SettingsUpdate
		field string
	}{
		{"negative cooldown", SettingsUpdate{CooldownSeconds: &neg}, "cooldown_seconds"},
		{"zero position", SettingsUpdate{MaxPositionSize: &zero}, "max_position_size"},
		{"profit above one", SettingsUpdate{MinProfitThreshold: &big}, "min_profit_threshold"},
		{"negative slippage", SettingsUpdate{MaxSlippage: &neg}, "max_slippage"},
		{"zero concurrency", SettingsUpdate{MaxConcurrentOrders: &zeroInt}, "max_concurrent_orders"},
		{"unknown venue", SettingsUpdate{PlatformEnabled: map[domain.Venue]bool{"binance": true}}, "platform_enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, &fakeExecutor{}, nil, &clock{now: t0})
			_, err := e.UpdateSettings(tt.u)
			var verr *domain.SettingsValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

type fakeLocker struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

func TestPairLocker(t *testing.T) {
	locker := &fakeLocker{}
	ex := &fakeExecutor{}
	e, err := NewEngine(Config{
		Executor: ex,
		Settings: enabledSettings(),
		Locker:   locker,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return t0 },
	})
	require.NoError(t, err)

	d := e.Process(context.Background(), opp(0.05, 10))
	assert.Equal(t, StateExecuted, d.State)
	assert.Equal(t, []string{testPair.ID}, locker.acquired)
	assert.Equal(t, 1, locker.released)

	locker.err = domain.ErrLockHeld
	other := opp(0.05, 10)
	other.Pair.ID = "eth-5k"
	d = e.Process(context.Background(), other)
	assert.Equal(t, ReasonPairLocked, d.Reason)
	assert.Equal(t, 1, ex.Calls())
	assert.Zero(t, e.Stats().ActiveOrders)
}

func TestRunDrainsAlerts(t *testing.T) {
	ex := &fakeExecutor{}
	e := newEngine(t, ex, enabledSettings(), &clock{now: t0})

	alerts := make(chan domain.ArbitrageOpportunity, 2)
	alerts <- opp(0.05, 10)
	below := opp(0.01, 10)
	below.Pair.ID = "eth-5k"
	alerts <- below
	close(alerts)

	require.NoError(t, e.Run(context.Background(), alerts))
	assert.Equal(t, 1, ex.Calls())
	st := e.Stats()
	assert.Equal(t, int64(2), st.Received)
	assert.Equal(t, int64(1), st.Succeeded)
	assert.Equal(t, int64(1), st.Filtered[ReasonBelowMinProfit])
}

func TestNewEngineRequiresExecutor(t *testing.T) {
	_, err := NewEngine(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)
}
