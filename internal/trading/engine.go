// Package trading is the policy layer between the detector and the
// execution coordinator.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ErrShutdown is returned by EnableTrading while an emergency shutdown is
// in force.
var ErrShutdown = errors.New("trading: emergency shutdown active")

// Reason explains why an opportunity was not executed.
type Reason string

const (
	ReasonEmergencyShutdown Reason = "emergency_shutdown"
	ReasonTradingDisabled   Reason = "trading_disabled"
	ReasonBelowMinProfit    Reason = "below_min_profit"
	ReasonCooldown          Reason = "cooldown"
	ReasonPositionLimit     Reason = "position_limit"
	ReasonPlatformDisabled  Reason = "platform_disabled"
	ReasonMaxConcurrent     Reason = "max_concurrent"
	ReasonPairLocked        Reason = "pair_locked"
)

// State is where an opportunity ended up.
type State string

const (
	StateFiltered State = "filtered"
	StateExecuted State = "executed"
	StatePartial  State = "partial_failure"
	StateFailed   State = "failed"
	StateError    State = "exception"
)

// Decision is the outcome of Process.
type Decision struct {
	Opportunity domain.ArbitrageOpportunity
	State       State
	Reason      Reason
	Result      *domain.ExecutionResult
	Err         error
}

// Executor runs a two-leg execution. Implemented by executor.Coordinator.
type Executor interface {
	Execute(ctx context.Context, opp domain.ArbitrageOpportunity, maxSlippage, maxPositionSize float64) (domain.ExecutionResult, error)
}

// Config configures an Engine. Settings defaults to
// domain.DefaultTradingSettings; Locker is optional.
type Config struct {
	Executor   Executor
	Settings   *domain.TradingSettings
	Locker     domain.PairLocker
	LockTTL    time.Duration
	OnShutdown func(ctx context.Context, reason string)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Received          int64            `json:"received"`
	Filtered          map[Reason]int64 `json:"filtered"`
	Executed          int64            `json:"executed"`
	Succeeded         int64            `json:"succeeded"`
	Partial           int64            `json:"partial"`
	Failed            int64            `json:"failed"`
	Errors            int64            `json:"errors"`
	TotalVolume       float64          `json:"total_volume"`
	TotalProfit       float64          `json:"total_profit"`
	ActiveOrders      int              `json:"active_orders"`
	TradingEnabled    bool             `json:"trading_enabled"`
	EmergencyShutdown bool             `json:"emergency_shutdown"`
	LastExecution     time.Time        `json:"last_execution,omitzero"`
}

// Engine filters opportunities and hands the survivors to the executor.
// One mutex guards settings, cooldowns, active orders and stats; it is
// never held across an execution.
type Engine struct {
	exec       Executor
	locker     domain.PairLocker
	lockTTL    time.Duration
	onShutdown func(ctx context.Context, reason string)
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	settings  domain.TradingSettings
	shutdown  bool
	cooldowns map[string]time.Time
	active    map[string]int
	inflight  int
	stats     Stats

	wg sync.WaitGroup
}

// NewEngine creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, errors.New("trading: executor is required")
	}
	settings := domain.DefaultTradingSettings()
	if cfg.Settings != nil {
		settings = cfg.Settings.Clone()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("trading: initial settings: %w", err)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		exec:       cfg.Executor,
		locker:     cfg.Locker,
		lockTTL:    cfg.LockTTL,
		onShutdown: cfg.OnShutdown,
		logger:     cfg.Logger.With(slog.String("component", "trading_engine")),
		now:        cfg.Now,
		settings:   settings,
		cooldowns:  make(map[string]time.Time),
		active:     make(map[string]int),
		stats:      Stats{Filtered: make(map[Reason]int64)},
	}, nil
}

// Run consumes alerts until ctx is done or the channel closes. Admitted
// opportunities execute concurrently, bounded by max_concurrent_orders.
// In-flight executions are not cancelled; Run waits for them before
// returning.
func (e *Engine) Run(ctx context.Context, alerts <-chan domain.ArbitrageOpportunity) error {
	defer e.wg.Wait()
	execCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case opp, ok := <-alerts:
			if !ok {
				return nil
			}
			admitted, d := e.admit(ctx, opp)
			if !admitted {
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.execute(execCtx, d.Opportunity, d.settings)
			}()
		}
	}
}

// Process runs one opportunity through the filter chain and, if it
// passes, executes it synchronously.
func (e *Engine) Process(ctx context.Context, opp domain.ArbitrageOpportunity) Decision {
	admitted, a := e.admit(ctx, opp)
	if !admitted {
		return a.Decision
	}
	return e.execute(ctx, opp, a.settings)
}

type admission struct {
	Decision
	settings domain.TradingSettings
}

// admit applies the filter chain and, on success, reserves an active slot
// for the pair.
func (e *Engine) admit(ctx context.Context, opp domain.ArbitrageOpportunity) (bool, admission) {
	now := e.now()

	e.mu.Lock()
	e.stats.Received++
	reason := e.shouldProcessLocked(opp, now)
	if reason != "" {
		e.stats.Filtered[reason]++
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "opportunity filtered",
			slog.String("pair_id", opp.Pair.ID),
			slog.String("reason", string(reason)),
			slog.Float64("spread", opp.Spread),
		)
		return false, admission{Decision: Decision{Opportunity: opp, State: StateFiltered, Reason: reason}}
	}
	e.active[opp.Pair.ID]++
	e.inflight++
	settings := e.settings.Clone()
	e.mu.Unlock()

	return true, admission{Decision: Decision{Opportunity: opp}, settings: settings}
}

// shouldProcessLocked is the ordered filter chain. Caller holds e.mu.
func (e *Engine) shouldProcessLocked(opp domain.ArbitrageOpportunity, now time.Time) Reason {
	s := e.settings
	switch {
	case e.shutdown:
		return ReasonEmergencyShutdown
	case !s.EnableTrading:
		return ReasonTradingDisabled
	case opp.Spread < s.MinProfitThreshold:
		return ReasonBelowMinProfit
	case e.coolingDownLocked(opp.Pair.ID, now):
		return ReasonCooldown
	case opp.ExecutionSize > s.MaxPositionSize:
		return ReasonPositionLimit
	case !venueEnabled(s, domain.VenueKalshi) || !venueEnabled(s, domain.VenuePolymarket):
		return ReasonPlatformDisabled
	case e.inflight >= s.MaxConcurrentOrders:
		return ReasonMaxConcurrent
	}
	return ""
}

func (e *Engine) coolingDownLocked(pairID string, now time.Time) bool {
	if e.active[pairID] > 0 {
		return true
	}
	last, ok := e.cooldowns[pairID]
	if !ok {
		return false
	}
	return now.Sub(last).Seconds() < e.settings.CooldownSeconds
}

// venueEnabled treats a venue missing from the map as enabled.
func venueEnabled(s domain.TradingSettings, v domain.Venue) bool {
	enabled, ok := s.PlatformEnabled[v]
	return !ok || enabled
}

func (e *Engine) execute(ctx context.Context, opp domain.ArbitrageOpportunity, s domain.TradingSettings) Decision {
	d := Decision{Opportunity: opp}
	log := e.logger.With(
		slog.String("pair_id", opp.Pair.ID),
		slog.String("direction", string(opp.Direction)),
		slog.String("side", string(opp.Side)),
	)

	if e.locker != nil {
		unlock, err := e.locker.Acquire(ctx, opp.Pair.ID, e.lockTTL)
		if err != nil {
			e.release(opp.Pair.ID)
			if errors.Is(err, domain.ErrLockHeld) {
				e.mu.Lock()
				e.stats.Filtered[ReasonPairLocked]++
				e.mu.Unlock()
				log.InfoContext(ctx, "pair locked by another instance")
				d.State, d.Reason = StateFiltered, ReasonPairLocked
				return d
			}
			log.ErrorContext(ctx, "acquire pair lock", slog.String("error", err.Error()))
			e.countError()
			d.State, d.Err = StateError, err
			return d
		}
		defer unlock()
	}

	res, err := e.executeRecovered(ctx, opp, s)
	e.release(opp.Pair.ID)
	if err != nil {
		log.ErrorContext(ctx, "execution error", slog.String("error", err.Error()))
		e.countError()
		d.State, d.Err = StateError, err
		return d
	}
	d.Result = &res

	now := e.now()
	e.mu.Lock()
	e.stats.Executed++
	e.stats.LastExecution = now
	switch {
	case res.Success:
		e.cooldowns[opp.Pair.ID] = now
		e.stats.Succeeded++
		e.stats.TotalVolume += res.TotalValue
		e.stats.TotalProfit += res.Opportunity.ExpectedProfit()
		d.State = StateExecuted
	case res.Partial:
		e.stats.Partial++
		d.State = StatePartial
	default:
		e.stats.Failed++
		d.State = StateFailed
	}
	e.mu.Unlock()

	log.InfoContext(ctx, "opportunity executed",
		slog.String("execution_id", res.ID),
		slog.String("state", string(d.State)),
		slog.Float64("total_value", res.TotalValue),
	)
	return d
}

func (e *Engine) executeRecovered(ctx context.Context, opp domain.ArbitrageOpportunity, s domain.TradingSettings) (res domain.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trading: execute panicked: %v", r)
		}
	}()
	return e.exec.Execute(ctx, opp, s.MaxSlippage, s.MaxPositionSize)
}

func (e *Engine) release(pairID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if e.active[pairID]--; e.active[pairID] <= 0 {
		delete(e.active, pairID)
	}
}

func (e *Engine) countError() {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
}

// SettingsUpdate carries a partial settings change. Nil fields are left
// alone.
type SettingsUpdate struct {
	EnableTrading       *bool                 `json:"enable_trading,omitempty"`
	CooldownSeconds     *float64              `json:"cooldown_seconds,omitempty"`
	MaxPositionSize     *float64              `json:"max_position_size,omitempty"`
	MinProfitThreshold  *float64              `json:"min_profit_threshold,omitempty"`
	MaxSlippage         *float64              `json:"max_slippage,omitempty"`
	PlatformEnabled     map[domain.Venue]bool `json:"platform_enabled,omitempty"`
	MaxConcurrentOrders *int                  `json:"max_concurrent_orders,omitempty"`
}

// UpdateSettings applies u atomically. On a validation failure nothing
// changes and the error is a *domain.SettingsValidationError.
func (e *Engine) UpdateSettings(u SettingsUpdate) (domain.TradingSettings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.settings.Clone()
	if u.EnableTrading != nil {
		next.EnableTrading = *u.EnableTrading
	}
	if u.CooldownSeconds != nil {
		next.CooldownSeconds = *u.CooldownSeconds
	}
	if u.MaxPositionSize != nil {
		next.MaxPositionSize = *u.MaxPositionSize
	}
	if u.MinProfitThreshold != nil {
		next.MinProfitThreshold = *u.MinProfitThreshold
	}
	if u.MaxSlippage != nil {
		next.MaxSlippage = *u.MaxSlippage
	}
	for v, on := range u.PlatformEnabled {
		next.PlatformEnabled[v] = on
	}
	if u.MaxConcurrentOrders != nil {
		next.MaxConcurrentOrders = *u.MaxConcurrentOrders
	}

	if err := next.Validate(); err != nil {
		return e.settings.Clone(), err
	}
	if next.EnableTrading && e.shutdown {
		return e.settings.Clone(), ErrShutdown
	}
	e.settings = next
	e.logger.Info("trading settings updated",
		slog.Bool("enable_trading", next.EnableTrading),
		slog.Float64("min_profit_threshold", next.MinProfitThreshold),
		slog.Float64("max_position_size", next.MaxPositionSize),
		slog.Float64("cooldown_seconds", next.CooldownSeconds),
	)
	return next.Clone(), nil
}

// EnableTrading turns trading on. It fails while shut down.
func (e *Engine) EnableTrading() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return ErrShutdown
	}
	e.settings.EnableTrading = true
	e.logger.Info("trading enabled")
	return nil
}

// DisableTrading turns trading off.
func (e *Engine) DisableTrading() {
	e.mu.Lock()
	e.settings.EnableTrading = false
	e.mu.Unlock()
	e.logger.Info("trading disabled")
}

// EmergencyShutdown disables trading and latches the shutdown flag.
// Executions already handed to the coordinator run to completion.
func (e *Engine) EmergencyShutdown(ctx context.Context, reason string) {
	e.mu.Lock()
	e.settings.EnableTrading = false
	e.shutdown = true
	inflight := e.inflight
	e.mu.Unlock()

	e.logger.Log(ctx, domain.LevelCritical, "emergency shutdown",
		slog.String("reason", reason),
		slog.Int("in_flight", inflight),
	)
	if e.onShutdown != nil {
		e.onShutdown(ctx, reason)
	}
}

// ResetShutdown clears the shutdown latch. Trading stays disabled until
// explicitly enabled.
func (e *Engine) ResetShutdown() {
	e.mu.Lock()
	e.shutdown = false
	e.mu.Unlock()
	e.logger.Info("emergency shutdown cleared")
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() domain.TradingSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// MaxPositionSize is the current per-execution size cap.
func (e *Engine) MaxPositionSize() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.MaxPositionSize
}

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.Filtered = make(map[Reason]int64, len(e.stats.Filtered))
	for k, v := range e.stats.Filtered {
		out.Filtered[k] = v
	}
	out.ActiveOrders = e.inflight
	out.TradingEnabled = e.settings.EnableTrading
	out.EmergencyShutdown = e.shutdown
	return out
}
