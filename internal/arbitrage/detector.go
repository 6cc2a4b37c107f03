package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/orderbook"
)

const (
	// DefaultMinSpread is the alert threshold used when none is configured.
	DefaultMinSpread = 0.02
	// DefaultAlertBuffer is the alert channel capacity.
	DefaultAlertBuffer = 64
)

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Calculator *Calculator
	Books      *orderbook.Registry
	// MinSpread is the alert threshold; non-positive selects DefaultMinSpread.
	MinSpread float64
	// PositionLimit caps execution sizes; zero means no cap.
	PositionLimit float64
	// SizeLimit, when set, is read on every evaluation and also caps
	// execution sizes, so the cap can follow runtime settings.
	SizeLimit func() float64
	// AlertBuffer is the alert channel capacity. When the channel is full
	// the oldest queued alert is discarded to make room.
	AlertBuffer int
	Logger      *slog.Logger
	Now         func() time.Time
}

// DetectorStats reports detector activity.
type DetectorStats struct {
	Pairs       int     `json:"pairs"`
	Evaluations uint64  `json:"evaluations"`
	Emitted     uint64  `json:"emitted"`
	Suppressed  uint64  `json:"suppressed"`
	Dropped     uint64  `json:"dropped"`
	Active      int     `json:"active"`
	MinSpread   float64 `json:"min_spread"`
}

type bookRef struct {
	venue domain.Venue
	key   string
}

// Detector re-evaluates registered pairs whenever one of their books
// changes and alerts on spreads at or above the threshold. An alert is sent
// once per (pair, direction, side) and not again until the condition has
// cleared.
type Detector struct {
	calc          *Calculator
	books         *orderbook.Registry
	positionLimit float64
	sizeLimit     func() float64
	logger        *slog.Logger
	now           func() time.Time

	minSpread atomic.Uint64 // float64 bits

	mu     sync.RWMutex
	pairs  map[string]domain.MarketPair
	byBook map[bookRef][]string

	activeMu sync.Mutex
	active   map[domain.OpportunityKey]struct{}

	alerts chan domain.ArbitrageOpportunity

	evaluations atomic.Uint64
	emitted     atomic.Uint64
	suppressed  atomic.Uint64
	dropped     atomic.Uint64
}

// NewDetector creates a detector with no pairs.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.MinSpread <= 0 {
		cfg.MinSpread = DefaultMinSpread
	}
	if cfg.AlertBuffer <= 0 {
		cfg.AlertBuffer = DefaultAlertBuffer
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	d := &Detector{
		calc:          cfg.Calculator,
		books:         cfg.Books,
		positionLimit: cfg.PositionLimit,
		sizeLimit:     cfg.SizeLimit,
		logger:        cfg.Logger.With(slog.String("component", "arb_detector")),
		now:           cfg.Now,
		pairs:         make(map[string]domain.MarketPair),
		byBook:        make(map[bookRef][]string),
		active:        make(map[domain.OpportunityKey]struct{}),
		alerts:        make(chan domain.ArbitrageOpportunity, cfg.AlertBuffer),
	}
	d.setMinSpread(cfg.MinSpread)
	return d
}

// Alerts is the channel opportunities are emitted on.
func (d *Detector) Alerts() <-chan domain.ArbitrageOpportunity {
	return d.alerts
}

// MinSpread returns the current alert threshold.
func (d *Detector) MinSpread() float64 {
	return math.Float64frombits(d.minSpread.Load())
}

// SetMinSpread changes the alert threshold at runtime.
func (d *Detector) SetMinSpread(v float64) error {
	if v < 0 || v > 1 {
		return &domain.SettingsValidationError{Field: "min_spread", Value: v, Rule: "must be within [0, 1]"}
	}
	d.setMinSpread(v)
	return nil
}

func (d *Detector) setMinSpread(v float64) {
	d.minSpread.Store(math.Float64bits(v))
}

// AddMarketPair registers a pair, replacing any pair with the same id.
func (d *Detector) AddMarketPair(pairID, kalshiTicker, polyYesAsset, polyNoAsset string) error {
	pair := domain.MarketPair{
		ID:           pairID,
		KalshiTicker: kalshiTicker,
		PolyYesAsset: polyYesAsset,
		PolyNoAsset:  polyNoAsset,
	}
	switch {
	case pairID == "":
		return fmt.Errorf("arbitrage: add pair: empty pair id")
	case kalshiTicker == "" || polyYesAsset == "" || polyNoAsset == "":
		return fmt.Errorf("arbitrage: add pair %s: all three market keys are required", pairID)
	case polyYesAsset == polyNoAsset:
		return fmt.Errorf("arbitrage: add pair %s: yes and no assets must differ", pairID)
	}

	d.mu.Lock()
	if _, ok := d.pairs[pairID]; ok {
		d.unindexLocked(pairID)
	}
	d.pairs[pairID] = pair
	for _, ref := range refsOf(pair) {
		d.byBook[ref] = append(d.byBook[ref], pairID)
	}
	d.mu.Unlock()

	d.clearActive(pairID)
	d.logger.Info("market pair added",
		slog.String("pair_id", pairID),
		slog.String("kalshi_ticker", kalshiTicker),
		slog.String("poly_yes_asset", polyYesAsset),
		slog.String("poly_no_asset", polyNoAsset),
	)
	return nil
}

// RemoveMarketPair unregisters a pair. It reports whether the pair existed.
func (d *Detector) RemoveMarketPair(pairID string) bool {
	d.mu.Lock()
	_, ok := d.pairs[pairID]
	if ok {
		d.unindexLocked(pairID)
		delete(d.pairs, pairID)
	}
	d.mu.Unlock()
	if ok {
		d.clearActive(pairID)
	}
	return ok
}

func (d *Detector) unindexLocked(pairID string) {
	for _, ref := range refsOf(d.pairs[pairID]) {
		ids := d.byBook[ref]
		kept := ids[:0]
		for _, id := range ids {
			if id != pairID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(d.byBook, ref)
		} else {
			d.byBook[ref] = kept
		}
	}
}

func refsOf(p domain.MarketPair) []bookRef {
	return []bookRef{
		{domain.VenueKalshi, p.KalshiTicker},
		{domain.VenuePolymarket, p.PolyYesAsset},
		{domain.VenuePolymarket, p.PolyNoAsset},
	}
}

// Pair returns a registered pair.
func (d *Detector) Pair(pairID string) (domain.MarketPair, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.pairs[pairID]
	return p, ok
}

// Pairs returns all registered pairs ordered by id.
func (d *Detector) Pairs() []domain.MarketPair {
	d.mu.RLock()
	out := make([]domain.MarketPair, 0, len(d.pairs))
	for _, p := range d.pairs {
		out = append(out, p)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnBookChange re-evaluates every pair that references the changed book.
// It is called on the feed goroutine and never blocks.
func (d *Detector) OnBookChange(ctx context.Context, venue domain.Venue, key string) {
	d.mu.RLock()
	ids := d.byBook[bookRef{venue, key}]
	pairs := make([]domain.MarketPair, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, d.pairs[id])
	}
	d.mu.RUnlock()

	for _, pair := range pairs {
		d.evaluate(ctx, pair)
	}
}

// limit is the tighter of the static and the dynamic size cap; zero means
// no cap.
func (d *Detector) limit() float64 {
	limit := d.positionLimit
	if d.sizeLimit == nil {
		return limit
	}
	if dyn := d.sizeLimit(); dyn > 0 && (limit <= 0 || dyn < limit) {
		limit = dyn
	}
	return limit
}

func (d *Detector) evaluate(ctx context.Context, pair domain.MarketPair) {
	d.evaluations.Add(1)
	threshold := d.MinSpread()
	candidates := d.calc.Compute(d.input(pair), d.limit())

	live := make(map[domain.OpportunityKey]domain.ArbitrageOpportunity, len(candidates))
	for _, opp := range candidates {
		if opp.Spread >= threshold {
			live[opp.Key()] = opp
		}
	}

	var fresh []domain.ArbitrageOpportunity
	d.activeMu.Lock()
	for key := range d.active {
		if key.PairID != pair.ID {
			continue
		}
		if _, ok := live[key]; !ok {
			delete(d.active, key)
		}
	}
	for key, opp := range live {
		if _, ok := d.active[key]; ok {
			d.suppressed.Add(1)
			continue
		}
		d.active[key] = struct{}{}
		fresh = append(fresh, opp)
	}
	d.activeMu.Unlock()

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Spread > fresh[j].Spread })
	for _, opp := range fresh {
		d.logger.InfoContext(ctx, "arbitrage opportunity",
			slog.String("pair_id", opp.Pair.ID),
			slog.String("direction", string(opp.Direction)),
			slog.String("side", string(opp.Side)),
			slog.Float64("spread", opp.Spread),
			slog.Float64("size", opp.ExecutionSize),
		)
		d.emit(ctx, opp)
	}
}

// emit never blocks: on a full channel the oldest alert is discarded.
func (d *Detector) emit(ctx context.Context, opp domain.ArbitrageOpportunity) {
	for {
		select {
		case d.alerts <- opp:
			d.emitted.Add(1)
			return
		default:
		}
		select {
		case old := <-d.alerts:
			d.dropped.Add(1)
			d.logger.WarnContext(ctx, "alert channel full, dropped oldest alert",
				slog.String("pair_id", old.Pair.ID),
				slog.String("direction", string(old.Direction)),
				slog.String("side", string(old.Side)),
			)
		default:
		}
	}
}

func (d *Detector) clearActive(pairID string) {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	for key := range d.active {
		if key.PairID == pairID {
			delete(d.active, key)
		}
	}
}

func (d *Detector) input(pair domain.MarketPair) Input {
	in := Input{Pair: pair, Now: d.now()}
	if st, ok := d.books.Lookup(domain.VenueKalshi, pair.KalshiTicker); ok {
		in.Kalshi = st.Load()
	}
	if st, ok := d.books.Lookup(domain.VenuePolymarket, pair.PolyYesAsset); ok {
		in.PolyYes = st.Load()
	}
	if st, ok := d.books.Lookup(domain.VenuePolymarket, pair.PolyNoAsset); ok {
		in.PolyNo = st.Load()
	}
	return in
}

type checkOptions struct {
	unfiltered bool
}

// CheckOption adjusts CheckPair.
type CheckOption func(*checkOptions)

// Unfiltered makes CheckPair return candidates below the threshold too.
func Unfiltered() CheckOption {
	return func(o *checkOptions) { o.unfiltered = true }
}

// CheckPair computes the pair's candidates on demand, sorted by spread.
// It neither emits alerts nor touches dedup state.
func (d *Detector) CheckPair(pairID string, opts ...CheckOption) ([]domain.ArbitrageOpportunity, error) {
	var o checkOptions
	for _, opt := range opts {
		opt(&o)
	}
	pair, ok := d.Pair(pairID)
	if !ok {
		return nil, fmt.Errorf("arbitrage: check %s: %w", pairID, domain.ErrUnknownPair)
	}

	candidates := d.calc.Compute(d.input(pair), d.limit())
	out := candidates[:0]
	threshold := d.MinSpread()
	for _, opp := range candidates {
		if o.unfiltered || opp.Spread >= threshold {
			out = append(out, opp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spread > out[j].Spread })
	return out, nil
}

// Stats returns detector counters.
func (d *Detector) Stats() DetectorStats {
	d.mu.RLock()
	pairs := len(d.pairs)
	d.mu.RUnlock()
	d.activeMu.Lock()
	active := len(d.active)
	d.activeMu.Unlock()
	return DetectorStats{
		Pairs:       pairs,
		Evaluations: d.evaluations.Load(),
		Emitted:     d.emitted.Load(),
		Suppressed:  d.suppressed.Load(),
		Dropped:     d.dropped.Load(),
		Active:      active,
		MinSpread:   d.MinSpread(),
	}
}
