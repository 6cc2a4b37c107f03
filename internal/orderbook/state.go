// Package orderbook keeps per-market price ladders for both venues.
//
// Every State has exactly one writer. Writers never touch a published
// Snapshot; they build the next one (sharing unchanged btree nodes through
// copy-on-write clones) and publish it with a single atomic store, so
// readers always see a complete book without taking a lock.
package orderbook

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Snapshot is an immutable view of a book at one sequence number.
type Snapshot struct {
	venue     domain.Venue
	key       string
	sides     []Side
	ladders   map[Side]*ladder
	sequence  int64
	updatedAt time.Time
	ready     bool
}

// Venue returns the venue the book belongs to.
func (s *Snapshot) Venue() domain.Venue { return s.venue }

// MarketKey is the Kalshi ticker or Polymarket asset id.
func (s *Snapshot) MarketKey() string { return s.key }

// Sequence is the last applied sequence number.
func (s *Snapshot) Sequence() int64 { return s.sequence }

// UpdatedAt is the venue timestamp of the last applied event.
func (s *Snapshot) UpdatedAt() time.Time { return s.updatedAt }

// Ready reports whether a full snapshot has been applied.
func (s *Snapshot) Ready() bool { return s.ready }

// BestBid returns the highest priced level on side.
func (s *Snapshot) BestBid(side Side) (Level, bool) {
	l, ok := s.ladders[side]
	if !ok {
		return Level{}, false
	}
	return l.Max()
}

// BestAsk returns the lowest priced level on side.
func (s *Snapshot) BestAsk(side Side) (Level, bool) {
	l, ok := s.ladders[side]
	if !ok {
		return Level{}, false
	}
	return l.Min()
}

// Levels returns side's levels in ascending price order.
func (s *Snapshot) Levels(side Side) []Level {
	l, ok := s.ladders[side]
	if !ok {
		return nil
	}
	return levelsOf(l)
}

// Depth returns the number of levels on side.
func (s *Snapshot) Depth(side Side) int {
	l, ok := s.ladders[side]
	if !ok {
		return 0
	}
	return l.Len()
}

// TotalVolume sums the size of every level on every side.
func (s *Snapshot) TotalVolume() float64 {
	var v float64
	for _, side := range s.sides {
		v += volumeOf(s.ladders[side])
	}
	return v
}

// Summary reports the top of each ladder and the aggregate volume.
func (s *Snapshot) Summary() domain.BookSummary {
	out := domain.BookSummary{
		Venue:       s.venue,
		MarketKey:   s.key,
		Sides:       make(map[string]domain.SideQuote, len(s.sides)),
		TotalVolume: s.TotalVolume(),
		Sequence:    s.sequence,
		UpdatedAt:   s.updatedAt,
	}
	for _, side := range s.sides {
		var q domain.SideQuote
		if lvl, ok := s.BestBid(side); ok {
			p := lvl.Price.Float64()
			q.BestBid = &p
		}
		if lvl, ok := s.BestAsk(side); ok {
			p := lvl.Price.Float64()
			q.BestAsk = &p
		}
		out.Sides[string(side)] = q
	}
	return out
}

// clone returns a writable copy that shares structure with s.
func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.ladders = make(map[Side]*ladder, len(s.ladders))
	for side, l := range s.ladders {
		next.ladders[side] = l.Clone()
	}
	return &next
}

// Delta is a single absolute level update.
type Delta struct {
	Side      Side
	Price     domain.Price
	Size      float64
	Sequence  int64
	Timestamp time.Time
}

// State is the live book of one market. Create it with NewKalshi or
// NewPolymarket.
type State struct {
	venue domain.Venue
	key   string
	sides []Side
	cur   atomic.Pointer[Snapshot]
}

// NewKalshi returns an empty book with yes and no ladders.
func NewKalshi(ticker string) *State {
	return newState(domain.VenueKalshi, ticker, []Side{SideYes, SideNo})
}

// NewPolymarket returns an empty book with bid and ask ladders for one
// outcome token.
func NewPolymarket(assetID string) *State {
	return newState(domain.VenuePolymarket, assetID, []Side{SideBid, SideAsk})
}

func newState(venue domain.Venue, key string, sides []Side) *State {
	st := &State{venue: venue, key: key, sides: sides}
	st.cur.Store(st.empty(0, time.Time{}, false))
	return st
}

func (st *State) empty(seq int64, ts time.Time, ready bool) *Snapshot {
	ladders := make(map[Side]*ladder, len(st.sides))
	for _, side := range st.sides {
		ladders[side] = newLadder()
	}
	return &Snapshot{
		venue:     st.venue,
		key:       st.key,
		sides:     st.sides,
		ladders:   ladders,
		sequence:  seq,
		updatedAt: ts,
		ready:     ready,
	}
}

// Load returns the currently published snapshot. It never blocks.
func (st *State) Load() *Snapshot {
	return st.cur.Load()
}

// Venue returns the venue of the book.
func (st *State) Venue() domain.Venue { return st.venue }

// MarketKey returns the market key of the book.
func (st *State) MarketKey() string { return st.key }

// Sides lists the ladders this book carries.
func (st *State) Sides() []Side { return st.sides }

// HasSide reports whether side is one of the book's ladders.
func (st *State) HasSide(side Side) bool {
	for _, s := range st.sides {
		if s == side {
			return true
		}
	}
	return false
}

// ApplySnapshot replaces every ladder and resets the sequence. Levels with
// a non-positive size are skipped; a price repeated within one side keeps
// its last size.
func (st *State) ApplySnapshot(levels map[Side][]Level, seq int64, ts time.Time) error {
	for side := range levels {
		if !st.HasSide(side) {
			return fmt.Errorf("orderbook: %s: unknown side %q", st.key, side)
		}
	}
	next := st.empty(seq, ts, true)
	for side, lvls := range levels {
		l := next.ladders[side]
		for _, lvl := range lvls {
			set(l, lvl.Price, lvl.Size)
		}
	}
	st.cur.Store(next)
	return nil
}

// ApplyDelta upserts (size > 0) or removes (size <= 0) one level. The delta
// is applied only if seq is exactly one past the last applied sequence;
// otherwise a *domain.SequenceGapError is returned and nothing changes.
func (st *State) ApplyDelta(side Side, price domain.Price, size float64, seq int64, ts time.Time) error {
	return st.ApplyDeltas([]Delta{{Side: side, Price: price, Size: size, Sequence: seq, Timestamp: ts}})
}

// ApplyDeltas applies consecutive deltas as one batch and publishes a single
// snapshot. If any delta is out of sequence the whole batch is rejected.
func (st *State) ApplyDeltas(batch []Delta) error {
	if len(batch) == 0 {
		return nil
	}
	cur := st.cur.Load()
	if !cur.ready {
		return fmt.Errorf("orderbook: %s: delta before snapshot: %w", st.key, domain.ErrSequenceGap)
	}
	expected := cur.sequence + 1
	for _, d := range batch {
		if d.Sequence != expected {
			return &domain.SequenceGapError{MarketKey: st.key, Expected: expected, Got: d.Sequence}
		}
		if !st.HasSide(d.Side) {
			return fmt.Errorf("orderbook: %s: unknown side %q", st.key, d.Side)
		}
		expected++
	}

	next := cur.clone()
	for _, d := range batch {
		set(next.ladders[d.Side], d.Price, d.Size)
		next.sequence = d.Sequence
		if d.Timestamp.After(next.updatedAt) {
			next.updatedAt = d.Timestamp
		}
	}
	st.cur.Store(next)
	return nil
}

// Size returns the size resting at price on side, or zero.
func (st *State) Size(side Side, price domain.Price) float64 {
	l, ok := st.cur.Load().ladders[side]
	if !ok {
		return 0
	}
	lvl, ok := l.Get(Level{Price: price})
	if !ok {
		return 0
	}
	return lvl.Size
}

// BestBid is shorthand for Load().BestBid(side).
func (st *State) BestBid(side Side) (Level, bool) { return st.Load().BestBid(side) }

// BestAsk is shorthand for Load().BestAsk(side).
func (st *State) BestAsk(side Side) (Level, bool) { return st.Load().BestAsk(side) }

// Summary is shorthand for Load().Summary().
func (st *State) Summary() domain.BookSummary { return st.Load().Summary() }
