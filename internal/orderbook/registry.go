package orderbook

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Registry owns the books of both venues. Looking up or creating a book
// takes a short lock; reading a book's contents does not.
type Registry struct {
	mu     sync.RWMutex
	kalshi map[string]*State
	poly   map[string]*State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kalshi: make(map[string]*State),
		poly:   make(map[string]*State),
	}
}

// Kalshi returns the book for ticker, creating it on first use.
func (r *Registry) Kalshi(ticker string) *State {
	return r.getOrCreate(r.kalshi, ticker, NewKalshi)
}

// Polymarket returns the book for assetID, creating it on first use.
func (r *Registry) Polymarket(assetID string) *State {
	return r.getOrCreate(r.poly, assetID, NewPolymarket)
}

func (r *Registry) getOrCreate(m map[string]*State, key string, mk func(string) *State) *State {
	r.mu.RLock()
	st, ok := m[key]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok = m[key]; ok {
		return st
	}
	st = mk(key)
	m[key] = st
	return st
}

// Lookup returns an existing book without creating one.
func (r *Registry) Lookup(venue domain.Venue, key string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch venue {
	case domain.VenueKalshi:
		st, ok := r.kalshi[key]
		return st, ok
	case domain.VenuePolymarket:
		st, ok := r.poly[key]
		return st, ok
	}
	return nil, false
}

// Summary returns the summary of one book.
func (r *Registry) Summary(venue domain.Venue, key string) (domain.BookSummary, bool) {
	st, ok := r.Lookup(venue, key)
	if !ok {
		return domain.BookSummary{}, false
	}
	return st.Summary(), true
}

// Summaries returns a summary of every book that has received a snapshot,
// ordered by venue then key.
func (r *Registry) Summaries() []domain.BookSummary {
	r.mu.RLock()
	states := make([]*State, 0, len(r.kalshi)+len(r.poly))
	for _, st := range r.kalshi {
		states = append(states, st)
	}
	for _, st := range r.poly {
		states = append(states, st)
	}
	r.mu.RUnlock()

	out := make([]domain.BookSummary, 0, len(states))
	for _, st := range states {
		snap := st.Load()
		if !snap.Ready() {
			continue
		}
		out = append(out, snap.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].MarketKey < out[j].MarketKey
	})
	return out
}
