package orderbook

import (
	"github.com/google/btree"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Side names one ladder of a book. Kalshi books carry yes and no ladders,
// Polymarket books carry bid and ask ladders.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Level is one price level. A level with zero size is never stored.
type Level struct {
	Price domain.Price `json:"price"`
	Size  float64      `json:"size"`
}

const ladderDegree = 16

func lessAsc(a, b Level) bool {
	return a.Price < b.Price
}

// ladder is a price-ascending set of levels.
type ladder = btree.BTreeG[Level]

func newLadder() *ladder {
	return btree.NewG(ladderDegree, lessAsc)
}

// set writes an absolute size; size <= 0 removes the level.
func set(l *ladder, p domain.Price, size float64) {
	if size <= 0 {
		l.Delete(Level{Price: p})
		return
	}
	l.ReplaceOrInsert(Level{Price: p, Size: size})
}

func levelsOf(l *ladder) []Level {
	out := make([]Level, 0, l.Len())
	l.Ascend(func(lvl Level) bool {
		out = append(out, lvl)
		return true
	})
	return out
}

func volumeOf(l *ladder) float64 {
	var v float64
	l.Ascend(func(lvl Level) bool {
		v += lvl.Size
		return true
	})
	return v
}
