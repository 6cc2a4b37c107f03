package domain

import (
	"context"
	"time"
)

// AlertPublisher fans detected opportunities out to other processes.
type AlertPublisher interface {
	PublishOpportunity(ctx context.Context, opp ArbitrageOpportunity) error
}

// ExecutionPublisher fans execution results out to other processes.
type ExecutionPublisher interface {
	PublishExecution(ctx context.Context, res ExecutionResult) error
}

// BookSummary is the per-market view handed to downstream consumers.
type BookSummary struct {
	Venue       Venue                `json:"venue"`
	MarketKey   string               `json:"market_key"`
	Sides       map[string]SideQuote `json:"sides"`
	TotalVolume float64              `json:"total_volume"`
	Sequence    int64                `json:"sequence"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// SideQuote holds the top of one ladder. Nil pointers mean an empty ladder.
type SideQuote struct {
	BestBid *float64 `json:"best_bid,omitempty"`
	BestAsk *float64 `json:"best_ask,omitempty"`
}

// SummaryCache stores the latest book summaries.
type SummaryCache interface {
	PutSummaries(ctx context.Context, summaries []BookSummary) error
	GetSummary(ctx context.Context, venue Venue, key string) (BookSummary, error)
}

// PairLocker serialises executions of one market pair across processes.
type PairLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter answers whether another request under key fits in the
// current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
