package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// summaryTTL expires summaries of markets that stop updating.
const summaryTTL = 5 * time.Minute

// SummaryCache stores book summaries as JSON strings plus a sorted index
// of market keys scored by last update.
//
// Keys:
//
//	{prefix}:summary:{venue}:{key}   JSON BookSummary, TTL 5m
//	{prefix}:summary:index           zset member "{venue}:{key}", score = unix ms
type SummaryCache struct {
	rdb *redis.Client
	c   *Client
}

var _ domain.SummaryCache = (*SummaryCache)(nil)

// NewSummaryCache creates a SummaryCache backed by c.
func NewSummaryCache(c *Client) *SummaryCache {
	return &SummaryCache{rdb: c.rdb, c: c}
}

// PutSummaries writes all summaries in one pipeline.
func (s *SummaryCache) PutSummaries(ctx context.Context, summaries []domain.BookSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	index := s.c.Key("summary", "index")
	for _, sum := range summaries {
		data, err := json.Marshal(sum)
		if err != nil {
			return fmt.Errorf("redis: marshal summary %s: %w", sum.MarketKey, err)
		}
		pipe.Set(ctx, s.summaryKey(sum.Venue, sum.MarketKey), data, summaryTTL)
		pipe.ZAdd(ctx, index, redis.Z{
			Score:  float64(sum.UpdatedAt.UnixMilli()),
			Member: string(sum.Venue) + ":" + sum.MarketKey,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put summaries: %w", err)
	}
	return nil
}

// GetSummary returns domain.ErrNotFound when no summary is cached.
func (s *SummaryCache) GetSummary(ctx context.Context, venue domain.Venue, key string) (domain.BookSummary, error) {
	data, err := s.rdb.Get(ctx, s.summaryKey(venue, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSummary{}, fmt.Errorf("redis: summary %s/%s: %w", venue, key, domain.ErrNotFound)
		}
		return domain.BookSummary{}, fmt.Errorf("redis: get summary %s/%s: %w", venue, key, err)
	}

	var sum domain.BookSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return domain.BookSummary{}, fmt.Errorf("redis: decode summary %s/%s: %w", venue, key, err)
	}
	return sum, nil
}

func (s *SummaryCache) summaryKey(venue domain.Venue, key string) string {
	return s.c.Key("summary", string(venue), key)
}
