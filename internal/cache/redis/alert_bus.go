package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// streamMaxLen caps each stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// AlertBus fans opportunities and execution results out to other
// processes: Pub/Sub for live listeners, a capped stream for late readers.
//
// Keys:
//
//	{prefix}:opportunities          pub/sub channel
//	{prefix}:stream:opportunities   stream, field "payload"
//	{prefix}:executions             pub/sub channel
//	{prefix}:stream:executions      stream, field "payload"
type AlertBus struct {
	rdb *redis.Client
	c   *Client
}

var (
	_ domain.AlertPublisher     = (*AlertBus)(nil)
	_ domain.ExecutionPublisher = (*AlertBus)(nil)
)

// NewAlertBus creates an AlertBus backed by c.
func NewAlertBus(c *Client) *AlertBus {
	return &AlertBus{rdb: c.rdb, c: c}
}

// PublishOpportunity publishes and appends one opportunity.
func (b *AlertBus) PublishOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return b.publish(ctx, "opportunities", opp)
}

// PublishExecution publishes and appends one execution result.
func (b *AlertBus) PublishExecution(ctx context.Context, res domain.ExecutionResult) error {
	return b.publish(ctx, "executions", res)
}

func (b *AlertBus) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", topic, err)
	}

	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, b.c.Key(topic), payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: b.c.Key("stream", topic),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %s: %w", topic, err)
	}
	return nil
}

// RecentOpportunities returns up to n opportunities, newest first.
func (b *AlertBus) RecentOpportunities(ctx context.Context, n int) ([]domain.ArbitrageOpportunity, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, b.c.Key("stream", "opportunities"), "+", "-", int64(n)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read opportunities: %w", err)
	}

	out := make([]domain.ArbitrageOpportunity, 0, len(msgs))
	for _, m := range msgs {
		data, ok := streamPayload(m.Values)
		if !ok {
			continue
		}
		var opp domain.ArbitrageOpportunity
		if err := json.Unmarshal(data, &opp); err != nil {
			continue
		}
		out = append(out, opp)
	}
	return out, nil
}

// streamPayload extracts the "payload" field of a stream entry.
func streamPayload(values map[string]any) ([]byte, bool) {
	switch v := values["payload"].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
