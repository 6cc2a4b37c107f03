// Package kafka publishes opportunities and execution results to Kafka
// topics for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// TypeHeader names the payload type of a message.
const TypeHeader = "type"

// Config selects brokers and topics. An empty topic disables that stream.
type Config struct {
	Brokers            []string
	OpportunitiesTopic string
	ExecutionsTopic    string
}

// Publisher writes JSON payloads keyed by pair id, so every event of one
// pair lands on the same partition in order.
type Publisher struct {
	opps  *kafka.Writer
	execs *kafka.Writer
}

var (
	_ domain.AlertPublisher     = (*Publisher)(nil)
	_ domain.ExecutionPublisher = (*Publisher)(nil)
)

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return &Publisher{
		opps:  newWriter(cfg.Brokers, cfg.OpportunitiesTopic),
		execs: newWriter(cfg.Brokers, cfg.ExecutionsTopic),
	}, nil
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// PublishOpportunity writes one opportunity.
func (p *Publisher) PublishOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if p.opps == nil {
		return nil
	}
	msg, err := newMessage("opportunity", opp.Pair.ID, opp)
	if err != nil {
		return err
	}
	if err := p.opps.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish opportunity %s: %w", opp.Pair.ID, err)
	}
	return nil
}

// PublishExecution writes one execution result.
func (p *Publisher) PublishExecution(ctx context.Context, res domain.ExecutionResult) error {
	if p.execs == nil {
		return nil
	}
	msg, err := newMessage("execution", res.Opportunity.Pair.ID, res)
	if err != nil {
		return err
	}
	if err := p.execs.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish execution %s: %w", res.ID, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, w := range []*kafka.Writer{p.opps, p.execs} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	return errors.Join(errs...)
}

func newMessage(kind, key string, v any) (kafka.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal %s: %w", kind, err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: []kafka.Header{{Key: TypeHeader, Value: []byte(kind)}},
	}, nil
}
