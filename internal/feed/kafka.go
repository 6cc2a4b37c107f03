package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// VenueHeader is the Kafka message header naming the venue of a frame.
const VenueHeader = "venue"

// KafkaSource consumes raw venue frames that an upstream collector has
// already written to a topic. The venue comes from the VenueHeader header,
// falling back to the message key.
type KafkaSource struct {
	reader *kafka.Reader
	logger *slog.Logger
}

var _ Source = (*KafkaSource)(nil)

// NewKafkaSource creates a consumer-group reader on topic.
func NewKafkaSource(brokers []string, topic, groupID string, logger *slog.Logger) *KafkaSource {
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			Topic:             topic,
			GroupID:           groupID,
			StartOffset:       kafka.LastOffset,
			MinBytes:          1,
			MaxBytes:          10e6,
			CommitInterval:    time.Second,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger.With(slog.String("component", "kafka_source"), slog.String("topic", topic)),
	}
}

// Run reads until ctx is cancelled.
func (s *KafkaSource) Run(ctx context.Context, out chan<- Frame) error {
	s.logger.InfoContext(ctx, "kafka source started")
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("feed: kafka read: %w", err)
		}
		venue := frameVenue(msg)
		if !venue.Valid() {
			s.logger.WarnContext(ctx, "skipping kafka message without venue",
				slog.Int64("offset", msg.Offset),
				slog.Int("partition", msg.Partition),
			)
			continue
		}
		ts := msg.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		select {
		case out <- Frame{Venue: venue, Data: msg.Value, ReceivedAt: ts.UTC()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

func frameVenue(msg kafka.Message) domain.Venue {
	for _, h := range msg.Headers {
		if h.Key == VenueHeader {
			return domain.Venue(h.Value)
		}
	}
	return domain.Venue(msg.Key)
}
