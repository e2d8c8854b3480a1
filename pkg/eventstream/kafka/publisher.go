// Package kafka provides a Kafka-backed eventstream publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/engramlabs/engram/pkg/eventstream"
)

// DefaultTopic is the topic mutation events are published to when the
// config leaves it empty.
const DefaultTopic = "engram.memory.mutations"

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the topic events are written to. Defaults to DefaultTopic.
	Topic string
}

// Publisher implements eventstream.Publisher using a Kafka writer.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(c Config, logger *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(c.Brokers...),
		Topic:    topic,
		Balancer: &kafkago.Hash{},
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishMutation writes the event to the configured topic. Events for the
// same scope share a message key so partition ordering matches scope
// ordering.
func (p *Publisher) PublishMutation(ctx context.Context, event *eventstream.MemoryMutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling mutation event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Scope.Key()),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing mutation event: %w", err)
	}

	p.logger.Debug("published mutation event",
		"event_id", event.EventID,
		"memory_id", event.Mutation.MemoryID,
		"action", event.Mutation.Action,
	)

	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
