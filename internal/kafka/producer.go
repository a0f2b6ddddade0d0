// Package kafka streams freezer telemetry to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ponytojas/go-freezer-control/config"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes polls and actuator events, keyed by freezer id so a
// freezer's messages stay on one partition.
type Producer struct {
	w       messageWriter
	key     []byte
	timeout time.Duration
	log     *slog.Logger
}

// NewProducer returns a producer writing to cfg.Topic on cfg.Brokers,
// keyed by cfg.Key.
func NewProducer(cfg config.KafkaConfig, log *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, cfg.Key, log)
}

func newProducer(w messageWriter, freezerID string, log *slog.Logger) *Producer {
	return &Producer{w: w, key: []byte(freezerID), timeout: 5 * time.Second, log: log}
}

type envelope struct {
	Type      string                 `json:"type"`
	FreezerID string                 `json:"freezerId"`
	Aggregate *models.AggregateState `json:"aggregate,omitempty"`
	Event     *models.EventMessage   `json:"event,omitempty"`
}

// RecordPoll publishes the aggregate of one poll.
func (p *Producer) RecordPoll(ctx context.Context, state models.AggregateState) error {
	return p.write(ctx, envelope{Type: "poll", FreezerID: string(p.key), Aggregate: &state}, state.Time)
}

// RecordEvent publishes one actuator event.
func (p *Producer) RecordEvent(ctx context.Context, event models.ActuatorEvent) error {
	msg := event.Message()
	return p.write(ctx, envelope{Type: "event", FreezerID: string(p.key), Event: &msg}, event.Time)
}

func (p *Producer) write(ctx context.Context, env envelope, ts time.Time) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: p.key, Value: b, Time: ts}); err != nil {
		return fmt.Errorf("kafka write %s: %w", env.Type, err)
	}
	p.log.Debug("published", "type", env.Type, "freezerId", string(p.key))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}
