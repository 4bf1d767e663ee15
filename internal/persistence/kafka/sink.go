// Package kafka publishes iterations to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/sawpanic/alphaloop/internal/persistence"
)

// Config selects brokers and topic.
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	MaxAttempts  int           `yaml:"max_attempts"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Validate requires brokers and a topic.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

// writer is the part of *kafka.Writer the sink uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes each iteration as a JSON message keyed by run ID, so a
// run's iterations land on one partition in order.
type Sink struct {
	w     writer
	topic string
}

// NewSink creates a producer for cfg.
func NewSink(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Kafka iteration sink created")
	return &Sink{w: w, topic: cfg.Topic}, nil
}

// Save implements persistence.Sink.
func (s *Sink) Save(ctx context.Context, it persistence.Iteration) error {
	value, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to marshal iteration: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(it.RunID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "iteration", Value: []byte(strconv.Itoa(it.Index))},
			{Key: "submittable", Value: []byte(strconv.FormatBool(it.Submittable))},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("topic", s.topic).Str("run", it.RunID.String()).Msg("Failed to publish iteration")
		return fmt.Errorf("publish iteration: %w", err)
	}
	log.Debug().Str("topic", s.topic).Int("iteration", it.Index).Msg("Iteration published")
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	return s.w.Close()
}
