// Package kafka provides the Kafka producer and the Kafka-backed queue source
// built on segmentio/kafka-go. The producer serialises events as JSON and
// waits for the brokers to acknowledge every write.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fiscal-credits/creditledger/pkg/config"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes to any topic over one long-lived kafka.Writer. It is safe
// for concurrent use and must be closed once at shutdown.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer creates a Producer for the configured brokers. Writes are
// synchronous, require acknowledgement from all in-sync replicas and are
// attempted exactly once; retry policy belongs to the caller.
func NewProducer(cfg config.KafkaConfig) *Producer {
	log := logger.WithComponent("kafka-producer")
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  1,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				return
			}
			for _, m := range messages {
				log.Info("message delivered",
					"topic", m.Topic,
					"partition", m.Partition,
					"offset", m.Offset,
				)
			}
		},
	}
	return &Producer{writer: w, logger: log}
}

// Publish serialises event.Value and writes it to topic, returning once the
// brokers acknowledged it. Every failure is tagged with ErrPublish and keeps
// the broker's reason in its message.
func (p *Producer) Publish(ctx context.Context, topic string, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPublish, err, "marshaling event for %s", topic)
	}
	return p.Write(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.Key),
		Value: value,
	})
}

// Write sends a pre-built message. msg.Topic must be set.
func (p *Producer) Write(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("delivery failed",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return apperrors.Wrap(apperrors.ErrPublish, err, "publishing to %s", msg.Topic)
	}
	p.logger.Debug("message published",
		"topic", msg.Topic,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
