package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fiscal-credits/creditledger/pkg/config"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/queue"
	"github.com/fiscal-credits/creditledger/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// Headers attached to dead-lettered messages.
const (
	HeaderDeadLetterReason  = "x-dead-letter-reason"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
)

var deadLetterRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageSink interface {
	Write(ctx context.Context, msg kafka.Message) error
}

// QueueSource adapts a consumer-group reader to queue.Source. Completing a
// delivery commits its offset; dead-lettering copies it to the dead-letter
// topic first, retrying the write. A message that could not be dead-lettered
// stays unsettled and holds back every later commit on its partition until
// the process restarts and it is redelivered.
type QueueSource struct {
	reader          messageReader
	deadLetter      messageSink
	deadLetterTopic string
	deadLetterRetry resilience.RetryConfig
	tracker         *commitTracker
	logger          *slog.Logger
}

// NewQueueSource creates a QueueSource reading topic with the configured
// consumer group and dead-lettering through producer.
func NewQueueSource(cfg config.KafkaConfig, topic string, producer *Producer) *QueueSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newQueueSource(r, producer, cfg.Topics.DeadLetter, topic)
}

func newQueueSource(r messageReader, sink messageSink, deadLetterTopic, topic string) *QueueSource {
	return &QueueSource{
		reader:          r,
		deadLetter:      sink,
		deadLetterTopic: deadLetterTopic,
		deadLetterRetry: deadLetterRetry,
		tracker:         newCommitTracker(),
		logger:          logger.WithComponent("kafka-queue").With("topic", topic),
	}
}

// Receive blocks for the next message.
func (s *QueueSource) Receive(ctx context.Context) (queue.Delivery, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching message: %w", err)
	}
	s.tracker.track(msg)
	s.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	return &delivery{source: s, msg: msg}, nil
}

// Close closes the underlying reader.
func (s *QueueSource) Close() error {
	if n := s.tracker.inFlight(); n > 0 {
		s.logger.Warn("closing with unsettled messages", "count", n)
	}
	return s.reader.Close()
}

func (s *QueueSource) settle(ctx context.Context, msg kafka.Message) error {
	commit, ok := s.tracker.finish(msg)
	if !ok {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, commit); err != nil {
		return fmt.Errorf("committing offset %d on partition %d: %w", commit.Offset, commit.Partition, err)
	}
	return nil
}

type delivery struct {
	source *QueueSource
	msg    kafka.Message
}

func (d *delivery) ID() string {
	return fmt.Sprintf("%s/%d/%d", d.msg.Topic, d.msg.Partition, d.msg.Offset)
}

func (d *delivery) Body() []byte {
	return d.msg.Value
}

func (d *delivery) Complete(ctx context.Context) error {
	return d.source.settle(ctx, d.msg)
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	if d.source.deadLetterTopic == "" {
		return fmt.Errorf("dead-lettering %s: no dead-letter topic configured", d.ID())
	}
	dlq := kafka.Message{
		Topic: d.source.deadLetterTopic,
		Key:   d.msg.Key,
		Value: d.msg.Value,
		Headers: append(append([]kafka.Header(nil), d.msg.Headers...),
			kafka.Header{Key: HeaderDeadLetterReason, Value: []byte(reason)},
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(d.msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(d.msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(d.msg.Offset, 10))},
		),
	}
	err := resilience.Retry(ctx, "dead-letter", d.source.deadLetterRetry, func() error {
		return d.source.deadLetter.Write(ctx, dlq)
	})
	if err != nil {
		return fmt.Errorf("dead-lettering %s: %w", d.ID(), err)
	}
	return d.source.settle(ctx, d.msg)
}
