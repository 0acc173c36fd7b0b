package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/resilience"
	"golang.org/x/sync/semaphore"
)

// Options configures a Consumer.
type Options struct {
	// Name labels log lines.
	Name string
	// Concurrency bounds the number of messages processed at once.
	Concurrency int
	// Backoff paces Receive retries after transport errors.
	Backoff resilience.RetryConfig
	// OnResult, when set, observes every settled result.
	OnResult func(Result)
}

// Consumer pulls deliveries from a Source and hands them to a Handler.
type Consumer[T any] struct {
	source   Source
	handler  Handler[T]
	sem      *semaphore.Weighted
	backoff  *resilience.Backoff
	onResult func(Result)
	name     string
	logger   *slog.Logger
}

// NewConsumer creates a Consumer over source.
func NewConsumer[T any](source Source, handler Handler[T], opts Options) *Consumer[T] {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Name == "" {
		opts.Name = "queue-consumer"
	}
	return &Consumer[T]{
		source:   source,
		handler:  handler,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		backoff:  resilience.NewBackoff(opts.Backoff),
		onResult: opts.OnResult,
		name:     opts.Name,
		logger:   logger.WithComponent(opts.Name),
	}
}

// Run receives and processes messages until ctx is cancelled. Messages
// already handed to a task are processed and settled before Run closes the
// source and returns.
//
// A message that fails and cannot be dead-lettered is left unsettled. Run
// then stops receiving and returns the error, so that the message is
// redelivered once the consumer is restarted.
func (c *Consumer[T]) Run(ctx context.Context) error {
	c.logger.Info("consumer started")

	// Tasks outlive the receive loop so that shutdown never dead-letters a
	// message just because its context was cancelled.
	taskCtx := context.WithoutCancel(ctx)
	recvCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var unsettled error
	results := make(chan Result)
	settled := make(chan struct{})
	go func() {
		defer close(settled)
		for r := range results {
			if err := c.settle(taskCtx, r); err != nil && unsettled == nil {
				unsettled = err
				stop(err)
			}
		}
	}()

	var wg sync.WaitGroup
	for {
		if err := c.sem.Acquire(recvCtx, 1); err != nil {
			break
		}
		d, err := c.source.Receive(recvCtx)
		if err != nil {
			c.sem.Release(1)
			if recvCtx.Err() != nil {
				break
			}
			c.logger.Error("failed to receive message", "error", err)
			if c.backoff.Wait(recvCtx) != nil {
				break
			}
			continue
		}
		c.backoff.Reset()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sem.Release(1)
			results <- c.process(taskCtx, d)
		}()
	}

	c.logger.Info("consumer stopping", "reason", context.Cause(recvCtx))
	wg.Wait()
	close(results)
	<-settled
	closeErr := c.source.Close()
	if unsettled != nil {
		return fmt.Errorf("consumer %s stopped: %w", c.name, unsettled)
	}
	return closeErr
}

func (c *Consumer[T]) process(ctx context.Context, d Delivery) Result {
	msg, err := DecodeJSON[T](d.Body())
	if err != nil {
		return Result{Delivery: d, Outcome: OutcomeDropped, Err: err}
	}
	if msg == nil {
		return Result{Delivery: d, Outcome: OutcomeDropped}
	}
	if err := c.handler(ctx, *msg); err != nil {
		return Result{Delivery: d, Outcome: OutcomeDeadLettered, Err: err}
	}
	return Result{Delivery: d, Outcome: OutcomeCompleted}
}

// settle acknowledges r and returns an error only when the message is left
// unsettled.
func (c *Consumer[T]) settle(ctx context.Context, r Result) error {
	var err error
	switch r.Outcome {
	case OutcomeDeadLettered:
		c.logger.Error("message handling failed, dead-lettering",
			"message_id", r.Delivery.ID(),
			"error", r.Err,
		)
		err = r.Delivery.DeadLetter(ctx, r.Err.Error())
	case OutcomeDropped:
		if r.Err != nil {
			c.logger.Warn("dropping undecodable message", "message_id", r.Delivery.ID(), "error", r.Err)
		} else {
			c.logger.Warn("dropping empty message", "message_id", r.Delivery.ID())
		}
		err = r.Delivery.Complete(ctx)
	default:
		err = r.Delivery.Complete(ctx)
	}
	if err != nil {
		c.logger.Error("failed to settle message",
			"message_id", r.Delivery.ID(),
			"outcome", r.Outcome.String(),
			"error", err,
		)
	}
	if c.onResult != nil {
		c.onResult(r)
	}
	if err != nil && r.Outcome == OutcomeDeadLettered {
		return err
	}
	return nil
}
