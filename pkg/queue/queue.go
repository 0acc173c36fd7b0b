// Package queue runs a message handler over a broker-neutral Source. Every
// received message is processed on its own goroutine, bounded by a
// semaphore, and settled exactly once as completed, dead-lettered or dropped.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
)

// Delivery is a single message received from a Source.
type Delivery interface {
	ID() string
	Body() []byte
	// Complete acknowledges the message so it is not delivered again.
	Complete(ctx context.Context) error
	// DeadLetter moves the message aside with a reason and acknowledges it.
	DeadLetter(ctx context.Context, reason string) error
}

// Source yields deliveries until its context is cancelled.
type Source interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// Handler processes one decoded message. A non-nil error dead-letters it.
type Handler[T any] func(ctx context.Context, msg T) error

// Outcome is how a delivery was settled.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeDeadLettered
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeadLettered:
		return "dead_lettered"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is produced by a processing task and consumed by the settler.
type Result struct {
	Delivery Delivery
	Outcome  Outcome
	Err      error
}

// DecodeJSON unmarshals a message body into a new T. A JSON null body
// decodes to a nil pointer without error.
func DecodeJSON[T any](body []byte) (*T, error) {
	var result *T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeserialization, err, "decoding message")
	}
	return result, nil
}
