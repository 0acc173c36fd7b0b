// Package replay applies credit events received from the queue to the
// ledger. Applying the same event any number of times leaves exactly one
// record, so broker redelivery is harmless.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
)

// Store is the part of the ledger the processor needs.
type Store interface {
	ExistsByCreditNumber(ctx context.Context, creditNumber string) (bool, error)
	Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error)
}

// Processor applies credit events to a Store. It is safe for concurrent use
// as long as the Store is.
type Processor struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Processor. m may be nil.
func New(store Store, m *metrics.Metrics) *Processor {
	return &Processor{
		store:   store,
		metrics: m,
		logger:  logger.WithComponent("replay-processor"),
	}
}

// ProcessEvent inserts the credit unless one with the same credit number is
// already stored. Store errors are returned unchanged and never retried. An
// event without a credit number is rejected with ErrInvalidInput.
//
// Two deliveries of the same event may pass the existence check together;
// the store's unique index then rejects the loser, which is reported as
// already present rather than as a failure.
func (p *Processor) ProcessEvent(ctx context.Context, event ingestion.CreditEvent) error {
	if strings.TrimSpace(event.CreditNumber) == "" {
		p.logger.Warn("rejecting event without credit number",
			"invoice_number", event.InvoiceNumber,
		)
		p.metrics.Replay("invalid")
		return fmt.Errorf("%w: event has no credit number", apperrors.ErrInvalidInput)
	}

	exists, err := p.store.ExistsByCreditNumber(ctx, event.CreditNumber)
	if err != nil {
		p.logger.Error("failed to check credit existence",
			"credit_number", event.CreditNumber,
			"error", err,
		)
		p.metrics.Replay("error")
		return err
	}
	if exists {
		p.skip(event)
		return nil
	}

	rec, err := p.store.Insert(ctx, event.Record())
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			p.skip(event)
			return nil
		}
		p.logger.Error("failed to insert credit",
			"credit_number", event.CreditNumber,
			"error", err,
		)
		p.metrics.Replay("error")
		return err
	}
	p.metrics.Replay("inserted")
	p.logger.Info("credit inserted",
		"credit_number", rec.CreditNumber,
		"id", rec.ID,
	)
	return nil
}

func (p *Processor) skip(event ingestion.CreditEvent) {
	p.metrics.Replay("skipped")
	p.logger.Info("credit already exists, skipping",
		"credit_number", event.CreditNumber,
	)
}
