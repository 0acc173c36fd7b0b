// Package service implements the synchronous ingestion path: every credit in
// a batch is persisted and then announced on Kafka as its own unit of work.
// When the announcement fails the freshly stored row is deleted again so the
// store and the event stream stay aligned.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ingestion/validator"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/kafka"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
)

// AcceptedMessage is the BatchResult message when every item succeeded.
const AcceptedMessage = "accepted for processing"

// Store is the part of the ledger the service writes to and reads from.
type Store interface {
	Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error)
	Delete(ctx context.Context, rec ingestion.CreditRecord) error
	GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error)
	ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error)
}

// Publisher sends one event to a topic and waits for the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, event kafka.Event) error
}

// Service coordinates the store and the publisher.
type Service struct {
	store     Store
	publisher Publisher
	topic     string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTopic overrides the topic credit events are published to.
func WithTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithMetrics records ingestion counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service publishing to ingestion.CreditIntegratedTopic unless
// WithTopic says otherwise.
func New(store Store, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		topic:     ingestion.CreditIntegratedTopic,
		logger:    logger.WithComponent("ingestion-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntegrateCredits processes items in order. Each item is validated, stored
// and published on its own; a failing item never stops the rest of the
// batch and its credit number is listed in the result message.
// IntegrateCredits does not return an error.
func (s *Service) IntegrateCredits(ctx context.Context, items []ingestion.CreditInput) ingestion.BatchResult {
	var failed []string
	for _, item := range items {
		if err := s.integrate(ctx, item); err != nil {
			failed = append(failed, item.CreditNumber)
		}
	}
	if len(failed) == 0 {
		return ingestion.BatchResult{Success: true, Message: AcceptedMessage}
	}
	s.logger.Warn("batch completed with failures",
		"items", len(items),
		"failed", len(failed),
	)
	return ingestion.BatchResult{
		Success: false,
		Message: fmt.Sprintf("%d item(s) failed: %s", len(failed), strings.Join(failed, ", ")),
	}
}

func (s *Service) integrate(ctx context.Context, item ingestion.CreditInput) error {
	if err := validator.ValidateCredit(item); err != nil {
		s.logger.Warn("rejecting invalid credit",
			"credit_number", item.CreditNumber,
			"error", err,
		)
		s.metrics.IngestItem("invalid")
		return err
	}

	rec, err := s.store.Insert(ctx, ingestion.NewRecord(item))
	if err != nil {
		s.logger.Error("failed to persist credit",
			"credit_number", item.CreditNumber,
			"error", err,
		)
		s.metrics.IngestItem("store_failed")
		return err
	}

	event := kafka.Event{Key: rec.CreditNumber, Value: rec.Event()}
	if err := s.publisher.Publish(ctx, s.topic, event); err != nil {
		s.logger.Error("failed to publish credit event, compensating",
			"credit_number", rec.CreditNumber,
			"id", rec.ID,
			"topic", s.topic,
			"error", err,
		)
		s.metrics.EventPublished("error")
		s.metrics.IngestItem("publish_failed")
		s.compensate(ctx, rec)
		return err
	}

	s.metrics.EventPublished("ok")
	s.metrics.IngestItem("accepted")
	s.logger.Info("credit accepted",
		"credit_number", rec.CreditNumber,
		"id", rec.ID,
	)
	return nil
}

// compensate removes a record whose event could not be published. It runs
// even if the caller's context is already cancelled, and it is attempted
// exactly once.
func (s *Service) compensate(ctx context.Context, rec ingestion.CreditRecord) {
	if err := s.store.Delete(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("compensation failed",
			"credit_number", rec.CreditNumber,
			"id", rec.ID,
			"consistency_gap", true,
			"error", apperrors.Wrap(apperrors.ErrCompensation, err, "deleting credit %s", rec.CreditNumber),
		)
		s.metrics.Compensation("failed")
		return
	}
	s.metrics.Compensation("deleted")
	s.logger.Info("compensated unpublished credit",
		"credit_number", rec.CreditNumber,
		"id", rec.ID,
	)
}

// GetCredit returns the credit with the given number, or ErrNotFound.
func (s *Service) GetCredit(ctx context.Context, creditNumber string) (ingestion.CreditInput, error) {
	rec, err := s.store.GetByCreditNumber(ctx, creditNumber)
	if err != nil {
		return ingestion.CreditInput{}, err
	}
	return rec.Input(), nil
}

// ListCreditsByInvoice returns every credit of an invoice. The result is
// empty, never nil, when nothing matches.
func (s *Service) ListCreditsByInvoice(ctx context.Context, invoiceNumber string) ([]ingestion.CreditInput, error) {
	recs, err := s.store.ListByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	out := make([]ingestion.CreditInput, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Input())
	}
	return out, nil
}
