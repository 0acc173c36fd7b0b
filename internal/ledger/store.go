// Package ledger persists credit records. PostgresStore is the production
// backend; BoltStore is an embedded single-file backend for local runs.
// Both enforce uniqueness of the credit number independently of any
// check-then-insert done by callers.
package ledger

import (
	"context"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
)

// Store is the full capability set of a ledger backend.
//
// Errors are tagged with the taxonomy in pkg/errors: writes fail with
// ErrStoreWrite (plus ErrAlreadyExists on a duplicate credit number), reads
// with ErrStoreRead, and point lookups that match nothing with ErrNotFound.
// Empty lookup keys never match any record.
type Store interface {
	Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error)
	Update(ctx context.Context, rec ingestion.CreditRecord) error
	Delete(ctx context.Context, rec ingestion.CreditRecord) error
	GetByID(ctx context.Context, id int64) (ingestion.CreditRecord, error)
	GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error)
	ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error)
	ExistsByCreditNumber(ctx context.Context, creditNumber string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
