// Package ledgertest provides an in-memory ledger.Store with failure
// injection, and a contract suite every ledger.Store must pass.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
)

// MemoryStore is a ledger.Store kept in maps. The credit number index is
// unique, mirroring the Postgres unique index.
//
// The *Err hooks, when set, are consulted before the operation runs; a
// non-nil return fails the call with that error wrapped in the matching
// taxonomy sentinel.
type MemoryStore struct {
	InsertErr func(rec ingestion.CreditRecord) error
	DeleteErr func(rec ingestion.CreditRecord) error
	ExistsErr func(creditNumber string) error

	mu       sync.Mutex
	nextID   int64
	byID     map[int64]ingestion.CreditRecord
	byNumber map[string]int64
	calls    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[int64]ingestion.CreditRecord),
		byNumber: make(map[string]int64),
		calls:    make(map[string]int),
	}
}

// Calls reports how many times the named method ran.
func (m *MemoryStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *MemoryStore) Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Insert"]++
	if m.InsertErr != nil {
		if err := m.InsertErr(rec); err != nil {
			return ingestion.CreditRecord{}, apperrors.Wrap(apperrors.ErrStoreWrite, err, "inserting credit %s", rec.CreditNumber)
		}
	}
	if _, ok := m.byNumber[rec.CreditNumber]; ok {
		return ingestion.CreditRecord{}, apperrors.Wrap(apperrors.ErrStoreWrite, apperrors.ErrAlreadyExists, "inserting credit %s", rec.CreditNumber)
	}
	m.nextID++
	rec.ID = m.nextID
	m.byID[rec.ID] = rec
	m.byNumber[rec.CreditNumber] = rec.ID
	return rec, nil
}

func (m *MemoryStore) Update(ctx context.Context, rec ingestion.CreditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Update"]++
	old, ok := m.byID[rec.ID]
	if !ok {
		return fmt.Errorf("updating credit %d: %w", rec.ID, apperrors.ErrNotFound)
	}
	if id, taken := m.byNumber[rec.CreditNumber]; taken && id != rec.ID {
		return apperrors.Wrap(apperrors.ErrStoreWrite, apperrors.ErrAlreadyExists, "updating credit %d", rec.ID)
	}
	delete(m.byNumber, old.CreditNumber)
	m.byID[rec.ID] = rec
	m.byNumber[rec.CreditNumber] = rec.ID
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, rec ingestion.CreditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	if m.DeleteErr != nil {
		if err := m.DeleteErr(rec); err != nil {
			return apperrors.Wrap(apperrors.ErrStoreWrite, err, "deleting credit %s", rec.CreditNumber)
		}
	}
	stored, ok := m.byID[rec.ID]
	if !ok {
		return fmt.Errorf("deleting credit %d: %w", rec.ID, apperrors.ErrNotFound)
	}
	delete(m.byID, rec.ID)
	delete(m.byNumber, stored.CreditNumber)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (ingestion.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByID"]++
	rec, ok := m.byID[id]
	if !ok {
		return ingestion.CreditRecord{}, fmt.Errorf("fetching credit %d: %w", id, apperrors.ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByCreditNumber"]++
	id, ok := m.byNumber[creditNumber]
	if !ok || creditNumber == "" {
		return ingestion.CreditRecord{}, fmt.Errorf("fetching credit %s: %w", creditNumber, apperrors.ErrNotFound)
	}
	return m.byID[id], nil
}

func (m *MemoryStore) ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListByInvoiceNumber"]++
	records := []ingestion.CreditRecord{}
	if invoiceNumber == "" {
		return records, nil
	}
	for _, rec := range m.byID {
		if rec.InvoiceNumber == invoiceNumber {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *MemoryStore) ExistsByCreditNumber(ctx context.Context, creditNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ExistsByCreditNumber"]++
	if m.ExistsErr != nil {
		if err := m.ExistsErr(creditNumber); err != nil {
			return false, apperrors.Wrap(apperrors.ErrStoreRead, err, "checking credit %s", creditNumber)
		}
	}
	if creditNumber == "" {
		return false, nil
	}
	_, ok := m.byNumber[creditNumber]
	return ok, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
