package ledgertest

import (
	"context"
	"errors"
	"testing"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ledger"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	RunContract(t, func(t *testing.T) ledger.Store { return NewMemoryStore() })
}

func TestMemoryStoreFailureHooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	down := errors.New("db down")
	s.InsertErr = func(rec ingestion.CreditRecord) error { return down }
	s.ExistsErr = func(string) error { return down }

	_, err := s.Insert(ctx, Record("1", "1"))
	assert.ErrorIs(t, err, apperrors.ErrStoreWrite)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 0, s.Len())

	_, err = s.ExistsByCreditNumber(ctx, "1")
	assert.ErrorIs(t, err, apperrors.ErrStoreRead)

	s.InsertErr = nil
	rec, err := s.Insert(ctx, Record("1", "1"))
	require.NoError(t, err)
	s.DeleteErr = func(ingestion.CreditRecord) error { return down }
	assert.ErrorIs(t, s.Delete(ctx, rec), apperrors.ErrStoreWrite)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Calls("Insert"))
}
