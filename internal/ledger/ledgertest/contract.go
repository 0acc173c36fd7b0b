package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ledger"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record returns a valid credit with the given keys and the sample amounts
// used across the test suites.
func Record(creditNumber, invoiceNumber string) ingestion.CreditRecord {
	return ingestion.CreditRecord{
		CreditNumber:       creditNumber,
		InvoiceNumber:      invoiceNumber,
		ConstitutionDate:   time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC),
		TaxAmount:          decimal.RequireFromString("1500.75"),
		CreditType:         "ISSQN",
		IsSimplifiedRegime: true,
		Rate:               decimal.RequireFromString("5.00"),
		BilledAmount:       decimal.RequireFromString("30000.00"),
		DeductionAmount:    decimal.RequireFromString("5000.00"),
		CalculationBase:    decimal.RequireFromString("25000.00"),
	}
}

// AssertSameCredit compares business attributes by value, so decimals with
// different scales but equal values (5 and 5.00) match.
func AssertSameCredit(t *testing.T, want, got ingestion.CreditRecord) {
	t.Helper()
	assert.Equal(t, want.CreditNumber, got.CreditNumber)
	assert.Equal(t, want.InvoiceNumber, got.InvoiceNumber)
	assert.True(t, want.ConstitutionDate.Equal(got.ConstitutionDate), "constitution date %v != %v", want.ConstitutionDate, got.ConstitutionDate)
	assert.Equal(t, want.CreditType, got.CreditType)
	assert.Equal(t, want.IsSimplifiedRegime, got.IsSimplifiedRegime)
	for name, pair := range map[string][2]decimal.Decimal{
		"taxAmount":       {want.TaxAmount, got.TaxAmount},
		"rate":            {want.Rate, got.Rate},
		"billedAmount":    {want.BilledAmount, got.BilledAmount},
		"deductionAmount": {want.DeductionAmount, got.DeductionAmount},
		"calculationBase": {want.CalculationBase, got.CalculationBase},
	} {
		assert.True(t, pair[0].Equal(pair[1]), "%s: %s != %s", name, pair[0], pair[1])
	}
}

// RunContract exercises the behaviour every ledger.Store must share.
// newStore must return an empty store.
func RunContract(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	ctx := context.Background()

	t.Run("InsertAssignsMonotonicIDs", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Insert(ctx, Record("100", "900"))
		require.NoError(t, err)
		second, err := s.Insert(ctx, Record("101", "900"))
		require.NoError(t, err)
		assert.Positive(t, first.ID)
		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("InsertRejectsDuplicateCreditNumber", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(ctx, Record("200", "900"))
		require.NoError(t, err)
		_, err = s.Insert(ctx, Record("200", "901"))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrStoreWrite)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("GetByCreditNumberPreservesFields", func(t *testing.T) {
		s := newStore(t)
		want := Record("300", "900")
		inserted, err := s.Insert(ctx, want)
		require.NoError(t, err)

		got, err := s.GetByCreditNumber(ctx, "300")
		require.NoError(t, err)
		assert.Equal(t, inserted.ID, got.ID)
		AssertSameCredit(t, want, got)
		assert.Equal(t, "1500.75", got.TaxAmount.StringFixed(2))
	})

	t.Run("ZeroAmountsArePersistedAsZero", func(t *testing.T) {
		s := newStore(t)
		rec := Record("301", "900")
		rec.TaxAmount = decimal.Zero
		rec.Rate = decimal.Zero
		rec.BilledAmount = decimal.Zero
		rec.DeductionAmount = decimal.Zero
		rec.CalculationBase = decimal.Zero
		_, err := s.Insert(ctx, rec)
		require.NoError(t, err)

		got, err := s.GetByCreditNumber(ctx, "301")
		require.NoError(t, err)
		assert.True(t, got.TaxAmount.IsZero())
		assert.True(t, got.CalculationBase.IsZero())
	})

	t.Run("MissingAndEmptyKeysAreNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(ctx, Record("400", "900"))
		require.NoError(t, err)

		_, err = s.GetByCreditNumber(ctx, "nope")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = s.GetByCreditNumber(ctx, "")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		exists, err := s.ExistsByCreditNumber(ctx, "")
		require.NoError(t, err)
		assert.False(t, exists)

		list, err := s.ListByInvoiceNumber(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListByInvoiceNumber", func(t *testing.T) {
		s := newStore(t)
		for _, r := range []ingestion.CreditRecord{Record("500", "12"), Record("501", "123"), Record("502", "12")} {
			_, err := s.Insert(ctx, r)
			require.NoError(t, err)
		}
		list, err := s.ListByInvoiceNumber(ctx, "12")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "500", list[0].CreditNumber)
		assert.Equal(t, "502", list[1].CreditNumber)

		none, err := s.ListByInvoiceNumber(ctx, "999")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Insert(ctx, Record("600", "900"))
		require.NoError(t, err)

		exists, err := s.ExistsByCreditNumber(ctx, "600")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.Delete(ctx, rec))
		exists, err = s.ExistsByCreditNumber(ctx, "600")
		require.NoError(t, err)
		assert.False(t, exists)

		list, err := s.ListByInvoiceNumber(ctx, "900")
		require.NoError(t, err)
		assert.Empty(t, list)

		assert.ErrorIs(t, s.Delete(ctx, rec), apperrors.ErrNotFound)

		_, err = s.Insert(ctx, Record("600", "900"))
		assert.NoError(t, err, "a deleted credit number can be inserted again")
	})

	t.Run("UpdateByID", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Insert(ctx, Record("700", "900"))
		require.NoError(t, err)
		_, err = s.Insert(ctx, Record("701", "900"))
		require.NoError(t, err)

		rec.InvoiceNumber = "901"
		rec.TaxAmount = decimal.RequireFromString("10.10")
		require.NoError(t, s.Update(ctx, rec))

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		AssertSameCredit(t, rec, got)

		moved, err := s.ListByInvoiceNumber(ctx, "901")
		require.NoError(t, err)
		assert.Len(t, moved, 1)

		rec.CreditNumber = "701"
		err = s.Update(ctx, rec)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

		missing := Record("702", "900")
		missing.ID = 999999
		assert.ErrorIs(t, s.Update(ctx, missing), apperrors.ErrNotFound)
	})
}
