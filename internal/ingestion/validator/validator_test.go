package validator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCredit() ingestion.CreditInput {
	return ingestion.CreditInput{
		CreditNumber:       "123456",
		InvoiceNumber:      "7891011",
		ConstitutionDate:   time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC),
		TaxAmount:          decimal.RequireFromString("1500.75"),
		CreditType:         "ISSQN",
		IsSimplifiedRegime: true,
		Rate:               decimal.RequireFromString("5.0"),
		BilledAmount:       decimal.RequireFromString("30000.00"),
		DeductionAmount:    decimal.RequireFromString("5000.00"),
		CalculationBase:    decimal.RequireFromString("25000.00"),
	}
}

func TestValidateCreditAcceptsValid(t *testing.T) {
	assert.NoError(t, ValidateCredit(validCredit()))

	zero := validCredit()
	zero.TaxAmount = decimal.Zero
	zero.DeductionAmount = decimal.Zero
	assert.NoError(t, ValidateCredit(zero))
}

func TestValidateCreditAllowsAnyConstitutionDate(t *testing.T) {
	c := validCredit()
	c.ConstitutionDate = time.Time{}
	assert.NoError(t, ValidateCredit(c))
}

func TestValidateCreditReportsFields(t *testing.T) {
	bad := validCredit()
	bad.CreditNumber = " "
	bad.InvoiceNumber = strings.Repeat("9", 51)
	bad.TaxAmount = decimal.RequireFromString("-1")
	bad.Rate = decimal.RequireFromString("1000")
	bad.BilledAmount = decimal.RequireFromString("10.001")

	err := ValidateCredit(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"creditNumber":  "is required",
		"invoiceNumber": "must be at most 50 characters",
		"taxAmount":     "must not be negative",
		"rate":          "must be less than 1000",
		"billedAmount":  "must have at most 2 decimal places",
	}, verr.Fields)
}

func TestValidateCreditTrailingZerosAreNotExtraPlaces(t *testing.T) {
	c := validCredit()
	c.TaxAmount = decimal.RequireFromString("10.1000")
	assert.NoError(t, ValidateCredit(c))
}

func TestValidateCreditAmountUpperBound(t *testing.T) {
	c := validCredit()
	c.BilledAmount = decimal.RequireFromString("9999999999999.99")
	assert.NoError(t, ValidateCredit(c))

	c.BilledAmount = decimal.RequireFromString("10000000000000")
	assert.Error(t, ValidateCredit(c))
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatch(nil))
	assert.NoError(t, ValidateBatch(make([]ingestion.CreditInput, 1000)))

	err := ValidateBatch(make([]ingestion.CreditInput, 1001))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items")
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "two", "a": "one"}}
	assert.Equal(t, "a:one; b:two", err.Error())
}
