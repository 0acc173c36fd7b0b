// Package validator enforces the column limits of the credito table. Batches
// are checked for size at the HTTP edge; each credit is checked on its own by
// the ingestion service so one bad item fails alone.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	maxKeyLength   = 50
	maxBatchLength = 1000
	amountScale    = 2
)

var (
	// NUMERIC(15,2) and NUMERIC(5,2) upper bounds.
	maxAmount = decimal.New(1, 13)
	maxRate   = decimal.New(1, 3)
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateBatch checks the shape of a whole batch. An empty batch is valid.
func ValidateBatch(items []ingestion.CreditInput) error {
	if len(items) > maxBatchLength {
		return &ValidationError{Fields: map[string]string{
			"items": fmt.Sprintf("batch must contain at most %d credits", maxBatchLength),
		}}
	}
	return nil
}

// ValidateCredit checks one credit. The constitution date has no enforced
// range.
func ValidateCredit(c ingestion.CreditInput) error {
	errs := make(map[string]string)
	requireKey(errs, "creditNumber", c.CreditNumber)
	requireKey(errs, "invoiceNumber", c.InvoiceNumber)
	requireKey(errs, "creditType", c.CreditType)
	checkAmount(errs, "taxAmount", c.TaxAmount, maxAmount)
	checkAmount(errs, "rate", c.Rate, maxRate)
	checkAmount(errs, "billedAmount", c.BilledAmount, maxAmount)
	checkAmount(errs, "deductionAmount", c.DeductionAmount, maxAmount)
	checkAmount(errs, "calculationBase", c.CalculationBase, maxAmount)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func requireKey(errs map[string]string, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		errs[field] = "is required"
	case len(value) > maxKeyLength:
		errs[field] = fmt.Sprintf("must be at most %d characters", maxKeyLength)
	}
}

func checkAmount(errs map[string]string, field string, v, limit decimal.Decimal) {
	switch {
	case v.IsNegative():
		errs[field] = "must not be negative"
	case !v.Equal(v.Round(amountScale)):
		errs[field] = fmt.Sprintf("must have at most %d decimal places", amountScale)
	case v.GreaterThanOrEqual(limit):
		errs[field] = fmt.Sprintf("must be less than %s", limit.String())
	}
}
