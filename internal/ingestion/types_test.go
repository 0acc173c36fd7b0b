package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() CreditInput {
	return CreditInput{
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

func TestEventJSONUsesCamelCaseAndExactNumbers(t *testing.T) {
	data, err := json.Marshal(NewRecord(sampleInput()).Event())
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Len(t, raw, 10)
	assert.Equal(t, `"123456"`, string(raw["creditNumber"]))
	assert.Equal(t, `"7891011"`, string(raw["invoiceNumber"]))
	assert.Equal(t, `1500.75`, string(raw["taxAmount"]))
	assert.Equal(t, `true`, string(raw["isSimplifiedRegime"]))
	assert.Equal(t, `"2024-02-25T00:00:00Z"`, string(raw["constitutionDate"]))
	assert.NotContains(t, raw, "id")
}

func TestRecordEventRoundTripPreservesEveryField(t *testing.T) {
	rec := NewRecord(sampleInput())
	rec.ID = 42

	data, err := json.Marshal(rec.Event())
	require.NoError(t, err)

	var decoded CreditEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	back := decoded.Record()

	assert.Equal(t, rec.CreditNumber, back.CreditNumber)
	assert.Equal(t, rec.InvoiceNumber, back.InvoiceNumber)
	assert.True(t, rec.ConstitutionDate.Equal(back.ConstitutionDate))
	assert.Equal(t, rec.CreditType, back.CreditType)
	assert.Equal(t, rec.IsSimplifiedRegime, back.IsSimplifiedRegime)
	assert.Equal(t, "1500.75", back.TaxAmount.String())
	assert.True(t, rec.Rate.Equal(back.Rate))
	assert.True(t, rec.BilledAmount.Equal(back.BilledAmount))
	assert.True(t, rec.DeductionAmount.Equal(back.DeductionAmount))
	assert.True(t, rec.CalculationBase.Equal(back.CalculationBase))
	assert.Zero(t, back.ID, "events never carry the surrogate id")
}

func TestZeroAmountsSurviveRoundTrip(t *testing.T) {
	in := CreditInput{CreditNumber: "0", InvoiceNumber: "0", CreditType: "ISSQN"}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taxAmount":0`)

	var out CreditInput
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.TaxAmount.IsZero())
	assert.True(t, out.CalculationBase.IsZero())
}

func TestDecodeAcceptsQuotedDecimals(t *testing.T) {
	var ev CreditEvent
	require.NoError(t, json.Unmarshal([]byte(`{"creditNumber":"1","taxAmount":"10.10"}`), &ev))
	assert.Equal(t, "10.1", ev.TaxAmount.String())
	assert.True(t, ev.TaxAmount.Equal(decimal.RequireFromString("10.10")))
}

func TestRecordInputMapping(t *testing.T) {
	in := sampleInput()
	rec := NewRecord(in)
	rec.ID = 7
	assert.Equal(t, in, rec.Input())
}
