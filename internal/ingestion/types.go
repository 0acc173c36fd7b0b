// Package ingestion defines the credit records accepted by the API, the rows
// persisted by the ledger store and the event schema carried over Kafka.
package ingestion

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CreditIntegratedTopic is the default topic that receives one CreditEvent per
// persisted credit.
const CreditIntegratedTopic = "integrar-credito-constituido-entry"

// CreditInput is one element of the JSON array accepted by the integrate
// endpoint. It is also the shape returned by lookups.
type CreditInput struct {
	CreditNumber       string          `json:"creditNumber"`
	InvoiceNumber      string          `json:"invoiceNumber"`
	ConstitutionDate   time.Time       `json:"constitutionDate"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	CreditType         string          `json:"creditType"`
	IsSimplifiedRegime bool            `json:"isSimplifiedRegime"`
	Rate               decimal.Decimal `json:"rate"`
	BilledAmount       decimal.Decimal `json:"billedAmount"`
	DeductionAmount    decimal.Decimal `json:"deductionAmount"`
	CalculationBase    decimal.Decimal `json:"calculationBase"`
}

// CreditEvent is the Kafka payload announcing a persisted credit. It mirrors
// every business attribute of CreditInput and carries no surrogate ID.
type CreditEvent CreditInput

// CreditRecord is a credit as stored in the ledger. ID is assigned by the
// store on insert and never changes afterwards. The JSON names follow the
// column names of the credito table.
type CreditRecord struct {
	ID                 int64           `json:"id"`
	CreditNumber       string          `json:"numero_credito"`
	InvoiceNumber      string          `json:"numero_nfse"`
	ConstitutionDate   time.Time       `json:"data_constituicao"`
	TaxAmount          decimal.Decimal `json:"valor_issqn"`
	CreditType         string          `json:"tipo_credito"`
	IsSimplifiedRegime bool            `json:"simples_nacional"`
	Rate               decimal.Decimal `json:"aliquota"`
	BilledAmount       decimal.Decimal `json:"valor_faturado"`
	DeductionAmount    decimal.Decimal `json:"valor_deducao"`
	CalculationBase    decimal.Decimal `json:"base_calculo"`
}

// BatchResult summarises one IntegrateCredits call.
type BatchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewRecord maps an input to an unsaved record.
func NewRecord(in CreditInput) CreditRecord {
	return CreditRecord{
		CreditNumber:       in.CreditNumber,
		InvoiceNumber:      in.InvoiceNumber,
		ConstitutionDate:   in.ConstitutionDate,
		TaxAmount:          in.TaxAmount,
		CreditType:         in.CreditType,
		IsSimplifiedRegime: in.IsSimplifiedRegime,
		Rate:               in.Rate,
		BilledAmount:       in.BilledAmount,
		DeductionAmount:    in.DeductionAmount,
		CalculationBase:    in.CalculationBase,
	}
}

// Input returns the business attributes of r.
func (r CreditRecord) Input() CreditInput {
	return CreditInput{
		CreditNumber:       r.CreditNumber,
		InvoiceNumber:      r.InvoiceNumber,
		ConstitutionDate:   r.ConstitutionDate,
		TaxAmount:          r.TaxAmount,
		CreditType:         r.CreditType,
		IsSimplifiedRegime: r.IsSimplifiedRegime,
		Rate:               r.Rate,
		BilledAmount:       r.BilledAmount,
		DeductionAmount:    r.DeductionAmount,
		CalculationBase:    r.CalculationBase,
	}
}

// Event builds the wire event for r.
func (r CreditRecord) Event() CreditEvent {
	return CreditEvent(r.Input())
}

// Record maps a received event to an unsaved record.
func (e CreditEvent) Record() CreditRecord {
	return NewRecord(CreditInput(e))
}

// wireCredit renders monetary fields as JSON numbers instead of the quoted
// strings decimal.Decimal emits by default. json.Number keeps the exact
// decimal digits, so 1500.75 is written as 1500.75.
type wireCredit struct {
	CreditNumber       string      `json:"creditNumber"`
	InvoiceNumber      string      `json:"invoiceNumber"`
	ConstitutionDate   time.Time   `json:"constitutionDate"`
	TaxAmount          json.Number `json:"taxAmount"`
	CreditType         string      `json:"creditType"`
	IsSimplifiedRegime bool        `json:"isSimplifiedRegime"`
	Rate               json.Number `json:"rate"`
	BilledAmount       json.Number `json:"billedAmount"`
	DeductionAmount    json.Number `json:"deductionAmount"`
	CalculationBase    json.Number `json:"calculationBase"`
}

func toWire(in CreditInput) wireCredit {
	return wireCredit{
		CreditNumber:       in.CreditNumber,
		InvoiceNumber:      in.InvoiceNumber,
		ConstitutionDate:   in.ConstitutionDate,
		TaxAmount:          json.Number(in.TaxAmount.String()),
		CreditType:         in.CreditType,
		IsSimplifiedRegime: in.IsSimplifiedRegime,
		Rate:               json.Number(in.Rate.String()),
		BilledAmount:       json.Number(in.BilledAmount.String()),
		DeductionAmount:    json.Number(in.DeductionAmount.String()),
		CalculationBase:    json.Number(in.CalculationBase.String()),
	}
}

func (in CreditInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(in))
}

func (e CreditEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(CreditInput(e)))
}
