package models

import "github.com/shopspring/decimal"

// Intent is what the shopkeeper asked for.
type Intent string

const (
	IntentAddUdhaar Intent = "add_udhaar"
	IntentUndoLast  Intent = "undo_last"
	IntentTotal     Intent = "total"
	IntentSummary   Intent = "summary"
	IntentUnknown   Intent = "unknown"
)

// Mutating reports whether the intent changes the ledger and therefore
// needs an explicit confirmation.
func (i Intent) Mutating() bool {
	return i == IntentAddUdhaar || i == IntentUndoLast
}

// ReadOnly reports whether the intent can be answered immediately.
func (i Intent) ReadOnly() bool {
	return i == IntentTotal || i == IntentSummary
}

// IntentResult is the structured reading of one inbound message.
type IntentResult struct {
	Intent       Intent           `json:"intent"`
	CustomerName string           `json:"customer_name"`
	Amount       *decimal.Decimal `json:"amount"`
	Confidence   float64          `json:"confidence"`
}
