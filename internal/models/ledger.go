package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxStorableAmount is the largest amount ledger_entries.amount
// (NUMERIC(14,2)) holds. Amounts carry at most AmountScale decimal places.
var MaxStorableAmount = decimal.RequireFromString("999999999999.99")

const AmountScale = 2

func init() {
	// Amounts travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// LedgerEntry is one signed udhaar movement. Entries are append-only; the only
// permitted mutation is Reversed going from false to true.
type LedgerEntry struct {
	ID              int64           `json:"id" db:"id"`
	CustomerID      int64           `json:"customer_id" db:"customer_id"`
	CustomerName    string          `json:"customer_name" db:"customer_name"`
	ShopPhone       string          `json:"shop_phone" db:"shop_phone"`
	Amount          decimal.Decimal `json:"amount" db:"amount"` // positive = credit extended
	RawText         string          `json:"raw_text,omitempty" db:"raw_text"`
	Transcript      string          `json:"transcript,omitempty" db:"transcript"`
	SourceMessageID string          `json:"source_message_id,omitempty" db:"source_message_id"`
	Reversed        bool            `json:"reversed" db:"reversed"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	ReversedAt      *time.Time      `json:"reversed_at,omitempty" db:"reversed_at"`
}

// EntrySource carries the provenance stored alongside a new entry.
type EntrySource struct {
	RawText         string `json:"raw_text,omitempty"`
	Transcript      string `json:"transcript,omitempty"`
	SourceMessageID string `json:"source_message_id,omitempty"`
}

// EntryView is the trimmed row returned by list endpoints.
type EntryView struct {
	ID           int64           `json:"id"`
	CustomerName string          `json:"customer_name"`
	Amount       decimal.Decimal `json:"amount"`
	Reversed     bool            `json:"reversed"`
	CreatedAt    time.Time       `json:"created_at"`
	Transcript   string          `json:"transcript,omitempty"`
}

// CustomerBalance is one row of a shop summary.
type CustomerBalance struct {
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Amount       decimal.Decimal `json:"amount"`
}

// CustomerTotal is the outstanding sum for every customer matching a name.
type CustomerTotal struct {
	Name      string          `json:"name"`
	Total     decimal.Decimal `json:"total"`
	Customers []Customer      `json:"customers"`
}
