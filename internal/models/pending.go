package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingStatus is the lifecycle state of a staged mutation.
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusConfirmed PendingStatus = "confirmed"
	PendingStatusCancelled PendingStatus = "cancelled"
	PendingStatusExpired   PendingStatus = "expired"
)

// PendingPayload is the data needed to apply a staged mutation later.
// CustomerName and Amount are only set for add_udhaar.
type PendingPayload struct {
	CustomerName    string           `json:"customer_name,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	RawText         string           `json:"raw_text,omitempty"`
	Transcript      string           `json:"transcript,omitempty"`
	SourceMessageID string           `json:"source_message_id,omitempty"`
}

// Source returns the provenance recorded on the ledger entry.
func (p PendingPayload) Source() EntrySource {
	return EntrySource{
		RawText:         p.RawText,
		Transcript:      p.Transcript,
		SourceMessageID: p.SourceMessageID,
	}
}

// PendingAction is a staged, not-yet-applied ledger mutation. At most one
// record per shop phone is pending at any instant.
type PendingAction struct {
	ID        int64          `json:"id"`
	ShopPhone string         `json:"shop_phone"`
	Kind      Intent         `json:"kind"`
	Payload   PendingPayload `json:"payload"`
	Status    PendingStatus  `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the record has outlived its TTL at now.
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Decision is a shopkeeper's answer to a confirmation prompt.
type Decision string

const (
	DecisionYes Decision = "YES"
	DecisionNo  Decision = "NO"
)

// ResolveOutcome is returned when a pending record is resolved.
type ResolveOutcome struct {
	Action   PendingAction `json:"action"`
	Decision Decision      `json:"decision"`
}
