package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a debtor within one shop. Created lazily on the first udhaar
// entry that mentions an unseen name; never deleted.
type Customer struct {
	ID        int64     `json:"id" db:"id"`
	ShopPhone string    `json:"shop_phone" db:"shop_phone"`
	Name      string    `json:"name" db:"name"`
	LinkToken string    `json:"link_token" db:"link_token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CustomerStatement is what a shared customer link shows.
type CustomerStatement struct {
	Customer Customer        `json:"customer"`
	Total    decimal.Decimal `json:"total"`
	Entries  []EntryView     `json:"entries"`
}
