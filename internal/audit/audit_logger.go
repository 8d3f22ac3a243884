package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Event struct {
	Timestamp time.Time
	EventType string
	ShopPhone string
	EntryID   int64
	PendingID int64
	Amount    decimal.Decimal
	Status    string
	Details   map[string]string
}

// Logger records ledger mutations and confirmation outcomes under the
// "audit" logger name so they can be routed separately.
type Logger struct {
	log *zap.Logger
	now func() time.Time
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit"), now: time.Now}
}

func (a *Logger) LogEntryAdded(shopPhone string, pendingID, entryID int64, customer string, amount decimal.Decimal) {
	a.write(Event{
		EventType: "ENTRY_ADDED",
		ShopPhone: shopPhone,
		EntryID:   entryID,
		PendingID: pendingID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"customer": customer},
	})
}

func (a *Logger) LogEntryReversed(shopPhone string, pendingID, entryID int64, customer string, amount decimal.Decimal) {
	a.write(Event{
		EventType: "ENTRY_REVERSED",
		ShopPhone: shopPhone,
		EntryID:   entryID,
		PendingID: pendingID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"customer": customer},
	})
}

func (a *Logger) LogDecision(shopPhone string, pendingID int64, decision, status string) {
	a.write(Event{
		EventType: "DECISION",
		ShopPhone: shopPhone,
		PendingID: pendingID,
		Status:    status,
		Details:   map[string]string{"decision": decision},
	})
}

func (a *Logger) LogError(shopPhone string, pendingID int64, err error) {
	a.write(Event{
		EventType: "ERROR",
		ShopPhone: shopPhone,
		PendingID: pendingID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) write(event Event) {
	event.Timestamp = a.now()

	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("shop_phone", event.ShopPhone),
		zap.String("status", event.Status),
	}
	if event.PendingID != 0 {
		fields = append(fields, zap.Int64("pending_id", event.PendingID))
	}
	if event.EntryID != 0 {
		fields = append(fields, zap.Int64("entry_id", event.EntryID))
	}
	if !event.Amount.IsZero() {
		fields = append(fields, zap.String("amount", event.Amount.String()))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	if event.Status == "FAILED" {
		a.log.Error("AUDIT", fields...)
		return
	}
	a.log.Info("AUDIT", fields...)
}
