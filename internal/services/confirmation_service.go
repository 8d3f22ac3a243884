package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/voicekhata/backend/internal/audit"
	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/models"
	"go.uber.org/zap"
)

// Reply statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusClarification       = "clarification_needed"
	StatusOK                  = "ok"
	StatusConfirmed           = "confirmed"
	StatusCancelled           = "cancelled"
	StatusNoPending           = "no_pending"
	StatusNotFound            = "not_found"
	StatusConflict            = "conflict"
	StatusDuplicate           = "duplicate"
	StatusError               = "error"
)

const (
	msgClarify          = "I couldn't understand confidently. Please repeat clearly with customer name and amount.\nExample: 'Ramesh ko 200 udhaar'"
	msgClarifyTotal     = "Whose total should I check? Example: 'Raju ka total'"
	msgNothingToConfirm = "Nothing to confirm."
	msgNothingToUndo    = "Nothing to undo."
	msgCancelled        = "Okay, cancelled."
	msgUndone           = "Done. Last entry has been undone (marked reversed)."
	msgConflict         = "Please reply YES or NO to the previous confirmation first."
	msgDuplicate        = "This message was already processed."
	msgNoEntries        = "No udhaar entries yet."
	msgTranscribeFailed = "I couldn't transcribe that. Please resend the voice note."
	msgPersistence      = "Sorry, something went wrong while saving. Please try again."
	msgBadAmountFmt     = "Please send the amount in rupees, up to %s with at most 2 decimal places."
)

// InboundMessage is one text or voice message from a shopkeeper.
type InboundMessage struct {
	ShopPhone string
	MessageID string
	Text      string
	Audio     *AudioInput
}

// Reply is what the shopkeeper is told, plus structured data for the caller.
type Reply struct {
	Message     string                   `json:"message"`
	Status      string                   `json:"status"`
	PendingID   *int64                   `json:"pending_id,omitempty"`
	Entry       *models.LedgerEntry      `json:"entry,omitempty"`
	Total       *decimal.Decimal         `json:"total,omitempty"`
	Summary     []models.CustomerBalance `json:"summary,omitempty"`
	Suggestions []string                 `json:"suggestions,omitempty"`
	Intent      *models.IntentResult     `json:"intent,omitempty"`
	Transcript  string                   `json:"transcript,omitempty"`
}

// IntentReader reads one message into a structured intent.
type IntentReader interface {
	Extract(ctx context.Context, text string) models.IntentResult
}

type ConfirmationDeps struct {
	Config      *config.KhataConfig
	Phones      *PhoneNormalizer
	Intents     IntentReader
	Pending     PendingStore
	Ledger      Ledger
	Dedupe      InboundDeduper
	Transcriber Transcriber
	Audit       *audit.Logger
	Logger      *zap.Logger
}

// ConfirmationService runs the confirmation dialogue: it answers read-only
// questions immediately, stages mutations behind a YES/NO prompt and applies
// a confirmed mutation exactly once. It is the only writer of pending state.
type ConfirmationService struct {
	cfg         *config.KhataConfig
	phones      *PhoneNormalizer
	intents     IntentReader
	pending     PendingStore
	ledger      Ledger
	dedupe      InboundDeduper
	transcriber Transcriber
	audit       *audit.Logger
	locks       *ShopLocker
	log         *zap.Logger
}

func NewConfirmationService(deps ConfirmationDeps) *ConfirmationService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auditLog := deps.Audit
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	phones := deps.Phones
	if phones == nil {
		phones = NewPhoneNormalizer(deps.Config.DefaultCountryCode)
	}
	return &ConfirmationService{
		cfg:         deps.Config,
		phones:      phones,
		intents:     deps.Intents,
		pending:     deps.Pending,
		ledger:      deps.Ledger,
		dedupe:      deps.Dedupe,
		transcriber: deps.Transcriber,
		audit:       auditLog,
		locks:       NewShopLocker(),
		log:         log.Named("confirmation"),
	}
}

// SubmitMessage handles one inbound message. The error is non-nil only for
// validation and persistence failures; everything else is a Reply.
func (s *ConfirmationService) SubmitMessage(ctx context.Context, msg InboundMessage) (reply *Reply, err error) {
	shop, err := s.phones.Normalize(msg.ShopPhone)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" && (msg.Audio == nil || len(msg.Audio.Content) == 0) {
		return nil, fmt.Errorf("%w: text or audio is required", ErrValidation)
	}

	if msg.MessageID != "" && s.dedupe != nil {
		fresh, markErr := s.dedupe.MarkProcessed(ctx, msg.MessageID)
		if markErr != nil {
			return nil, markErr
		}
		if !fresh {
			s.log.Info("duplicate inbound message", zap.String("message_id", msg.MessageID))
			return &Reply{Message: msgDuplicate, Status: StatusDuplicate}, nil
		}
		defer func() {
			if err != nil && errors.Is(err, ErrPersistence) {
				if rerr := s.dedupe.Release(context.WithoutCancel(ctx), msg.MessageID); rerr != nil {
					s.log.Error("release inbound mark", zap.String("message_id", msg.MessageID), zap.Error(rerr))
				}
			}
		}()
	}

	var transcript string
	if text == "" {
		if s.transcriber == nil {
			return &Reply{Message: msgTranscribeFailed, Status: StatusError}, nil
		}
		transcript, err = s.transcriber.Transcribe(ctx, *msg.Audio)
		if err != nil {
			s.log.Warn("transcription failed", zap.String("shop_phone", shop.Canonical), zap.Error(err))
			return &Reply{Message: msgTranscribeFailed, Status: StatusError}, nil
		}
		text = transcript
	}

	if parsed, ok := ParseDecision(text); ok {
		reply, err := s.decideForShop(ctx, shop, parsed)
		if reply != nil {
			reply.Transcript = transcript
		}
		return reply, err
	}

	intent := s.intents.Extract(ctx, text)
	s.log.Debug("intent extracted",
		zap.String("shop_phone", shop.Canonical),
		zap.String("intent", string(intent.Intent)),
		zap.Float64("confidence", intent.Confidence))

	source := models.EntrySource{SourceMessageID: msg.MessageID}
	if transcript != "" {
		source.Transcript = transcript
	} else {
		source.RawText = text
	}

	switch {
	case intent.Intent.ReadOnly():
		reply, err = s.answer(ctx, shop, intent)
	case intent.Intent.Mutating() && intent.Confidence >= s.cfg.ConfidenceThreshold:
		reply, err = s.stage(ctx, shop, intent, source)
	default:
		reply = &Reply{Message: msgClarify, Status: StatusClarification}
	}
	if reply != nil {
		reply.Intent = &intent
		reply.Transcript = transcript
	}
	return reply, err
}

// SubmitDecision resolves a pending confirmation by id.
func (s *ConfirmationService) SubmitDecision(ctx context.Context, pendingID int64, decision models.Decision) (*Reply, error) {
	if pendingID <= 0 {
		return nil, fmt.Errorf("%w: pending_id must be positive", ErrValidation)
	}
	if decision != models.DecisionYes && decision != models.DecisionNo {
		return nil, fmt.Errorf("%w: decision must be YES or NO", ErrValidation)
	}

	action, err := s.pending.Lookup(ctx, pendingID)
	if errors.Is(err, ErrNotFound) {
		return &Reply{Message: msgNothingToConfirm, Status: StatusNoPending}, nil
	}
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(action.ShopPhone)
	defer unlock()
	return s.resolve(ctx, pendingID, decision)
}

// ListEntries returns the shop's newest entries, reversed ones included.
func (s *ConfirmationService) ListEntries(ctx context.Context, shopPhone string, limit int) ([]models.EntryView, error) {
	shop, err := s.phones.Normalize(shopPhone)
	if err != nil {
		return nil, err
	}
	return s.ledger.RecentEntries(ctx, shop, limit)
}

func (s *ConfirmationService) decideForShop(ctx context.Context, shop PhoneNumber, parsed ParsedDecision) (*Reply, error) {
	unlock := s.locks.Lock(shop.Canonical)
	defer unlock()

	id := parsed.PendingID
	if id == 0 {
		active, err := s.pending.GetActive(ctx, shop.Canonical)
		if err != nil {
			return nil, err
		}
		if active == nil {
			return &Reply{Message: msgNothingToConfirm, Status: StatusNoPending}, nil
		}
		id = active.ID
	} else {
		action, err := s.pending.Lookup(ctx, id)
		if errors.Is(err, ErrNotFound) || (err == nil && action.ShopPhone != shop.Canonical) {
			return &Reply{Message: msgNothingToConfirm, Status: StatusNoPending}, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return s.resolve(ctx, id, parsed.Decision)
}

// resolve claims the pending record and applies it on YES. The caller holds
// the shop lock.
func (s *ConfirmationService) resolve(ctx context.Context, id int64, decision models.Decision) (*Reply, error) {
	outcome, err := s.pending.Resolve(ctx, id, decision)
	if errors.Is(err, ErrNotFound) {
		return &Reply{Message: msgNothingToConfirm, Status: StatusNoPending}, nil
	}
	if err != nil {
		return nil, err
	}

	action := outcome.Action
	if decision == models.DecisionNo {
		s.audit.LogDecision(action.ShopPhone, id, string(decision), StatusCancelled)
		return &Reply{Message: msgCancelled, Status: StatusCancelled, PendingID: &id}, nil
	}

	shop, err := s.phones.Normalize(action.ShopPhone)
	if err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	switch action.Kind {
	case models.IntentAddUdhaar:
		if action.Payload.Amount == nil {
			return nil, fmt.Errorf("%w: pending %d has no amount", ErrValidation, id)
		}
		entry, err = s.ledger.AddUdhaar(ctx, shop, action.Payload.CustomerName, *action.Payload.Amount, action.Payload.Source())
	case models.IntentUndoLast:
		entry, err = s.ledger.UndoLast(ctx, shop)
	default:
		return nil, fmt.Errorf("%w: pending %d has kind %q", ErrValidation, id, action.Kind)
	}

	if errors.Is(err, ErrNotFound) {
		s.audit.LogDecision(action.ShopPhone, id, string(decision), StatusNotFound)
		return &Reply{Message: msgNothingToUndo, Status: StatusNotFound, PendingID: &id}, nil
	}
	if err != nil {
		s.audit.LogError(action.ShopPhone, id, err)
		if rerr := s.pending.Reopen(context.WithoutCancel(ctx), id); rerr != nil {
			s.log.Error("reopen pending after failed apply", zap.Int64("pending_id", id), zap.Error(rerr))
		}
		return nil, err
	}

	if action.Kind == models.IntentUndoLast {
		s.audit.LogEntryReversed(action.ShopPhone, id, entry.ID, entry.CustomerName, entry.Amount)
		return &Reply{Message: msgUndone, Status: StatusConfirmed, PendingID: &id, Entry: entry}, nil
	}

	s.audit.LogEntryAdded(action.ShopPhone, id, entry.ID, entry.CustomerName, entry.Amount)
	return &Reply{
		Message:   fmt.Sprintf("Done. Added %s udhaar for %s.", FormatRupees(entry.Amount), entry.CustomerName),
		Status:    StatusConfirmed,
		PendingID: &id,
		Entry:     entry,
	}, nil
}

func (s *ConfirmationService) stage(ctx context.Context, shop PhoneNumber, intent models.IntentResult, source models.EntrySource) (*Reply, error) {
	payload := models.PendingPayload{
		RawText:         source.RawText,
		Transcript:      source.Transcript,
		SourceMessageID: source.SourceMessageID,
	}

	var prompt string
	switch intent.Intent {
	case models.IntentAddUdhaar:
		name := strings.TrimSpace(intent.CustomerName)
		if name == "" || intent.Amount == nil || !intent.Amount.IsPositive() {
			return &Reply{Message: msgClarify, Status: StatusClarification}, nil
		}
		amount := *intent.Amount
		if err := CheckAmount(amount, s.maxAmount()); err != nil {
			s.log.Info("amount rejected", zap.String("shop_phone", shop.Canonical), zap.Error(err))
			return &Reply{Message: fmt.Sprintf(msgBadAmountFmt, FormatRupees(s.maxAmount())), Status: StatusClarification}, nil
		}
		payload.CustomerName = name
		payload.Amount = &amount
		prompt = fmt.Sprintf("Confirm: Add %s udhaar for %s? Reply YES or NO.", FormatRupees(amount), name)
	case models.IntentUndoLast:
		last, err := s.ledger.LastActiveEntry(ctx, shop)
		if errors.Is(err, ErrNotFound) {
			return &Reply{Message: msgNothingToUndo, Status: StatusNotFound}, nil
		}
		if err != nil {
			return nil, err
		}
		prompt = fmt.Sprintf("Confirm: Undo last entry (%s udhaar for %s)? Reply YES or NO.", FormatRupees(last.Amount), last.CustomerName)
	}

	unlock := s.locks.Lock(shop.Canonical)
	defer unlock()

	action, err := s.pending.Create(ctx, shop.Canonical, intent.Intent, payload)
	if errors.Is(err, ErrConflict) {
		return &Reply{Message: msgConflict, Status: StatusConflict}, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("confirmation staged",
		zap.String("shop_phone", shop.Canonical),
		zap.Int64("pending_id", action.ID),
		zap.String("kind", string(action.Kind)))
	return &Reply{Message: prompt, Status: StatusPendingConfirmation, PendingID: &action.ID}, nil
}

func (s *ConfirmationService) maxAmount() decimal.Decimal {
	if s.cfg.MaxAmount.IsPositive() {
		return s.cfg.MaxAmount
	}
	return config.DefaultMaxAmount
}

func (s *ConfirmationService) answer(ctx context.Context, shop PhoneNumber, intent models.IntentResult) (*Reply, error) {
	if intent.Intent == models.IntentSummary {
		balances, err := s.ledger.Summary(ctx, shop, s.cfg.SummaryTopN)
		if err != nil {
			return nil, err
		}
		return &Reply{Message: FormatSummary(balances), Status: StatusOK, Summary: balances}, nil
	}

	name := strings.TrimSpace(intent.CustomerName)
	if name == "" {
		return &Reply{Message: msgClarifyTotal, Status: StatusClarification}, nil
	}

	total, err := s.ledger.Total(ctx, shop, name)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		message := fmt.Sprintf("I couldn't find %s.", name)
		if len(nf.Suggestions) > 0 {
			message += " Did you mean: " + strings.Join(nf.Suggestions, ", ") + "?"
		}
		return &Reply{Message: message, Status: StatusNotFound, Suggestions: nf.Suggestions}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Reply{Message: FormatTotal(total), Status: StatusOK, Total: &total.Total}, nil
}

// PersistenceReply is the reply sent when a write failed and the message
// should be retried.
func PersistenceReply() *Reply {
	return &Reply{Message: msgPersistence, Status: StatusError}
}

// FormatRupees renders whole amounts without decimals and others with two.
func FormatRupees(amount decimal.Decimal) string {
	if amount.Equal(amount.Truncate(0)) {
		return "₹" + amount.StringFixed(0)
	}
	return "₹" + amount.StringFixed(2)
}

// FormatTotal renders a customer total. A negative total means the customer
// has paid in advance.
func FormatTotal(total *models.CustomerTotal) string {
	label := "Net"
	amount := total.Total
	if amount.IsNegative() {
		label = "Advance"
		amount = amount.Abs()
	}
	message := fmt.Sprintf("%s total: %s %s", total.Name, label, FormatRupees(amount))
	if len(total.Customers) > 1 {
		message += fmt.Sprintf(" (matched %d customers)", len(total.Customers))
	}
	return message
}

func FormatSummary(balances []models.CustomerBalance) string {
	if len(balances) == 0 {
		return msgNoEntries
	}
	var b strings.Builder
	b.WriteString("Udhaar summary:")
	for _, balance := range balances {
		fmt.Fprintf(&b, "\n- %s: %s", balance.CustomerName, FormatRupees(balance.Amount))
	}
	return b.String()
}
