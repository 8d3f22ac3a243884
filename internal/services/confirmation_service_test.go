package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/models"
)

// fakeLedger is an in-memory Ledger for dialogue tests.
type fakeLedger struct {
	mu        sync.Mutex
	customers []models.Customer
	entries   []models.LedgerEntry
	failWrite error
}

func (l *fakeLedger) customer(shop PhoneNumber, name string) *models.Customer {
	for i := range l.customers {
		if l.customers[i].ShopPhone == shop.Canonical && NormalizeName(l.customers[i].Name) == NormalizeName(name) {
			return &l.customers[i]
		}
	}
	return nil
}

func (l *fakeLedger) AddUdhaar(ctx context.Context, shop PhoneNumber, name string, amount decimal.Decimal, source models.EntrySource) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite != nil {
		return nil, l.failWrite
	}

	c := l.customer(shop, name)
	if c == nil {
		id := int64(len(l.customers) + 1)
		l.customers = append(l.customers, models.Customer{ID: id, ShopPhone: shop.Canonical, Name: name, LinkToken: fmt.Sprintf("tok-%d", id)})
		c = &l.customers[len(l.customers)-1]
	}
	entry := models.LedgerEntry{
		ID:              int64(len(l.entries) + 1),
		CustomerID:      c.ID,
		CustomerName:    c.Name,
		ShopPhone:       shop.Canonical,
		Amount:          amount,
		RawText:         source.RawText,
		Transcript:      source.Transcript,
		SourceMessageID: source.SourceMessageID,
		CreatedAt:       time.Now(),
	}
	l.entries = append(l.entries, entry)
	return &entry, nil
}

func (l *fakeLedger) lastActive(shop PhoneNumber) *models.LedgerEntry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ShopPhone == shop.Canonical && !l.entries[i].Reversed {
			return &l.entries[i]
		}
	}
	return nil
}

func (l *fakeLedger) UndoLast(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite != nil {
		return nil, l.failWrite
	}
	entry := l.lastActive(shop)
	if entry == nil {
		return nil, ErrNotFound
	}
	entry.Reversed = true
	copied := *entry
	return &copied, nil
}

func (l *fakeLedger) LastActiveEntry(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.lastActive(shop)
	if entry == nil {
		return nil, ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (l *fakeLedger) Total(ctx context.Context, shop PhoneNumber, name string) (*models.CustomerTotal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.customer(shop, name)
	if c == nil {
		var suggestions []string
		for _, other := range l.customers {
			if strings.HasPrefix(NormalizeName(other.Name), NormalizeName(name)[:1]) {
				suggestions = append(suggestions, other.Name)
			}
		}
		return nil, &NotFoundError{What: "customer " + name, Suggestions: suggestions}
	}
	total := decimal.Zero
	for _, e := range l.entries {
		if e.CustomerID == c.ID && !e.Reversed {
			total = total.Add(e.Amount)
		}
	}
	return &models.CustomerTotal{Name: c.Name, Total: total, Customers: []models.Customer{*c}}, nil
}

func (l *fakeLedger) Summary(ctx context.Context, shop PhoneNumber, topN int) ([]models.CustomerBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sums := map[int64]*models.CustomerBalance{}
	for _, e := range l.entries {
		if e.ShopPhone != shop.Canonical || e.Reversed {
			continue
		}
		if sums[e.CustomerID] == nil {
			sums[e.CustomerID] = &models.CustomerBalance{CustomerID: e.CustomerID, CustomerName: e.CustomerName}
		}
		sums[e.CustomerID].Amount = sums[e.CustomerID].Amount.Add(e.Amount)
	}
	balances := []models.CustomerBalance{}
	for _, b := range sums {
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool {
		if !balances[i].Amount.Equal(balances[j].Amount) {
			return balances[i].Amount.GreaterThan(balances[j].Amount)
		}
		return balances[i].CustomerID < balances[j].CustomerID
	})
	if len(balances) > topN {
		balances = balances[:topN]
	}
	return balances, nil
}

func (l *fakeLedger) RecentEntries(ctx context.Context, shop PhoneNumber, limit int) ([]models.EntryView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	views := []models.EntryView{}
	for i := len(l.entries) - 1; i >= 0 && len(views) < ClampEntryLimit(limit); i-- {
		e := l.entries[i]
		if e.ShopPhone == shop.Canonical {
			views = append(views, models.EntryView{ID: e.ID, CustomerName: e.CustomerName, Amount: e.Amount, Reversed: e.Reversed})
		}
	}
	return views, nil
}

func (l *fakeLedger) CustomerByToken(ctx context.Context, token string) (*models.Customer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.customers {
		if c.LinkToken == token {
			copied := c
			return &copied, nil
		}
	}
	return nil, &NotFoundError{What: "customer link"}
}

func (l *fakeLedger) CustomerStatement(ctx context.Context, token string, limit int) (*models.CustomerStatement, error) {
	return nil, &NotFoundError{What: "customer link"}
}

func (l *fakeLedger) activeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if !e.Reversed {
			n++
		}
	}
	return n
}

type stubReader struct {
	result models.IntentResult
}

func (r stubReader) Extract(ctx context.Context, text string) models.IntentResult {
	return r.result
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio AudioInput) (string, error) {
	return f.text, f.err
}

type dialogue struct {
	svc     *ConfirmationService
	ledger  *fakeLedger
	pending *MemoryPendingStore
}

func newDialogue(t *testing.T, reader IntentReader) *dialogue {
	t.Helper()
	cfg := &config.KhataConfig{
		ConfidenceThreshold: 0.7,
		PendingTTL:          10 * time.Minute,
		PendingRetention:    time.Hour,
		PendingPolicy:       config.PendingPolicyReplace,
		DefaultCountryCode:  "91",
		SummaryTopN:         10,
	}
	if reader == nil {
		reader = NewIntentExtractor(nil, ExtractorOptions{Threshold: cfg.ConfidenceThreshold}, nil)
	}
	d := &dialogue{
		ledger:  &fakeLedger{},
		pending: NewMemoryPendingStore(PendingOptionsFromConfig(cfg)),
	}
	d.svc = NewConfirmationService(ConfirmationDeps{
		Config:  cfg,
		Intents: reader,
		Pending: d.pending,
		Ledger:  d.ledger,
		Dedupe:  NewMemoryDeduper(time.Hour),
	})
	return d
}

func (d *dialogue) say(t *testing.T, text string) *Reply {
	t.Helper()
	reply, err := d.svc.SubmitMessage(context.Background(), InboundMessage{ShopPhone: "98765 43210", Text: text})
	require.NoError(t, err)
	require.NotNil(t, reply)
	return reply
}

func amountPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestConfirmationService_AddThenConfirm(t *testing.T) {
	d := newDialogue(t, stubReader{models.IntentResult{
		Intent: models.IntentAddUdhaar, CustomerName: "Ramesh", Amount: amountPtr(200), Confidence: 0.92,
	}})
	ctx := context.Background()

	reply := d.say(t, "Ramesh ko 200 udhaar")
	assert.Equal(t, "Confirm: Add ₹200 udhaar for Ramesh? Reply YES or NO.", reply.Message)
	assert.Equal(t, StatusPendingConfirmation, reply.Status)
	require.NotNil(t, reply.PendingID)
	assert.Equal(t, int64(1), *reply.PendingID)
	assert.Equal(t, 0, d.ledger.activeCount())

	reply, err := d.svc.SubmitDecision(ctx, 1, models.DecisionYes)
	require.NoError(t, err)
	assert.Equal(t, "Done. Added ₹200 udhaar for Ramesh.", reply.Message)
	assert.Equal(t, StatusConfirmed, reply.Status)
	require.NotNil(t, reply.Entry)
	assert.Equal(t, "Ramesh", reply.Entry.CustomerName)
	assert.True(t, reply.Entry.Amount.Equal(decimal.NewFromInt(200)))
	assert.False(t, reply.Entry.Reversed)
	assert.Equal(t, "Ramesh ko 200 udhaar", reply.Entry.RawText)

	t.Run("a second YES does nothing", func(t *testing.T) {
		reply, err := d.svc.SubmitDecision(ctx, 1, models.DecisionYes)
		require.NoError(t, err)
		assert.Equal(t, "Nothing to confirm.", reply.Message)
		assert.Equal(t, StatusNoPending, reply.Status)
		assert.Equal(t, 1, d.ledger.activeCount())
	})
}

func TestConfirmationService_UndoFlow(t *testing.T) {
	d := newDialogue(t, nil)

	d.say(t, "Ramesh ko 200 udhaar")
	reply := d.say(t, "YES")
	require.Equal(t, StatusConfirmed, reply.Status)

	reply = d.say(t, "Ramesh ka total")
	assert.Equal(t, "Ramesh total: Net ₹200", reply.Message)

	reply = d.say(t, "undo")
	assert.Equal(t, "Confirm: Undo last entry (₹200 udhaar for Ramesh)? Reply YES or NO.", reply.Message)
	assert.Equal(t, StatusPendingConfirmation, reply.Status)
	assert.Equal(t, 1, d.ledger.activeCount())

	reply = d.say(t, "haan")
	assert.Equal(t, "Done. Last entry has been undone (marked reversed).", reply.Message)
	require.NotNil(t, reply.Entry)
	assert.True(t, reply.Entry.Reversed)

	reply = d.say(t, "Ramesh ka total")
	assert.Equal(t, "Ramesh total: Net ₹0", reply.Message)
	require.NotNil(t, reply.Total)
	assert.True(t, reply.Total.IsZero())

	t.Run("undo on an empty ledger", func(t *testing.T) {
		reply := d.say(t, "undo")
		assert.Equal(t, "Nothing to undo.", reply.Message)
		assert.Nil(t, reply.PendingID)

		active, err := d.pending.GetActive(context.Background(), "+919876543210")
		require.NoError(t, err)
		assert.Nil(t, active)
	})
}

func TestConfirmationService_Clarification(t *testing.T) {
	t.Run("unintelligible text", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "asdf qwerty")
		assert.Equal(t, StatusClarification, reply.Status)
		assert.True(t, strings.HasPrefix(reply.Message, "I couldn't understand confidently."))
		assert.Nil(t, reply.PendingID)

		active, _ := d.pending.GetActive(context.Background(), "+919876543210")
		assert.Nil(t, active)
	})

	t.Run("confidence equal to threshold is staged", func(t *testing.T) {
		d := newDialogue(t, stubReader{models.IntentResult{
			Intent: models.IntentAddUdhaar, CustomerName: "Sita", Amount: amountPtr(50), Confidence: 0.7,
		}})
		assert.Equal(t, StatusPendingConfirmation, d.say(t, "Sita 50").Status)
	})

	t.Run("confidence just below threshold", func(t *testing.T) {
		d := newDialogue(t, stubReader{models.IntentResult{
			Intent: models.IntentAddUdhaar, CustomerName: "Sita", Amount: amountPtr(50), Confidence: 0.69,
		}})
		assert.Equal(t, StatusClarification, d.say(t, "Sita 50").Status)
	})

	t.Run("add without a name", func(t *testing.T) {
		d := newDialogue(t, nil)
		assert.Equal(t, StatusClarification, d.say(t, "200 udhaar").Status)
	})

	t.Run("amount beyond the limit", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "Ramesh ko 100000000000000 udhaar")
		assert.Equal(t, StatusClarification, reply.Status)
		assert.Equal(t, "Please send the amount in rupees, up to ₹10000000 with at most 2 decimal places.", reply.Message)
		assert.Nil(t, reply.PendingID)

		active, _ := d.pending.GetActive(context.Background(), "+919876543210")
		assert.Nil(t, active)
	})

	t.Run("amount with more than two decimals", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "Ramesh ko 12.345 udhaar")
		assert.Equal(t, StatusClarification, reply.Status)

		assert.Equal(t, StatusNoPending, d.say(t, "YES").Status)
		assert.Empty(t, d.ledger.entries)
	})

	t.Run("total without a name", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "total kitna")
		assert.Equal(t, StatusClarification, reply.Status)
	})
}

func TestConfirmationService_Decisions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown pending id", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply, err := d.svc.SubmitDecision(ctx, 999, models.DecisionYes)
		require.NoError(t, err)
		assert.Equal(t, "Nothing to confirm.", reply.Message)
		assert.Equal(t, StatusNoPending, reply.Status)
	})

	t.Run("yes with nothing pending", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "yes")
		assert.Equal(t, "Nothing to confirm.", reply.Message)
	})

	t.Run("no cancels without a ledger effect", func(t *testing.T) {
		d := newDialogue(t, nil)
		d.say(t, "Sita ko 50")
		reply := d.say(t, "NO")
		assert.Equal(t, "Okay, cancelled.", reply.Message)
		assert.Equal(t, StatusCancelled, reply.Status)
		assert.Equal(t, 0, d.ledger.activeCount())
	})

	t.Run("explicit id in the reply", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "Sita ko 50")
		require.NotNil(t, reply.PendingID)

		reply = d.say(t, "YES 2")
		assert.Equal(t, StatusNoPending, reply.Status)

		reply = d.say(t, "YES 1")
		assert.Equal(t, StatusConfirmed, reply.Status)
	})

	t.Run("new mutation replaces the outstanding one", func(t *testing.T) {
		d := newDialogue(t, nil)
		first := d.say(t, "Ramesh ko 200")
		second := d.say(t, "Ramesh ko 300")
		require.NotNil(t, first.PendingID)
		require.NotNil(t, second.PendingID)

		reply, err := d.svc.SubmitDecision(ctx, *first.PendingID, models.DecisionYes)
		require.NoError(t, err)
		assert.Equal(t, StatusNoPending, reply.Status)

		reply = d.say(t, "yes")
		assert.Equal(t, "Done. Added ₹300 udhaar for Ramesh.", reply.Message)
		assert.Equal(t, 1, d.ledger.activeCount())
	})

	t.Run("expired confirmation", func(t *testing.T) {
		d := newDialogue(t, nil)
		reply := d.say(t, "Ramesh ko 200")
		require.NotNil(t, reply.PendingID)

		d.pending.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
		reply, err := d.svc.SubmitDecision(ctx, *reply.PendingID, models.DecisionYes)
		require.NoError(t, err)
		assert.Equal(t, StatusNoPending, reply.Status)
		assert.Equal(t, 0, d.ledger.activeCount())
	})

	t.Run("invalid decision", func(t *testing.T) {
		d := newDialogue(t, nil)
		_, err := d.svc.SubmitDecision(ctx, 1, models.Decision("MAYBE"))
		assert.ErrorIs(t, err, ErrValidation)
		_, err = d.svc.SubmitDecision(ctx, 0, models.DecisionYes)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("racing decisions reverse one entry", func(t *testing.T) {
		d := newDialogue(t, nil)
		for _, text := range []string{"Ramesh ko 200", "yes", "Sita ko 50", "yes"} {
			d.say(t, text)
		}
		reply := d.say(t, "undo")
		require.NotNil(t, reply.PendingID)
		id := *reply.PendingID

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.svc.SubmitDecision(ctx, id, models.DecisionYes)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, d.ledger.activeCount())
	})
}

func TestConfirmationService_ReadOnly(t *testing.T) {
	d := newDialogue(t, nil)

	reply := d.say(t, "summary")
	assert.Equal(t, "No udhaar entries yet.", reply.Message)
	assert.Equal(t, StatusOK, reply.Status)

	for _, text := range []string{"Raju ko 200", "yes", "Sita ko 500", "yes", "Raju ko 50.5", "yes"} {
		d.say(t, text)
	}

	reply = d.say(t, "summary")
	assert.Equal(t, "Udhaar summary:\n- Sita: ₹500\n- Raju: ₹250.50", reply.Message)
	assert.Len(t, reply.Summary, 2)
	assert.Nil(t, reply.PendingID)

	reply = d.say(t, "Rajoo ka total")
	assert.Equal(t, StatusNotFound, reply.Status)
	assert.Equal(t, "I couldn't find Rajoo. Did you mean: Raju?", reply.Message)

	active, _ := d.pending.GetActive(context.Background(), "+919876543210")
	assert.Nil(t, active)
}

func TestConfirmationService_Dedupe(t *testing.T) {
	d := newDialogue(t, nil)
	ctx := context.Background()
	msg := InboundMessage{ShopPhone: "+91 98765 43210", MessageID: "wamid.1", Text: "Ramesh ko 200"}

	reply, err := d.svc.SubmitMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingConfirmation, reply.Status)

	reply, err = d.svc.SubmitMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, reply.Status)

	yes := InboundMessage{ShopPhone: "919876543210", MessageID: "wamid.2", Text: "yes"}
	_, err = d.svc.SubmitMessage(ctx, yes)
	require.NoError(t, err)
	reply, err = d.svc.SubmitMessage(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, reply.Status)
	assert.Equal(t, 1, d.ledger.activeCount())
}

func TestConfirmationService_PersistenceFailure(t *testing.T) {
	d := newDialogue(t, nil)
	ctx := context.Background()

	d.say(t, "Ramesh ko 200")
	d.ledger.failWrite = fmt.Errorf("%w: connection reset", ErrPersistence)

	yes := InboundMessage{ShopPhone: "9876543210", MessageID: "wamid.9", Text: "YES"}
	_, err := d.svc.SubmitMessage(ctx, yes)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 0, d.ledger.activeCount())

	d.ledger.failWrite = nil
	reply, err := d.svc.SubmitMessage(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, "Done. Added ₹200 udhaar for Ramesh.", reply.Message)
	assert.Equal(t, 1, d.ledger.activeCount())
}

func TestConfirmationService_Voice(t *testing.T) {
	ctx := context.Background()
	audio := &AudioInput{Content: []byte{1, 2, 3}}

	t.Run("transcript flows into the entry", func(t *testing.T) {
		d := newDialogue(t, nil)
		d.svc.transcriber = fakeTranscriber{text: "Ramesh ko 200 udhaar"}

		reply, err := d.svc.SubmitMessage(ctx, InboundMessage{ShopPhone: "9876543210", Audio: audio})
		require.NoError(t, err)
		assert.Equal(t, StatusPendingConfirmation, reply.Status)
		assert.Equal(t, "Ramesh ko 200 udhaar", reply.Transcript)

		reply = d.say(t, "yes")
		require.NotNil(t, reply.Entry)
		assert.Equal(t, "Ramesh ko 200 udhaar", reply.Entry.Transcript)
	})

	t.Run("transcription failure", func(t *testing.T) {
		d := newDialogue(t, nil)
		d.svc.transcriber = fakeTranscriber{err: ErrExternalService}

		reply, err := d.svc.SubmitMessage(ctx, InboundMessage{ShopPhone: "9876543210", Audio: audio})
		require.NoError(t, err)
		assert.Equal(t, "I couldn't transcribe that. Please resend the voice note.", reply.Message)
	})
}

func TestConfirmationService_Validation(t *testing.T) {
	d := newDialogue(t, nil)
	ctx := context.Background()

	_, err := d.svc.SubmitMessage(ctx, InboundMessage{ShopPhone: "not-a-phone", Text: "summary"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.svc.SubmitMessage(ctx, InboundMessage{ShopPhone: "9876543210", Text: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.svc.ListEntries(ctx, "", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirmationService_ListEntries(t *testing.T) {
	d := newDialogue(t, nil)
	for _, text := range []string{"Raju ko 200", "yes", "undo", "yes"} {
		d.say(t, text)
	}

	entries, err := d.svc.ListEntries(context.Background(), "09876543210", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Reversed)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "₹200", FormatRupees(decimal.NewFromInt(200)))
	assert.Equal(t, "₹75.50", FormatRupees(decimal.RequireFromString("75.5")))

	total := &models.CustomerTotal{Name: "Raju", Total: decimal.NewFromInt(-40), Customers: make([]models.Customer, 2)}
	assert.Equal(t, "Raju total: Advance ₹40 (matched 2 customers)", FormatTotal(total))
}
