package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/voicekhata/backend/internal/models"
)

const (
	defaultEntryLimit = 50
	maxEntryLimit     = 200
	maxSuggestions    = 5
)

// Ledger applies confirmed udhaar commands. It is the only writer of
// customers and ledger entries, and every mutation is one transaction.
type Ledger interface {
	AddUdhaar(ctx context.Context, shop PhoneNumber, customerName string, amount decimal.Decimal, source models.EntrySource) (*models.LedgerEntry, error)
	UndoLast(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error)
	LastActiveEntry(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error)
	Total(ctx context.Context, shop PhoneNumber, customerName string) (*models.CustomerTotal, error)
	Summary(ctx context.Context, shop PhoneNumber, topN int) ([]models.CustomerBalance, error)
	RecentEntries(ctx context.Context, shop PhoneNumber, limit int) ([]models.EntryView, error)
	CustomerByToken(ctx context.Context, linkToken string) (*models.Customer, error)
	CustomerStatement(ctx context.Context, linkToken string, limit int) (*models.CustomerStatement, error)
}

// LedgerService is the PostgreSQL ledger. Reads match every legacy form of
// the shop phone; writes always use the canonical form.
type LedgerService struct {
	db       *sql.DB
	now      func() time.Time
	newToken func() string
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:       db,
		now:      time.Now,
		newToken: func() string { return uuid.NewString() },
	}
}

// CheckAmount rejects amounts the ledger cannot store exactly: zero or
// negative, more than two decimal places, or above limit.
func CheckAmount(amount, limit decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !amount.Equal(amount.Truncate(models.AmountScale)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrValidation, amount, models.AmountScale)
	}
	if amount.GreaterThan(limit) {
		return fmt.Errorf("%w: amount %s exceeds %s", ErrValidation, amount, limit)
	}
	return nil
}

// NormalizeName folds case and inner whitespace for customer matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (s *LedgerService) AddUdhaar(ctx context.Context, shop PhoneNumber, customerName string, amount decimal.Decimal, source models.EntrySource) (*models.LedgerEntry, error) {
	name := strings.Join(strings.Fields(customerName), " ")
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if err := CheckAmount(amount, models.MaxStorableAmount); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	customer, err := s.resolveCustomer(ctx, tx, shop, name)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		ShopPhone:       shop.Canonical,
		Amount:          amount,
		RawText:         source.RawText,
		Transcript:      source.Transcript,
		SourceMessageID: source.SourceMessageID,
		CreatedAt:       s.now(),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (customer_id, shop_phone, amount, created_at, raw_text, transcript, source_message_id, reversed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		RETURNING id`,
		entry.CustomerID, entry.ShopPhone, entry.Amount, entry.CreatedAt,
		nullString(entry.RawText), nullString(entry.Transcript), nullString(entry.SourceMessageID),
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: insert entry: %v", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return entry, nil
}

// resolveCustomer finds the shop's customer by normalized name under any
// phone variant, creating it with a fresh link token when missing.
func (s *LedgerService) resolveCustomer(ctx context.Context, tx *sql.Tx, shop PhoneNumber, name string) (*models.Customer, error) {
	norm := NormalizeName(name)

	var c models.Customer
	err := tx.QueryRowContext(ctx, `
		SELECT id, shop_phone, name, link_token, created_at
		FROM customers
		WHERE shop_phone = ANY($1) AND name_norm = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1`,
		pq.Array(shop.Variants), norm,
	).Scan(&c.ID, &c.ShopPhone, &c.Name, &c.LinkToken, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: find customer: %v", ErrPersistence, err)
	}

	// A concurrent insert of the same name resolves to the existing row.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO customers (shop_phone, name, name_norm, link_token, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shop_phone, name_norm) DO UPDATE SET name_norm = EXCLUDED.name_norm
		RETURNING id, shop_phone, name, link_token, created_at`,
		shop.Canonical, name, norm, s.newToken(), s.now(),
	).Scan(&c.ID, &c.ShopPhone, &c.Name, &c.LinkToken, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create customer: %v", ErrPersistence, err)
	}
	return &c, nil
}

const activeEntrySelect = `
		SELECT e.id, e.customer_id, c.name, e.shop_phone, e.amount,
		       COALESCE(e.raw_text, ''), COALESCE(e.transcript, ''), COALESCE(e.source_message_id, ''),
		       e.reversed, e.created_at
		FROM ledger_entries e
		JOIN customers c ON c.id = e.customer_id
		WHERE e.shop_phone = ANY($1) AND e.reversed = false
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT 1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.CustomerID, &e.CustomerName, &e.ShopPhone, &e.Amount,
		&e.RawText, &e.Transcript, &e.SourceMessageID, &e.Reversed, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *LedgerService) UndoLast(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	entry, err := scanEntry(tx.QueryRowContext(ctx, activeEntrySelect+"\n\t\tFOR UPDATE OF e", pq.Array(shop.Variants)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: nothing to undo", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock last entry: %v", ErrPersistence, err)
	}

	reversedAt := s.now()
	result, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET reversed = true, reversed_at = $1
		WHERE id = $2 AND reversed = false`,
		reversedAt, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: reverse entry: %v", ErrPersistence, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: reverse entry: %v", ErrPersistence, err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: entry %d already reversed", ErrNotFound, entry.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}

	entry.Reversed = true
	entry.ReversedAt = &reversedAt
	return entry, nil
}

// LastActiveEntry returns the entry an undo would reverse right now.
func (s *LedgerService) LastActiveEntry(ctx context.Context, shop PhoneNumber) (*models.LedgerEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, activeEntrySelect, pq.Array(shop.Variants)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active entries", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read last entry: %v", ErrPersistence, err)
	}
	return entry, nil
}

func (s *LedgerService) Total(ctx context.Context, shop PhoneNumber, customerName string) (*models.CustomerTotal, error) {
	norm := NormalizeName(customerName)
	if norm == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_phone, name, link_token, created_at
		FROM customers
		WHERE shop_phone = ANY($1) AND name_norm = $2
		ORDER BY created_at ASC, id ASC`,
		pq.Array(shop.Variants), norm)
	if err != nil {
		return nil, fmt.Errorf("%w: find customers: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var customers []models.Customer
	var ids []int64
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.ShopPhone, &c.Name, &c.LinkToken, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan customer: %v", ErrPersistence, err)
		}
		customers = append(customers, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find customers: %v", ErrPersistence, err)
	}

	if len(customers) == 0 {
		suggestions, err := s.suggestNames(ctx, shop, norm)
		if err != nil {
			return nil, err
		}
		return nil, &NotFoundError{What: "customer " + strings.TrimSpace(customerName), Suggestions: suggestions}
	}

	var total decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE customer_id = ANY($1) AND reversed = false`,
		pq.Array(ids),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("%w: sum entries: %v", ErrPersistence, err)
	}

	return &models.CustomerTotal{
		Name:      customers[0].Name,
		Total:     total,
		Customers: customers,
	}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *LedgerService) suggestNames(ctx context.Context, shop PhoneNumber, norm string) ([]string, error) {
	prefix := []rune(norm)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name
		FROM customers
		WHERE shop_phone = ANY($1) AND name_norm LIKE $2
		ORDER BY name
		LIMIT $3`,
		pq.Array(shop.Variants), likeEscaper.Replace(string(prefix))+"%", maxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest names: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan name: %v", ErrPersistence, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *LedgerService) Summary(ctx context.Context, shop PhoneNumber, topN int) ([]models.CustomerBalance, error) {
	if topN <= 0 {
		topN = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, SUM(e.amount) AS outstanding
		FROM customers c
		JOIN ledger_entries e ON e.customer_id = c.id AND e.reversed = false
		WHERE c.shop_phone = ANY($1)
		GROUP BY c.id, c.name, c.created_at
		ORDER BY outstanding DESC, c.created_at ASC, c.id ASC
		LIMIT $2`,
		pq.Array(shop.Variants), topN)
	if err != nil {
		return nil, fmt.Errorf("%w: summary: %v", ErrPersistence, err)
	}
	defer rows.Close()

	balances := []models.CustomerBalance{}
	for rows.Next() {
		var b models.CustomerBalance
		if err := rows.Scan(&b.CustomerID, &b.CustomerName, &b.Amount); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrPersistence, err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: summary: %v", ErrPersistence, err)
	}
	return balances, nil
}

// ClampEntryLimit bounds list sizes to 1..200, defaulting to 50.
func ClampEntryLimit(limit int) int {
	if limit <= 0 {
		return defaultEntryLimit
	}
	if limit > maxEntryLimit {
		return maxEntryLimit
	}
	return limit
}

func (s *LedgerService) RecentEntries(ctx context.Context, shop PhoneNumber, limit int) ([]models.EntryView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, c.name, e.amount, e.reversed, e.created_at, COALESCE(e.transcript, '')
		FROM ledger_entries e
		JOIN customers c ON c.id = e.customer_id
		WHERE e.shop_phone = ANY($1)
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $2`,
		pq.Array(shop.Variants), ClampEntryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrPersistence, err)
	}
	defer rows.Close()
	return scanEntryViews(rows)
}

func scanEntryViews(rows *sql.Rows) ([]models.EntryView, error) {
	entries := []models.EntryView{}
	for rows.Next() {
		var v models.EntryView
		if err := rows.Scan(&v.ID, &v.CustomerName, &v.Amount, &v.Reversed, &v.CreatedAt, &v.Transcript); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrPersistence, err)
		}
		entries = append(entries, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrPersistence, err)
	}
	return entries, nil
}

func (s *LedgerService) CustomerByToken(ctx context.Context, linkToken string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_phone, name, link_token, created_at
		FROM customers
		WHERE link_token = $1`,
		linkToken,
	).Scan(&c.ID, &c.ShopPhone, &c.Name, &c.LinkToken, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{What: "customer link"}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find customer: %v", ErrPersistence, err)
	}
	return &c, nil
}

// CustomerStatement loads what a shared customer link shows: the customer,
// the outstanding total and the newest entries, reversed ones included.
func (s *LedgerService) CustomerStatement(ctx context.Context, linkToken string, limit int) (*models.CustomerStatement, error) {
	c, err := s.CustomerByToken(ctx, linkToken)
	if err != nil {
		return nil, err
	}

	var total decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE customer_id = $1 AND reversed = false`,
		c.ID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("%w: sum entries: %v", ErrPersistence, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, c.name, e.amount, e.reversed, e.created_at, COALESCE(e.transcript, '')
		FROM ledger_entries e
		JOIN customers c ON c.id = e.customer_id
		WHERE e.customer_id = $1
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $2`,
		c.ID, ClampEntryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrPersistence, err)
	}
	defer rows.Close()

	entries, err := scanEntryViews(rows)
	if err != nil {
		return nil, err
	}

	return &models.CustomerStatement{Customer: *c, Total: total, Entries: entries}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Ledger = (*LedgerService)(nil)
