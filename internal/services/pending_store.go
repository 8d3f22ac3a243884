package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/models"
)

// ErrNoPending is returned when a decision references nothing that can
// still be resolved: unknown, already resolved, superseded or expired.
var ErrNoPending = fmt.Errorf("%w: no pending confirmation", ErrNotFound)

// PendingStore holds at most one pending confirmation per shop phone.
type PendingStore interface {
	// Create stages a mutation. Under the replace policy an outstanding
	// record for the same shop is cancelled; under reject it yields ErrConflict.
	Create(ctx context.Context, shopPhone string, kind models.Intent, payload models.PendingPayload) (*models.PendingAction, error)
	// GetActive returns the shop's pending record, or nil. An expired record
	// is marked expired and not returned.
	GetActive(ctx context.Context, shopPhone string) (*models.PendingAction, error)
	Lookup(ctx context.Context, id int64) (*models.PendingAction, error)
	// Resolve claims a pending record. Exactly one caller wins per record.
	Resolve(ctx context.Context, id int64, decision models.Decision) (*models.ResolveOutcome, error)
	// Reopen puts a confirmed record back to pending after its mutation
	// failed to persist.
	Reopen(ctx context.Context, id int64) error
}

type PendingStoreOptions struct {
	TTL       time.Duration
	Retention time.Duration
	Policy    string
}

func PendingOptionsFromConfig(cfg *config.KhataConfig) PendingStoreOptions {
	return PendingStoreOptions{
		TTL:       cfg.PendingTTL,
		Retention: cfg.PendingRetention,
		Policy:    cfg.PendingPolicy,
	}
}

// MemoryPendingStore keeps pending records in process memory. Records do not
// survive a restart; a shopkeeper re-sends the message instead.
type MemoryPendingStore struct {
	opts PendingStoreOptions
	now  func() time.Time

	mu      sync.Mutex
	seq     int64
	records map[int64]*models.PendingAction
	active  map[string]int64

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewMemoryPendingStore(opts PendingStoreOptions) *MemoryPendingStore {
	return &MemoryPendingStore{
		opts:     opts,
		now:      time.Now,
		records:  make(map[int64]*models.PendingAction),
		active:   make(map[string]int64),
		stopChan: make(chan struct{}),
	}
}

func (s *MemoryPendingStore) Create(ctx context.Context, shopPhone string, kind models.Intent, payload models.PendingPayload) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if current := s.activeLocked(shopPhone, now); current != nil {
		if s.opts.Policy == config.PendingPolicyReject {
			return nil, fmt.Errorf("%w: confirmation %d is still pending", ErrConflict, current.ID)
		}
		current.Status = models.PendingStatusCancelled
	}

	s.seq++
	action := &models.PendingAction{
		ID:        s.seq,
		ShopPhone: shopPhone,
		Kind:      kind,
		Payload:   payload,
		Status:    models.PendingStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.TTL),
	}
	s.records[action.ID] = action
	s.active[shopPhone] = action.ID

	copied := *action
	return &copied, nil
}

func (s *MemoryPendingStore) GetActive(ctx context.Context, shopPhone string) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action := s.activeLocked(shopPhone, s.now())
	if action == nil {
		return nil, nil
	}
	copied := *action
	return &copied, nil
}

func (s *MemoryPendingStore) Lookup(ctx context.Context, id int64) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.records[id]
	if !ok {
		return nil, ErrNoPending
	}
	s.expireLocked(action, s.now())
	copied := *action
	return &copied, nil
}

func (s *MemoryPendingStore) Resolve(ctx context.Context, id int64, decision models.Decision) (*models.ResolveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.records[id]
	if !ok {
		return nil, ErrNoPending
	}
	s.expireLocked(action, s.now())
	if action.Status != models.PendingStatusPending {
		return nil, ErrNoPending
	}

	if decision == models.DecisionYes {
		action.Status = models.PendingStatusConfirmed
	} else {
		action.Status = models.PendingStatusCancelled
	}
	if s.active[action.ShopPhone] == id {
		delete(s.active, action.ShopPhone)
	}

	return &models.ResolveOutcome{Action: *action, Decision: decision}, nil
}

func (s *MemoryPendingStore) Reopen(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.records[id]
	if !ok || action.Status != models.PendingStatusConfirmed {
		return ErrNoPending
	}
	if _, taken := s.active[action.ShopPhone]; taken {
		return fmt.Errorf("%w: shop has a newer confirmation", ErrConflict)
	}
	action.Status = models.PendingStatusPending
	s.active[action.ShopPhone] = id
	return nil
}

// activeLocked returns the live pending record for the shop, clearing the
// pointer when the record is gone, resolved or expired.
func (s *MemoryPendingStore) activeLocked(shopPhone string, now time.Time) *models.PendingAction {
	id, ok := s.active[shopPhone]
	if !ok {
		return nil
	}
	action := s.records[id]
	if action != nil {
		s.expireLocked(action, now)
	}
	if action == nil || action.Status != models.PendingStatusPending {
		delete(s.active, shopPhone)
		return nil
	}
	return action
}

func (s *MemoryPendingStore) expireLocked(action *models.PendingAction, now time.Time) {
	if action.Status == models.PendingStatusPending && action.Expired(now) {
		action.Status = models.PendingStatusExpired
	}
}

// StartCleanup drops records older than their expiry plus the retention
// window every interval until Close is called.
func (s *MemoryPendingStore) StartCleanup(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *MemoryPendingStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, action := range s.records {
		if action.Status == models.PendingStatusPending && !action.Expired(now) {
			continue
		}
		if now.After(action.ExpiresAt.Add(s.opts.Retention)) {
			delete(s.records, id)
			if s.active[action.ShopPhone] == id {
				delete(s.active, action.ShopPhone)
			}
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryPendingStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

var _ PendingStore = (*MemoryPendingStore)(nil)
