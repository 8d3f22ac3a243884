package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/models"
)

const (
	pendingSeqKey       = "khata:pending:seq"
	pendingRecordPrefix = "khata:pending:id:"
	pendingActivePrefix = "khata:pending:active:"
	pendingClaimPrefix  = "khata:pending:claim:"
)

// claimAndWrite sets the claim key only if absent and, in the same step,
// rewrites the record with its new status.
var claimAndWrite = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	redis.call("SET", KEYS[2], ARGV[3], "KEEPTTL")
	return 1
end
return 0
`)

// reopenRecord puts a record back to pending and drops its claim together.
var reopenRecord = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "KEEPTTL")
return redis.call("DEL", KEYS[2])
`)

// compareAndDelete removes a key only while it still holds the given value.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPendingStore keeps pending records in Redis so that several API
// instances share them. The active pointer per shop is swapped with GETSET
// and every record is claimed with SET NX in the same script that writes its
// new status, so exactly one transition wins and a failed write leaves no
// claim behind.
type RedisPendingStore struct {
	redis *redis.Client
	opts  PendingStoreOptions
	now   func() time.Time
}

func NewRedisPendingStore(client *redis.Client, opts PendingStoreOptions) *RedisPendingStore {
	return &RedisPendingStore{
		redis: client,
		opts:  opts,
		now:   time.Now,
	}
}

func recordKey(id int64) string {
	return pendingRecordPrefix + strconv.FormatInt(id, 10)
}

func activeKey(shopPhone string) string {
	return pendingActivePrefix + shopPhone
}

func claimKey(id int64) string {
	return pendingClaimPrefix + strconv.FormatInt(id, 10)
}

func (s *RedisPendingStore) recordTTL() time.Duration {
	return s.opts.TTL + s.opts.Retention
}

func (s *RedisPendingStore) Create(ctx context.Context, shopPhone string, kind models.Intent, payload models.PendingPayload) (*models.PendingAction, error) {
	if s.opts.Policy == config.PendingPolicyReject {
		current, err := s.GetActive(ctx, shopPhone)
		if err != nil {
			return nil, err
		}
		if current != nil {
			return nil, fmt.Errorf("%w: confirmation %d is still pending", ErrConflict, current.ID)
		}
	}

	id, err := s.redis.Incr(ctx, pendingSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: allocate pending id: %v", ErrPersistence, err)
	}

	now := s.now()
	action := &models.PendingAction{
		ID:        id,
		ShopPhone: shopPhone,
		Kind:      kind,
		Payload:   payload,
		Status:    models.PendingStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.TTL),
	}
	if err := s.save(ctx, action, s.recordTTL()); err != nil {
		return nil, err
	}

	idValue := strconv.FormatInt(id, 10)
	if s.opts.Policy == config.PendingPolicyReject {
		ok, err := s.redis.SetNX(ctx, activeKey(shopPhone), idValue, s.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: set active pending: %v", ErrPersistence, err)
		}
		if !ok {
			s.redis.Del(ctx, recordKey(id))
			return nil, fmt.Errorf("%w: another confirmation is pending", ErrConflict)
		}
		return action, nil
	}

	previous, err := s.redis.GetSet(ctx, activeKey(shopPhone), idValue).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("%w: swap active pending: %v", ErrPersistence, err)
	}
	if err := s.redis.Expire(ctx, activeKey(shopPhone), s.opts.TTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: expire active pending: %v", ErrPersistence, err)
	}

	if previous != "" && previous != idValue {
		if prevID, perr := strconv.ParseInt(previous, 10, 64); perr == nil {
			if err := s.cancelSuperseded(ctx, prevID); err != nil {
				return nil, err
			}
		}
	}

	return action, nil
}

func (s *RedisPendingStore) GetActive(ctx context.Context, shopPhone string) (*models.PendingAction, error) {
	value, err := s.redis.Get(ctx, activeKey(shopPhone)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read active pending: %v", ErrPersistence, err)
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		s.clearActive(ctx, shopPhone, value)
		return nil, nil
	}

	action, err := s.load(ctx, id)
	if errors.Is(err, ErrNoPending) {
		s.clearActive(ctx, shopPhone, value)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if action.Status == models.PendingStatusPending && action.Expired(s.now()) {
		if err := s.transition(ctx, action, models.PendingStatusExpired); err != nil && !errors.Is(err, ErrNoPending) {
			return nil, err
		}
		action.Status = models.PendingStatusExpired
	}
	if action.Status != models.PendingStatusPending {
		s.clearActive(ctx, shopPhone, value)
		return nil, nil
	}
	return action, nil
}

func (s *RedisPendingStore) Lookup(ctx context.Context, id int64) (*models.PendingAction, error) {
	action, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status == models.PendingStatusPending && action.Expired(s.now()) {
		if err := s.transition(ctx, action, models.PendingStatusExpired); err != nil && !errors.Is(err, ErrNoPending) {
			return nil, err
		}
		action.Status = models.PendingStatusExpired
	}
	return action, nil
}

func (s *RedisPendingStore) Resolve(ctx context.Context, id int64, decision models.Decision) (*models.ResolveOutcome, error) {
	action, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != models.PendingStatusPending {
		return nil, ErrNoPending
	}
	idValue := strconv.FormatInt(id, 10)
	if action.Expired(s.now()) {
		if err := s.transition(ctx, action, models.PendingStatusExpired); err != nil && !errors.Is(err, ErrNoPending) {
			return nil, err
		}
		s.clearActive(ctx, action.ShopPhone, idValue)
		return nil, ErrNoPending
	}

	status := models.PendingStatusCancelled
	if decision == models.DecisionYes {
		status = models.PendingStatusConfirmed
	}
	if err := s.transition(ctx, action, status); err != nil {
		return nil, err
	}
	s.clearActive(ctx, action.ShopPhone, idValue)

	action.Status = status
	return &models.ResolveOutcome{Action: *action, Decision: decision}, nil
}

func (s *RedisPendingStore) Reopen(ctx context.Context, id int64) error {
	action, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.PendingStatusConfirmed {
		return ErrNoPending
	}
	remaining := action.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return ErrNoPending
	}

	idValue := strconv.FormatInt(id, 10)
	ok, err := s.redis.SetNX(ctx, activeKey(action.ShopPhone), idValue, remaining).Result()
	if err != nil {
		return fmt.Errorf("%w: restore active pending: %v", ErrPersistence, err)
	}
	if !ok {
		return fmt.Errorf("%w: shop has a newer confirmation", ErrConflict)
	}

	reopened := *action
	reopened.Status = models.PendingStatusPending
	data, err := json.Marshal(&reopened)
	if err != nil {
		s.clearActive(ctx, action.ShopPhone, idValue)
		return fmt.Errorf("%w: encode pending %d: %v", ErrPersistence, id, err)
	}
	if err := reopenRecord.Run(ctx, s.redis, []string{recordKey(id), claimKey(id)}, string(data)).Err(); err != nil {
		s.clearActive(ctx, action.ShopPhone, idValue)
		return fmt.Errorf("%w: reopen pending %d: %v", ErrPersistence, id, err)
	}
	return nil
}

// cancelSuperseded cancels the record a new create displaced. Records that
// are gone or no longer pending are left alone.
func (s *RedisPendingStore) cancelSuperseded(ctx context.Context, id int64) error {
	action, err := s.load(ctx, id)
	if errors.Is(err, ErrNoPending) {
		return nil
	}
	if err != nil {
		return err
	}
	if action.Status != models.PendingStatusPending {
		return nil
	}
	if err := s.transition(ctx, action, models.PendingStatusCancelled); err != nil && !errors.Is(err, ErrNoPending) {
		return err
	}
	return nil
}

// transition claims the record and writes its new status in one script. A
// record that was already claimed yields ErrNoPending. Everything but the
// status is immutable, so the caller's loaded copy is safe to rewrite.
func (s *RedisPendingStore) transition(ctx context.Context, action *models.PendingAction, status models.PendingStatus) error {
	next := *action
	next.Status = status
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("%w: encode pending %d: %v", ErrPersistence, action.ID, err)
	}

	won, err := claimAndWrite.Run(ctx, s.redis,
		[]string{claimKey(action.ID), recordKey(action.ID)},
		string(status), s.recordTTL().Milliseconds(), string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: claim pending %d: %v", ErrPersistence, action.ID, err)
	}
	if won == 0 {
		return ErrNoPending
	}
	return nil
}

func (s *RedisPendingStore) clearActive(ctx context.Context, shopPhone, value string) {
	compareAndDelete.Run(ctx, s.redis, []string{activeKey(shopPhone)}, value)
}

func (s *RedisPendingStore) load(ctx context.Context, id int64) (*models.PendingAction, error) {
	data, err := s.redis.Get(ctx, recordKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read pending %d: %v", ErrPersistence, id, err)
	}

	var action models.PendingAction
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("%w: decode pending %d: %v", ErrPersistence, id, err)
	}
	return &action, nil
}

func (s *RedisPendingStore) save(ctx context.Context, action *models.PendingAction, ttl time.Duration) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("%w: encode pending %d: %v", ErrPersistence, action.ID, err)
	}
	if err := s.redis.Set(ctx, recordKey(action.ID), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("%w: write pending %d: %v", ErrPersistence, action.ID, err)
	}
	return nil
}

var _ PendingStore = (*RedisPendingStore)(nil)
