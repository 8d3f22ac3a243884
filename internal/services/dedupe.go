package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const inboundKeyPrefix = "khata:inbound:"

// InboundDeduper remembers inbound message ids so a redelivered message is
// processed only once.
type InboundDeduper interface {
	// MarkProcessed returns true when id was not seen before.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivery is processed again.
	Release(ctx context.Context, id string) error
}

type RedisDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{redis: client, ttl: ttl}
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, id string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, inboundKeyPrefix+id, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: mark inbound %s: %v", ErrPersistence, id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	if err := d.redis.Del(ctx, inboundKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: release inbound %s: %v", ErrPersistence, id, err)
	}
	return nil
}

// MemoryDeduper is the single-instance variant used when Redis is unavailable.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (d *MemoryDeduper) MarkProcessed(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiresAt, exists := d.entries[id]; exists && now.Before(expiresAt) {
		return false, nil
	}
	d.entries[id] = now.Add(d.ttl)

	// Sweep expired ids once the map grows.
	if len(d.entries) > 1024 {
		for key, expiresAt := range d.entries {
			if now.After(expiresAt) {
				delete(d.entries, key)
			}
		}
	}
	return true, nil
}

func (d *MemoryDeduper) Release(ctx context.Context, id string) error {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
	return nil
}

var (
	_ InboundDeduper = (*RedisDeduper)(nil)
	_ InboundDeduper = (*MemoryDeduper)(nil)
)
