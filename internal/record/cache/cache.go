// Package cache is a redis-backed read-side projection of derived record
// status. Dashboards poll record status far more often than records change;
// the cache absorbs those reads with a short TTL. It is never authoritative:
// a miss or a redis failure falls through to the store and a fresh
// derivation, so the worst case is a stale label for one TTL window.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"traincheck/internal/record"
)

const derivedStatusKeyPrefix = "tc:derived:"

type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

// Get returns the cached derived status for a record. The second return is
// false on a miss or any redis error; callers re-derive in both cases.
func (c *StatusCache) Get(ctx context.Context, recordID uuid.UUID) (record.Status, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, derivedStatusKeyPrefix+recordID.String()).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return "", false
	}
	status := record.Status(val)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// Put stores a derived status under the cache TTL. Errors are dropped: the
// projection is rebuilt on the next read either way.
func (c *StatusCache) Put(ctx context.Context, recordID uuid.UUID, status record.Status) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, derivedStatusKeyPrefix+recordID.String(), string(status), c.ttl).Err()
}

// Invalidate drops the projection after a committed transition so readers
// never see the pre-transition label for a full TTL.
func (c *StatusCache) Invalidate(ctx context.Context, recordID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, derivedStatusKeyPrefix+recordID.String()).Err()
}
