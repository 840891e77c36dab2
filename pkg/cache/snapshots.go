// Package cache keeps short-lived JSON snapshots of entities in Redis so hot
// reads skip the database. Every failure degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(entity, id string) string
}

// Snapshots caches values of T keyed by id. A nil *Snapshots is a disabled cache.
type Snapshots[T any] struct {
	store  store
	entity string
	ttl    time.Duration
	logg   *logger.Logger
}

// New returns nil when ttl is not positive, which disables caching.
func New[T any](s store, entity string, ttl time.Duration, logg *logger.Logger) *Snapshots[T] {
	if s == nil || ttl <= 0 {
		return nil
	}
	return &Snapshots[T]{store: s, entity: entity, ttl: ttl, logg: logg}
}

func (c *Snapshots[T]) Get(ctx context.Context, id uuid.UUID) (*T, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.key(id))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, id, "cache read failed", err)
		}
		return nil, false
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.warn(ctx, id, "cache entry undecodable", err)
		return nil, false
	}
	return &out, true
}

func (c *Snapshots[T]) Put(ctx context.Context, id uuid.UUID, value *T) {
	if c == nil || value == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.warn(ctx, id, "cache encode failed", err)
		return
	}
	if err := c.store.Set(ctx, c.key(id), string(data), c.ttl); err != nil {
		c.warn(ctx, id, "cache write failed", err)
	}
}

// Invalidate drops the snapshot. Callers invoke it after commit.
func (c *Snapshots[T]) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.store.Del(ctx, c.key(id)); err != nil {
		c.warn(ctx, id, "cache invalidation failed", err)
	}
}

func (c *Snapshots[T]) key(id uuid.UUID) string {
	return c.store.CacheKey(c.entity, id.String())
}

func (c *Snapshots[T]) warn(ctx context.Context, id uuid.UUID, msg string, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"cache_entity": c.entity,
		"entity_id":    id.String(),
		"error":        err.Error(),
	})
	c.logg.Warn(logCtx, msg)
}
