package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-checkout/internal/domain"
)

const keyPrefix = "order:"

// RedisOrderCache keeps read-through copies of orders for the tracking
// endpoint. Entries are dropped on every status change.
type RedisOrderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOrderCache(rdb *redis.Client, ttl time.Duration) *RedisOrderCache {
	return &RedisOrderCache{rdb: rdb, ttl: ttl}
}

func (c *RedisOrderCache) Get(ctx context.Context, id string) (*domain.CommerceOrder, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var o domain.CommerceOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		// a corrupt entry is a miss
		_ = c.rdb.Del(ctx, keyPrefix+id).Err()
		return nil, false, nil
	}
	return &o, true, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, o *domain.CommerceOrder) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+o.ID, raw, c.ttl).Err()
}

func (c *RedisOrderCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, keyPrefix+id).Err()
}

// NopOrderCache is used when no Redis address is configured.
type NopOrderCache struct{}

func (NopOrderCache) Get(context.Context, string) (*domain.CommerceOrder, bool, error) {
	return nil, false, nil
}
func (NopOrderCache) Set(context.Context, *domain.CommerceOrder) error { return nil }
func (NopOrderCache) Invalidate(context.Context, string) error         { return nil }
