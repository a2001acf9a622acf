package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "jewel:cart:"
	fieldData = "data"

	tombstoneTTL = time.Minute
)

// setIfNewer writes the cart unless the cached copy carries a higher version.
// A reader that loaded an old cart from Mongo must not overwrite the fresh
// copy a concurrent writer already cached.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// markStale drops the cached body but keeps the newest known version, so a
// reader still holding an older cart cannot repopulate the entry.
var markStale = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
local ver = ARGV[1]
if cur and tonumber(cur) > tonumber(ver) then
	ver = cur
end
redis.call('HDEL', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'version', ver)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisCache keeps serialized carts in a hash per user, tagged with the cart
// version.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.HGet(ctx, cacheKey(userID), fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// Set stores the cart for the configured TTL plus up to four minutes of jitter.
// Stale versions are dropped silently.
func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.ttl + time.Duration(rand.Intn(5))*time.Minute
	err = setIfNewer.Run(ctx, r.client, []string{cacheKey(userID)},
		cart.Version, payload, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate replaces the entry with a short-lived tombstone carrying version.
// Later Set calls below that version are ignored until it expires.
func (r *RedisCache) Invalidate(ctx context.Context, userID string, version int64) error {
	err := markStale.Run(ctx, r.client, []string{cacheKey(userID)},
		version, tombstoneTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}
