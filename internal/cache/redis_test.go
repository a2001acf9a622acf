package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client, 15*time.Minute)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func sampleCart(userID string) *domain.Cart {
	return &domain.Cart{
		UserID:  userID,
		Version: 4,
		Items: []domain.CartItem{
			{ID: "i1", ProductID: "ring-1", Quantity: 2, UnitPrice: decimal.RequireFromString("1499.99"),
				SelectedVariation: &domain.Variation{Type: "gold", Karat: "18k", Color: "rose"}},
			{ID: "i2", ProductID: "chain-1", Quantity: 1, UnitPrice: decimal.NewFromInt(300)},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	cartJSON, err := json.Marshal(sampleCart(userID))
	require.NoError(t, err)
	mr.HSet(cacheKey(userID), "version", "4", "data", string(cartJSON))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, int64(4), result.Version)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "ring-1", result.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("1499.99").Equal(result.Items[0].UnitPrice))
	assert.Equal(t, "rose", result.Items[0].SelectedVariation.Color)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	userID := "user123"
	mr.HSet(cacheKey(userID), "version", "1", "data", `{"userId":"user1`)

	_, err := cache.Get(context.Background(), userID)
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := cache.Get(context.Background(), "user1")
	require.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_StoresWithJitteredTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	userID := "user456"
	require.NoError(t, cache.Set(context.Background(), userID, sampleCart(userID)))

	assert.True(t, mr.Exists(cacheKey(userID)))
	ttl := mr.TTL(cacheKey(userID))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 19*time.Minute)

	mr.FastForward(20 * time.Minute)
	assert.False(t, mr.Exists(cacheKey(userID)))
}

func TestSet_IgnoresStaleVersion(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-stale"

	fresh := sampleCart(userID)
	fresh.Version = 5
	require.NoError(t, cache.Set(ctx, userID, fresh))

	stale := sampleCart(userID)
	stale.Version = 3
	stale.Items = stale.Items[:1]
	require.NoError(t, cache.Set(ctx, userID, stale))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, "5", mr.HGet(cacheKey(userID), "version"))
}

func TestSet_SameVersionOverwrites(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-same"

	first := sampleCart(userID)
	require.NoError(t, cache.Set(ctx, userID, first))

	second := sampleCart(userID)
	second.Items = nil
	require.NoError(t, cache.Set(ctx, userID, second))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestNewRedisCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, 15*time.Minute, NewRedisCache(nil, 0).ttl)
}

func TestInvalidate(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user789"
	require.NoError(t, cache.Set(ctx, userID, sampleCart(userID)))

	require.NoError(t, cache.Invalidate(ctx, userID, 5))
	_, err := cache.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, "5", mr.HGet(cacheKey(userID), "version"))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey(userID)))

	// invalidating a missing key is not an error
	require.NoError(t, cache.Invalidate(ctx, "nobody", 1))
}

func TestInvalidate_BlocksStaleRepopulation(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-race"

	// a reader loaded version 3 from the store before the writer saved version 4
	stale := sampleCart(userID)
	stale.Version = 3
	stale.Items[0].ProductID = "old"

	require.NoError(t, cache.Invalidate(ctx, userID, 4))
	require.NoError(t, cache.Set(ctx, userID, stale))

	_, err := cache.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	fresh := sampleCart(userID)
	fresh.Version = 4
	require.NoError(t, cache.Set(ctx, userID, fresh))
	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, "ring-1", got.Items[0].ProductID)
}

func TestInvalidate_KeepsHigherVersion(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-order"
	fresh := sampleCart(userID)
	fresh.Version = 7
	require.NoError(t, cache.Set(ctx, userID, fresh))

	require.NoError(t, cache.Invalidate(ctx, userID, 6))
	assert.Equal(t, "7", mr.HGet(cacheKey(userID), "version"))
}

func TestInvalidate_TombstoneExpires(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.Invalidate(ctx, "user-ttl", 9))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(cacheKey("user-ttl")))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "jewel:cart:abc", cacheKey("abc"))
}
