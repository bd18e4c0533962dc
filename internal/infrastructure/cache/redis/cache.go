// internal/infrastructure/cache/redis/cache.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(addr, password string, db int, prefix string) *Cache {
	return NewCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), prefix)
}

// NewCacheWithClient builds a Cache on an existing client.
func NewCacheWithClient(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "signaldesk:"
	}
	return &Cache{client: client, prefix: prefix}
}

// Set stores value as JSON with a TTL (0 = no expiry).
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Get decodes a JSON value. found is false when the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(data), dest)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// ============================================
// PRICES
// ============================================

type cachedPrice struct {
	Price    string `json:"price"`
	Provider string `json:"provider"`
}

func priceKey(pair string) string { return "price:" + pair }

// GetPrice returns a cached quote for a normalized pair.
func (c *Cache) GetPrice(ctx context.Context, pair string) (decimal.Decimal, string, bool) {
	var cp cachedPrice
	found, err := c.Get(ctx, priceKey(pair), &cp)
	if err != nil || !found {
		return decimal.Zero, "", false
	}
	price, err := decimal.NewFromString(cp.Price)
	if err != nil {
		return decimal.Zero, "", false
	}
	return price, cp.Provider, true
}

// SetPrice caches a quote for ttl.
func (c *Cache) SetPrice(ctx context.Context, pair string, price decimal.Decimal, provider string, ttl time.Duration) {
	_ = c.Set(ctx, priceKey(pair), cachedPrice{Price: price.String(), Provider: provider}, ttl)
}

// ============================================
// TRIAL JOIN SETS
// ============================================

func pendingJoinKey(userID int64) string {
	return "trial:pending:" + strconv.FormatInt(userID, 10)
}

// AddPendingJoin remembers an approved join request for ttl.
func (c *Cache) AddPendingJoin(ctx context.Context, userID int64, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+pendingJoinKey(userID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("Cache.AddPendingJoin %d: %w", userID, err)
	}
	return nil
}

// TakePendingJoin removes the user from the pending set, reporting membership.
func (c *Cache) TakePendingJoin(ctx context.Context, userID int64) (bool, error) {
	n, err := c.client.Del(ctx, c.prefix+pendingJoinKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("Cache.TakePendingJoin %d: %w", userID, err)
	}
	return n == 1, nil
}

// MarkGranted adds the user to the set of users who ever got a trial.
func (c *Cache) MarkGranted(ctx context.Context, userID int64) error {
	if err := c.client.SAdd(ctx, c.prefix+"trial:granted", userID).Err(); err != nil {
		return fmt.Errorf("Cache.MarkGranted %d: %w", userID, err)
	}
	return nil
}

// ForgetGranted removes the user from the granted set.
func (c *Cache) ForgetGranted(ctx context.Context, userID int64) error {
	if err := c.client.SRem(ctx, c.prefix+"trial:granted", userID).Err(); err != nil {
		return fmt.Errorf("Cache.ForgetGranted %d: %w", userID, err)
	}
	return nil
}

func (c *Cache) WasGranted(ctx context.Context, userID int64) (bool, error) {
	ok, err := c.client.SIsMember(ctx, c.prefix+"trial:granted", userID).Result()
	if err != nil {
		return false, fmt.Errorf("Cache.WasGranted %d: %w", userID, err)
	}
	return ok, nil
}

// ============================================
// CONSOLE DIALOG STATE
// ============================================

func dialogKey(userID int64) string {
	return "console:dialog:" + strconv.FormatInt(userID, 10)
}

// LoadDialog restores an operator's half-finished menu flow.
func (c *Cache) LoadDialog(ctx context.Context, userID int64, dest interface{}) (bool, error) {
	return c.Get(ctx, dialogKey(userID), dest)
}

func (c *Cache) SaveDialog(ctx context.Context, userID int64, state interface{}, ttl time.Duration) error {
	return c.Set(ctx, dialogKey(userID), state, ttl)
}

func (c *Cache) ClearDialog(ctx context.Context, userID int64) error {
	return c.Delete(ctx, dialogKey(userID))
}
