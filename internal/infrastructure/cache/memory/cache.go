// internal/infrastructure/cache/memory/cache.go
package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type entry struct {
	data    []byte
	expires time.Time // zero = never
}

// Cache is the in-process stand-in for the redis cache, with the same methods.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	granted map[int64]struct{}
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		granted: make(map[int64]struct{}),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) set(key string, data []byte, ttl time.Duration) {
	e := entry{data: data}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// get returns a live entry, dropping it if expired.
func (c *Cache) get(key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, data, ttl)
	return nil
}

func (c *Cache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	data, ok := c.get(key)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

type cachedPrice struct {
	Price    decimal.Decimal `json:"price"`
	Provider string          `json:"provider"`
}

func (c *Cache) GetPrice(ctx context.Context, pair string) (decimal.Decimal, string, bool) {
	var cp cachedPrice
	if ok, err := c.Get(ctx, "price:"+pair, &cp); !ok || err != nil {
		return decimal.Zero, "", false
	}
	return cp.Price, cp.Provider, true
}

func (c *Cache) SetPrice(ctx context.Context, pair string, price decimal.Decimal, provider string, ttl time.Duration) {
	_ = c.Set(ctx, "price:"+pair, cachedPrice{Price: price, Provider: provider}, ttl)
}

func (c *Cache) AddPendingJoin(_ context.Context, userID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(pendingKey(userID), []byte("1"), ttl)
	return nil
}

func (c *Cache) TakePendingJoin(_ context.Context, userID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.get(pendingKey(userID))
	delete(c.entries, pendingKey(userID))
	return ok, nil
}

func (c *Cache) MarkGranted(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.granted[userID] = struct{}{}
	return nil
}

func (c *Cache) ForgetGranted(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.granted, userID)
	return nil
}

func (c *Cache) WasGranted(_ context.Context, userID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.granted[userID]
	return ok, nil
}

func (c *Cache) LoadDialog(ctx context.Context, userID int64, dest interface{}) (bool, error) {
	return c.Get(ctx, dialogKey(userID), dest)
}

func (c *Cache) SaveDialog(ctx context.Context, userID int64, state interface{}, ttl time.Duration) error {
	return c.Set(ctx, dialogKey(userID), state, ttl)
}

func (c *Cache) ClearDialog(ctx context.Context, userID int64) error {
	return c.Delete(ctx, dialogKey(userID))
}

func pendingKey(userID int64) string {
	return "trial:pending:" + strconv.FormatInt(userID, 10)
}

func dialogKey(userID int64) string {
	return "console:dialog:" + strconv.FormatInt(userID, 10)
}
