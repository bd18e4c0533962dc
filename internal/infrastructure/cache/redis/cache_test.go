package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/infrastructure/config"
)

// Runs against a real server when REDIS_TEST_ADDR is set (host:port).
func testCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c := NewCache(addr, "", 15, "signaldesk-test:"+time.Now().Format("150405.000")+":")
	t.Cleanup(func() { c.client.Close() })
	return c
}

func TestPendingJoinTakenOnce(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.AddPendingJoin(ctx, 77, time.Minute); err != nil {
		t.Fatalf("AddPendingJoin: %v", err)
	}
	first, err := c.TakePendingJoin(ctx, 77)
	if err != nil || !first {
		t.Fatalf("first take = %v, %v", first, err)
	}
	second, _ := c.TakePendingJoin(ctx, 77)
	if second {
		t.Fatal("pending join taken twice")
	}
}

func TestGrantedSetAndPrices(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.MarkGranted(ctx, 5); err != nil {
		t.Fatalf("MarkGranted: %v", err)
	}
	if ok, _ := c.WasGranted(ctx, 5); !ok {
		t.Fatal("granted user not found")
	}
	c.ForgetGranted(ctx, 5)
	if ok, _ := c.WasGranted(ctx, 5); ok {
		t.Fatal("forgotten user still granted")
	}

	c.SetPrice(ctx, "EURUSD", decimal.RequireFromString("1.0852"), "fxratesapi", time.Minute)
	p, provider, ok := c.GetPrice(ctx, "EURUSD")
	if !ok || !p.Equal(decimal.RequireFromString("1.0852")) || provider != "fxratesapi" {
		t.Fatalf("GetPrice = %s %s %v", p, provider, ok)
	}
}

func TestServiceStartFailsWithoutServer(t *testing.T) {
	rs := NewRedisService(&config.RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 200 * time.Millisecond})
	if err := rs.Start(context.Background()); err == nil {
		rs.Stop()
		t.Fatal("Start succeeded against a closed port")
	}
	if rs.State() != StateError || rs.GetCache() != nil {
		t.Fatalf("state = %s", rs.State())
	}
}
