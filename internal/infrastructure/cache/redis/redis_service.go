// internal/infrastructure/cache/redis/redis_service.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/pkg/logger"
)

// RedisService owns the redis client of a process.
type RedisService struct {
	config *config.RedisConfig
	client *redis.Client
	state  ServiceState
}

// ServiceState - lifecycle state of the service
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	return &RedisService{config: cfg, state: StateStopped}
}

// Start connects and pings.
func (rs *RedisService) Start(ctx context.Context) error {
	if rs.state == StateRunning {
		return fmt.Errorf("Redis service already running")
	}

	logger.Info("🔄 Starting Redis service...")
	rs.state = StateStarting

	cfg := rs.config
	options := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	rs.client = redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger.Info("📡 Connecting to Redis: %s (DB: %d)", options.Addr, cfg.DB)
	if _, err := rs.client.Ping(pingCtx).Result(); err != nil {
		rs.client.Close()
		rs.client = nil
		rs.state = StateError
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rs.state = StateRunning
	logger.Info("✅ Successfully connected to Redis (pool %d, min idle %d)", cfg.PoolSize, cfg.MinIdleConns)
	return nil
}

func (rs *RedisService) Stop() error {
	if rs.state != StateRunning {
		return fmt.Errorf("Redis service is not running")
	}

	logger.Info("🛑 Stopping Redis service...")
	rs.state = StateStopping
	if err := rs.client.Close(); err != nil {
		rs.state = StateError
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	rs.client = nil
	rs.state = StateStopped
	logger.Info("✅ Redis service stopped")
	return nil
}

func (rs *RedisService) State() ServiceState {
	return rs.state
}

// HealthCheck pings the server.
func (rs *RedisService) HealthCheck(ctx context.Context) bool {
	if rs.state != StateRunning || rs.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := rs.client.Ping(ctx).Result(); err != nil {
		logger.Warn("⚠️ Redis health check failed: %v", err)
		return false
	}
	return true
}

// GetCache returns a prefixed cache over the running client.
func (rs *RedisService) GetCache() *Cache {
	if rs.client == nil {
		return nil
	}
	return NewCacheWithClient(rs.client, rs.config.Prefix)
}
