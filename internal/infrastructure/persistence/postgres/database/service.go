// internal/infrastructure/persistence/postgres/database/service.go
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/pkg/logger"
)

// DatabaseService owns the process-wide Store and reports on it.
type DatabaseService struct {
	config *config.DatabaseConfig
	store  *postgres.Store
	mu     sync.RWMutex
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

// Tables reported by /dbstatus
var Tables = []string{
	"active_trades", "completed_trades", "trial_members", "trial_history",
	"followup_schedule", "peer_probes", "userbot_dm_queue", "free_chat_joins",
	"reactions", "bot_settings", "userbot_peers",
}

func NewDatabaseService(cfg *config.DatabaseConfig) *DatabaseService {
	return &DatabaseService{config: cfg, state: StateStopped}
}

// NewFromStore wraps an already open store.
func NewFromStore(store *postgres.Store) *DatabaseService {
	return &DatabaseService{config: &config.DatabaseConfig{}, store: store, state: StateRunning}
}

// Start connects and migrates. A failure here is fatal for the caller.
func (ds *DatabaseService) Start(ctx context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateRunning {
		return fmt.Errorf("database service already running")
	}

	logger.Info("🔄 Starting database service...")
	ds.state = StateStarting

	store, err := postgres.Connect(ctx, postgres.Config{
		URL:             ds.config.URL,
		MaxOpenConns:    ds.config.MaxOpenConns,
		MaxIdleConns:    ds.config.MaxIdleConns,
		MaxConnLifetime: ds.config.MaxConnLifetime,
		MaxConnIdleTime: ds.config.MaxConnIdleTime,
		AutoMigrate:     ds.config.EnableAutoMigrate,
	})
	if err != nil {
		ds.state = StateError
		return fmt.Errorf("failed to start database: %w", err)
	}

	ds.store = store
	ds.state = StateRunning
	logger.Info("✅ Database service running (%s, pool %d/%d)",
		store.Dialect, ds.config.MaxIdleConns, ds.config.MaxOpenConns)

	if statuses, err := migrationStatus(ctx, store); err == nil {
		for _, st := range statuses {
			icon := "⏳"
			if st.Applied {
				icon = "✅"
			}
			logger.Debug("   %s %03d: %s", icon, st.ID, st.Name)
		}
	}
	return nil
}

// Stop closes the pool.
func (ds *DatabaseService) Stop() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state != StateRunning {
		return fmt.Errorf("database service is not running")
	}

	logger.Info("🛑 Stopping database service...")
	ds.state = StateStopping
	if err := ds.store.Close(); err != nil {
		ds.state = StateError
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	ds.store = nil
	ds.state = StateStopped
	logger.Info("✅ Database service stopped")
	return nil
}

// Store returns the open store, nil before Start.
func (ds *DatabaseService) Store() *postgres.Store {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store
}

func (ds *DatabaseService) State() ServiceState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// HealthCheck pings the database.
func (ds *DatabaseService) HealthCheck(ctx context.Context) bool {
	store := ds.Store()
	if store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.DB.PingContext(ctx); err != nil {
		logger.Warn("⚠️ Database health check failed: %v", err)
		return false
	}
	return true
}

// Stats - what /dbstatus prints
type Stats struct {
	State             ServiceState
	Dialect           postgres.Dialect
	Healthy           bool
	OpenConnections   int
	InUse             int
	Idle              int
	WaitCount         int64
	WaitDuration      time.Duration
	MigrationsApplied int
	MigrationsTotal   int
	TableCounts       map[string]int
}

// GetStats collects pool, migration and table statistics.
// Table count failures are reported as -1.
func (ds *DatabaseService) GetStats(ctx context.Context) Stats {
	st := Stats{State: ds.State()}
	store := ds.Store()
	if store == nil {
		return st
	}

	st.Dialect = store.Dialect
	st.Healthy = ds.HealthCheck(ctx)
	pool := store.DB.Stats()
	st.OpenConnections = pool.OpenConnections
	st.InUse = pool.InUse
	st.Idle = pool.Idle
	st.WaitCount = pool.WaitCount
	st.WaitDuration = pool.WaitDuration

	if statuses, err := migrationStatus(ctx, store); err == nil {
		st.MigrationsTotal = len(statuses)
		for _, s := range statuses {
			if s.Applied {
				st.MigrationsApplied++
			}
		}
	}

	st.TableCounts = make(map[string]int, len(Tables))
	for _, table := range Tables {
		var n int
		if err := store.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			n = -1
		}
		st.TableCounts[table] = n
	}
	return st
}

func migrationStatus(ctx context.Context, store *postgres.Store) ([]postgres.MigrationStatus, error) {
	migrator := postgres.NewMigrator(store.DB, store.Dialect)
	if err := migrator.LoadEmbedded(); err != nil {
		return nil, err
	}
	return migrator.Status(ctx)
}
