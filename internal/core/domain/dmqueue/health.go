// internal/core/domain/dmqueue/health.go
package dmqueue

import (
	"context"
	"fmt"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// HeartbeatMaxAge is how old the sender heartbeat may get while DMs are pending.
const HeartbeatMaxAge = 10 * time.Minute

// StatsSource reads queue counters.
type StatsSource interface {
	Stats(ctx context.Context) (*models.DMQueueStats, error)
}

// SettingSource reads bot_settings.
type SettingSource interface {
	Get(ctx context.Context, key string) (*models.BotSetting, error)
}

// Health is the delivery side as seen from the main service.
type Health struct {
	models.DMQueueStats
	SessionPresent bool
	LastHeartbeat  *time.Time
}

// Stalled reports pending DMs with no session or a stale heartbeat.
func (h *Health) Stalled(now time.Time) bool {
	if h.Pending == 0 {
		return false
	}
	if !h.SessionPresent || h.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*h.LastHeartbeat) > HeartbeatMaxAge
}

// Problem describes why Stalled is true.
func (h *Health) Problem(now time.Time) string {
	switch {
	case !h.SessionPresent:
		return "userbot session is missing; send /userbot setup"
	case h.LastHeartbeat == nil:
		return "userbot never reported a heartbeat"
	default:
		return fmt.Sprintf("userbot heartbeat is %s old", now.Sub(*h.LastHeartbeat).Round(time.Minute))
	}
}

// Monitor checks the queue and the userbot heartbeat.
type Monitor struct {
	stats    StatsSource
	settings SettingSource
	notify   Notifier
	clock    calendar.Clock
}

// Notifier receives operator alerts.
type Notifier interface {
	Notify(text string)
}

func NewMonitor(stats StatsSource, settings SettingSource, notify Notifier, clock calendar.Clock) *Monitor {
	return &Monitor{stats: stats, settings: settings, notify: notify, clock: clock}
}

// Check reads the current health.
func (m *Monitor) Check(ctx context.Context) (*Health, error) {
	st, err := m.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("Monitor.Check: %w", err)
	}
	h := &Health{DMQueueStats: *st}
	metrics.DMQueuePending.Set(float64(st.Pending))

	session, err := m.settings.Get(ctx, models.SettingUserbotSession)
	if err != nil {
		return nil, fmt.Errorf("Monitor.Check: %w", err)
	}
	h.SessionPresent = session != nil && session.Value != ""

	hb, err := m.settings.Get(ctx, models.SettingUserbotHeartbeat)
	if err != nil {
		return nil, fmt.Errorf("Monitor.Check: %w", err)
	}
	if hb != nil {
		if t, err := time.Parse(time.RFC3339, hb.Value); err == nil {
			h.LastHeartbeat = &t
		} else {
			logger.Warn("⚠️ Unreadable userbot heartbeat %q", hb.Value)
		}
	}
	return h, nil
}

// Watch alerts the operator when DMs are pending and the sender looks down.
func (m *Monitor) Watch(ctx context.Context) error {
	h, err := m.Check(ctx)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	if !h.Stalled(now) {
		return nil
	}
	problem := h.Problem(now)
	logger.Warn("⚠️ DM delivery stalled: %d pending, %s", h.Pending, problem)
	if m.notify != nil {
		m.notify.Notify(fmt.Sprintf("🚨 DM delivery stalled: %d pending, %s", h.Pending, problem))
	}
	return nil
}
