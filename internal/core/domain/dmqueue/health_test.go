package dmqueue

import (
	"context"
	"strings"
	"testing"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

type fixedStats struct{ stats models.DMQueueStats }

func (f fixedStats) Stats(context.Context) (*models.DMQueueStats, error) {
	s := f.stats
	return &s, nil
}

type settingMap map[string]string

func (m settingMap) Get(_ context.Context, key string) (*models.BotSetting, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &models.BotSetting{Key: key, Value: v}, nil
}

type notes struct{ texts []string }

func (n *notes) Notify(text string) { n.texts = append(n.texts, text) }

func TestMonitorWatch(t *testing.T) {
	now := calendar.Date(2026, 3, 10, 12, 0, 0)
	clock := calendar.NewManualClock(now)
	fresh := now.Add(-2 * time.Minute).Format(time.RFC3339)
	stale := now.Add(-11 * time.Minute).Format(time.RFC3339)

	tests := []struct {
		name     string
		pending  int
		settings settingMap
		alert    string
	}{
		{"empty queue", 0, settingMap{}, ""},
		{"healthy", 3, settingMap{models.SettingUserbotSession: "s", models.SettingUserbotHeartbeat: fresh}, ""},
		{"no session", 3, settingMap{models.SettingUserbotHeartbeat: fresh}, "session is missing"},
		{"stale heartbeat", 1, settingMap{models.SettingUserbotSession: "s", models.SettingUserbotHeartbeat: stale}, "11m0s old"},
		{"never beat", 1, settingMap{models.SettingUserbotSession: "s"}, "never reported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &notes{}
			m := NewMonitor(fixedStats{models.DMQueueStats{Pending: tt.pending}}, tt.settings, n, clock)
			if err := m.Watch(context.Background()); err != nil {
				t.Fatalf("Watch: %v", err)
			}
			if tt.alert == "" {
				if len(n.texts) != 0 {
					t.Fatalf("unexpected alert %q", n.texts)
				}
				return
			}
			if len(n.texts) != 1 || !strings.Contains(n.texts[0], tt.alert) {
				t.Fatalf("alerts = %q, want %q", n.texts, tt.alert)
			}
		})
	}
}
