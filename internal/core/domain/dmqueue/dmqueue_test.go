package dmqueue

import (
	"context"
	"testing"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

type recordingStore struct {
	items []models.DMQueueItem
}

func (s *recordingStore) Enqueue(_ context.Context, userID int64, text, label string, at time.Time) (int64, error) {
	s.items = append(s.items, models.DMQueueItem{ID: int64(len(s.items) + 1), UserID: userID, MessageText: text, Label: label, CreatedAt: at})
	return int64(len(s.items)), nil
}

func TestProducerLabelsAndRenders(t *testing.T) {
	set, err := templates.Load("../../../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	clock := calendar.NewManualClock(calendar.Date(2026, 3, 9, 10, 0, 0))
	store := &recordingStore{}
	p := NewProducer(store, set, clock)

	if _, err := p.Enqueue(context.Background(), 42, templates.DMTrialStartedWeekend, map[string]string{"expiry": "Wed 22:59"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("items = %d", len(store.items))
	}
	item := store.items[0]
	if item.Label != LabelTrialStarted || item.UserID != 42 || item.MessageText == "" {
		t.Fatalf("item = %+v", item)
	}
	if !item.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created_at = %v", item.CreatedAt)
	}
}

func TestWelcomeEligibility(t *testing.T) {
	created := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	welcome := &models.DMQueueItem{Label: LabelWelcome, CreatedAt: created}
	expired := &models.DMQueueItem{Label: LabelTrialExpired, CreatedAt: created}

	if Eligible(welcome, created.Add(9*time.Minute+59*time.Second)) {
		t.Error("welcome eligible before 10 minutes")
	}
	if !Eligible(welcome, created.Add(10*time.Minute)) {
		t.Error("welcome not eligible at 10 minutes")
	}
	if !Eligible(expired, created) {
		t.Error("non-welcome DMs have no minimum age")
	}
}

func TestFollowupTemplate(t *testing.T) {
	for day, want := range map[int]string{3: templates.DMFollowup3, 7: templates.DMFollowup7, 14: templates.DMFollowup14, 5: ""} {
		if got := FollowupTemplate(day); got != want {
			t.Errorf("FollowupTemplate(%d) = %q", day, got)
		}
	}
}
