package engagement

import (
	"context"
	"testing"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
)

const (
	freeChat = int64(-2001)
	vipChat  = int64(-2002)
)

func newService(t *testing.T, start time.Time) (*Service, *calendar.ManualClock, *dm_queue_repo.DMQueueRepositoryImpl) {
	t.Helper()
	store, err := postgres.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	set, err := templates.Load("../../../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	clock := calendar.NewManualClock(start)
	queue := dm_queue_repo.NewDMQueueRepository(store.DB)
	return NewService(store, dmqueue.NewProducer(queue, set, clock), freeChat, clock), clock, queue
}

func react(t *testing.T, s *Service, userID, chatID, messageID int64, emoji string, at time.Time) {
	t.Helper()
	r := &models.Reaction{UserID: userID, ChatID: chatID, MessageID: messageID, Emoji: emoji, ReactionTime: at}
	if err := s.RecordReaction(context.Background(), r); err != nil {
		t.Fatalf("RecordReaction: %v", err)
	}
}

func TestOfferNeedsFiveDistinctMessagesInWindow(t *testing.T) {
	ctx := context.Background()
	joined := calendar.Date(2026, 3, 2, 9, 0, 0)
	s, clock, queue := newService(t, joined)

	for _, u := range []int64{1, 2} {
		if err := s.RecordJoin(ctx, u, joined); err != nil {
			t.Fatalf("RecordJoin: %v", err)
		}
	}
	for msg := int64(1); msg <= 5; msg++ {
		react(t, s, 1, freeChat, msg, "🔥", joined.Add(time.Duration(msg)*time.Hour))
	}
	// user 2: four free-chat messages, one twice, plus reactions that do not count
	for msg := int64(1); msg <= 4; msg++ {
		react(t, s, 2, freeChat, msg, "👍", joined.Add(time.Hour))
	}
	react(t, s, 2, freeChat, 4, "🔥", joined.Add(2*time.Hour))
	react(t, s, 2, vipChat, 9, "👍", joined.Add(time.Hour))
	react(t, s, 2, freeChat, 10, "👍", joined.Add(Window+time.Minute))

	clock.Set(joined.Add(Window - time.Minute))
	if n, _ := s.OfferTick(ctx); n != 0 {
		t.Fatalf("offer sent before the window closed: %d", n)
	}

	clock.Set(joined.Add(Window + time.Hour))
	n, err := s.OfferTick(ctx)
	if err != nil || n != 1 {
		t.Fatalf("OfferTick = %d, %v", n, err)
	}
	if n, _ := s.OfferTick(ctx); n != 0 {
		t.Fatal("offer sent twice")
	}

	items, _ := queue.ListByUser(ctx, 1, 10)
	if len(items) != 1 || items[0].Label != dmqueue.LabelEngagementDiscount {
		t.Fatalf("user 1 queue = %+v", items)
	}
	if items, _ := queue.ListByUser(ctx, 2, 10); len(items) != 0 {
		t.Fatalf("user 2 queue = %+v", items)
	}
	if total, _ := s.ReactionCount(ctx); total != 11 {
		t.Fatalf("reaction log = %d rows", total)
	}
}

func TestMissedOfferIsJudgedOnce(t *testing.T) {
	ctx := context.Background()
	joined := calendar.Date(2026, 3, 2, 9, 0, 0)
	s, clock, queue := newService(t, joined)

	if err := s.RecordJoin(ctx, 3, joined); err != nil {
		t.Fatalf("RecordJoin: %v", err)
	}
	for msg := int64(1); msg < Threshold; msg++ {
		react(t, s, 3, freeChat, msg, "👍", joined.Add(time.Hour))
	}

	clock.Set(joined.Add(Window + time.Hour))
	if n, err := s.OfferTick(ctx); err != nil || n != 0 {
		t.Fatalf("OfferTick = %d, %v", n, err)
	}
	// A late reaction cannot reopen the closed window.
	react(t, s, 3, freeChat, 50, "🔥", joined.Add(Window+2*time.Hour))
	clock.Set(joined.Add(60 * 24 * time.Hour))

	cands, err := s.repo.ListOfferCandidates(ctx, clock.Now().Add(-Window))
	if err != nil || len(cands) != 0 {
		t.Fatalf("judged join still a candidate: %v, %v", cands, err)
	}
	if n, err := s.OfferTick(ctx); err != nil || n != 0 {
		t.Fatalf("OfferTick = %d, %v", n, err)
	}
	if items, _ := queue.ListByUser(ctx, 3, 10); len(items) != 0 {
		t.Fatalf("user 3 queue = %+v", items)
	}
}

func TestWeekSummary(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t, calendar.Date(2026, 3, 5, 18, 0, 0))

	joins := map[int64]time.Time{
		1: calendar.Date(2026, 3, 1, 23, 30, 0), // previous Sunday
		2: calendar.Date(2026, 3, 2, 0, 10, 0),
		3: calendar.Date(2026, 3, 2, 14, 0, 0),
		4: calendar.Date(2026, 3, 4, 9, 0, 0),
		5: calendar.Date(2026, 3, 5, 17, 0, 0),
	}
	for u, at := range joins {
		if err := s.RecordJoin(ctx, u, at); err != nil {
			t.Fatalf("RecordJoin: %v", err)
		}
	}

	sum, err := s.WeekSummary(ctx)
	if err != nil {
		t.Fatalf("WeekSummary: %v", err)
	}
	if want := [7]int{2, 0, 1, 1, 0, 0, 0}; sum.PerDay != want || sum.Total != 4 {
		t.Fatalf("summary = %+v", sum)
	}
	if !sum.WeekStart.Equal(calendar.Date(2026, 3, 2, 0, 0, 0)) {
		t.Errorf("week start = %v", sum.WeekStart)
	}
}
