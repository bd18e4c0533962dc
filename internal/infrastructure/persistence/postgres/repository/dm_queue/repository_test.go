package dm_queue_repo

import (
	"context"
	"testing"
	"time"

	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := postgres.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()
	repo := NewDMQueueRepository(store.DB)

	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i, label := range []string{"Welcome DM", "Trial Started", "Trial Expired"} {
		id, err := repo.Enqueue(ctx, int64(10+i), "hello", label, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] >= ids[1] || ids[1] >= ids[2] {
		t.Fatalf("ids not increasing: %v", ids)
	}

	pending, err := repo.FetchPending(ctx, base.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(pending) != 2 || pending[0].Label != "Welcome DM" || pending[1].Label != "Trial Started" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := repo.MarkSent(ctx, ids[0], base.Add(15*time.Minute)); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := repo.MarkFailed(ctx, ids[1], "USER_PRIVACY_RESTRICTED"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.OldestPending == nil || !stats.OldestPending.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("oldest pending = %v", stats.OldestPending)
	}

	items, err := repo.ListByUser(ctx, 11, 5)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListByUser = %v, %v", items, err)
	}
	if items[0].Status != models.DMStatusFailed || items[0].ErrorText != "USER_PRIVACY_RESTRICTED" {
		t.Fatalf("item = %+v", items[0])
	}
}

func TestPostponedRowsLeaveTheBatch(t *testing.T) {
	ctx := context.Background()
	store, err := postgres.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()
	repo := NewDMQueueRepository(store.DB)

	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	first, err := repo.Enqueue(ctx, 1, "day 3", "Follow-up Day 3", base)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second, err := repo.Enqueue(ctx, 2, "hello", "Trial Started", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := repo.Postpone(ctx, first, base.Add(30*time.Minute)); err != nil {
		t.Fatalf("Postpone: %v", err)
	}

	pending, err := repo.FetchPending(ctx, base.Add(10*time.Minute), 1)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Fatalf("postponed row still first in the batch: %+v", pending)
	}

	pending, err = repo.FetchPending(ctx, base.Add(30*time.Minute), 5)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first || !pending[0].NextAttemptAt.Valid {
		t.Fatalf("postponed row not back in FIFO order: %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil || stats.Pending != 2 {
		t.Fatalf("postponed rows must stay pending: %+v, %v", stats, err)
	}
}
