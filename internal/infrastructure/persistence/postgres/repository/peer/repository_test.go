package peer_repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

func newRepo(t *testing.T) *PeerRepositoryImpl {
	t.Helper()
	store, err := postgres.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewPeerRepository(store.DB)
}

func TestProbeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	joined := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)

	probe := &models.PeerProbe{
		UserID: 42, JoinedAt: joined,
		CurrentDelayMinutes: 30, CurrentIntervalMinutes: 3,
		NextCheckAt: sql.NullTime{Time: joined.Add(3 * time.Minute), Valid: true},
	}
	inserted, err := repo.InsertProbe(ctx, probe)
	if err != nil || !inserted {
		t.Fatalf("InsertProbe = %v, %v", inserted, err)
	}
	inserted, err = repo.InsertProbe(ctx, probe)
	if err != nil || inserted {
		t.Fatalf("second InsertProbe = %v, %v", inserted, err)
	}

	due, err := repo.ListDueProbes(ctx, joined.Add(2*time.Minute), 50)
	if err != nil || len(due) != 0 {
		t.Fatalf("not yet due: %v, %v", due, err)
	}
	due, err = repo.ListDueProbes(ctx, joined.Add(3*time.Minute), 50)
	if err != nil || len(due) != 1 {
		t.Fatalf("due = %v, %v", due, err)
	}

	next := joined.Add(40 * time.Minute)
	if err := repo.RescheduleProbe(ctx, 42, 60, 10, &next); err != nil {
		t.Fatalf("RescheduleProbe: %v", err)
	}
	got, _ := repo.GetProbe(ctx, 42)
	if got.CurrentDelayMinutes != 60 || got.CurrentIntervalMinutes != 10 || !got.NextCheckAt.Time.Equal(next) {
		t.Fatalf("probe = %+v", got)
	}

	if err := repo.RescheduleProbe(ctx, 42, 1440, 20, nil); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	got, _ = repo.GetProbe(ctx, 42)
	if !got.Abandoned() {
		t.Fatalf("probe not abandoned: %+v", got)
	}
	due, _ = repo.ListDueProbes(ctx, joined.Add(48*time.Hour), 50)
	if len(due) != 0 {
		t.Fatalf("abandoned probe listed as due")
	}
	counts, err := repo.ProbeCounts(ctx)
	if err != nil || counts.Abandoned != 1 {
		t.Fatalf("ProbeCounts = %+v, %v", counts, err)
	}
}

func TestMarkEstablishedOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	joined := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	repo.InsertProbe(ctx, &models.PeerProbe{
		UserID: 5, JoinedAt: joined, CurrentDelayMinutes: 30, CurrentIntervalMinutes: 3,
		NextCheckAt: sql.NullTime{Time: joined, Valid: true},
	})

	first, err := repo.MarkEstablished(ctx, 5, joined.Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("MarkEstablished = %v, %v", first, err)
	}
	second, _ := repo.MarkEstablished(ctx, 5, joined.Add(2*time.Hour))
	if second {
		t.Fatal("MarkEstablished flipped twice")
	}
	got, _ := repo.GetProbe(ctx, 5)
	if !got.PeerEstablished || !got.WelcomeDMSent || !got.EstablishedAt.Valid || got.NextCheckAt.Valid {
		t.Fatalf("probe = %+v", got)
	}
}

func TestUserbotPeers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seen := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)

	if err := repo.UpsertPeer(ctx, &models.UserbotPeer{UserID: 1, AccessHash: 111, Username: "old", SeenAt: seen}); err != nil {
		t.Fatalf("UpsertPeer: %v", err)
	}
	if err := repo.UpsertPeer(ctx, &models.UserbotPeer{UserID: 1, AccessHash: 222, Username: "new", SeenAt: seen.Add(time.Hour)}); err != nil {
		t.Fatalf("UpsertPeer: %v", err)
	}
	p, err := repo.GetPeer(ctx, 1)
	if err != nil || p == nil || p.AccessHash != 222 || p.Username != "new" {
		t.Fatalf("GetPeer = %+v, %v", p, err)
	}
	missing, err := repo.GetPeer(ctx, 2)
	if err != nil || missing != nil {
		t.Fatalf("GetPeer(missing) = %v, %v", missing, err)
	}
	if n, _ := repo.CountPeers(ctx); n != 1 {
		t.Fatalf("CountPeers = %d", n)
	}
}
