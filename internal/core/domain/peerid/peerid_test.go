package peerid

import (
	"context"
	"testing"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
)

type scriptedResolver struct {
	clock  *calendar.ManualClock
	from   time.Time
	checks []time.Time
}

func (r *scriptedResolver) CanAddress(context.Context, int64) (bool, error) {
	now := r.clock.Now()
	r.checks = append(r.checks, now)
	return !r.from.IsZero() && !now.Before(r.from), nil
}

func newPipeline(t *testing.T, start time.Time) (*Pipeline, *scriptedResolver, *postgres.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := postgres.OpenMemory(ctx)
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
	res := &scriptedResolver{clock: clock}
	return NewPipeline(store, dmqueue.NewProducer(queue, set, clock), res, clock), res, store
}

func runUntil(t *testing.T, p *Pipeline, clock *calendar.ManualClock, end time.Time) {
	t.Helper()
	for clock.Now().Before(end) {
		clock.Advance(time.Minute)
		if _, err := p.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
}

func TestAdvanceWalksTheLadder(t *testing.T) {
	joined := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	probe := NewProbe(7, joined)

	cases := []struct {
		at           time.Duration
		delay, every int
		next         time.Duration
	}{
		{3 * time.Minute, 30, 3, 6 * time.Minute},
		{30 * time.Minute, 60, 10, 40 * time.Minute},
		{60 * time.Minute, 180, 20, 80 * time.Minute},
		{180 * time.Minute, 1440, 20, 200 * time.Minute},
	}
	for _, c := range cases {
		delay, every, next := Advance(probe, joined.Add(c.at))
		if delay != c.delay || every != c.every || next == nil || !next.Equal(joined.Add(c.next)) {
			t.Fatalf("Advance(+%v) = %d, %d, %v", c.at, delay, every, next)
		}
		probe.CurrentDelayMinutes, probe.CurrentIntervalMinutes = delay, every
	}

	if _, _, next := Advance(probe, joined.Add(24*time.Hour)); next != nil {
		t.Fatalf("probe past 24h must be abandoned, next = %v", next)
	}
}

func TestWelcomeQueuedOncePeerResolves(t *testing.T) {
	ctx := context.Background()
	joined := calendar.Date(2026, 3, 4, 12, 0, 0)
	p, res, store := newPipeline(t, joined)
	clock := res.clock
	res.from = joined.Add(80 * time.Minute)

	if err := p.Enroll(ctx, 42, joined); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := p.Enroll(ctx, 42, joined.Add(time.Minute)); err != nil {
		t.Fatalf("second Enroll: %v", err)
	}

	runUntil(t, p, clock, joined.Add(2*time.Hour))

	var want []time.Time
	for m := 3; m <= 30; m += 3 {
		want = append(want, joined.Add(time.Duration(m)*time.Minute))
	}
	for _, m := range []int{40, 50, 60, 80} {
		want = append(want, joined.Add(time.Duration(m)*time.Minute))
	}
	if len(res.checks) != len(want) {
		t.Fatalf("checks = %v", res.checks)
	}
	for i := range want {
		if !res.checks[i].Equal(want[i]) {
			t.Fatalf("check %d at %v, want %v", i, res.checks[i], want[i])
		}
	}

	status, err := p.Status(ctx, 42)
	if err != nil || status.Probe == nil {
		t.Fatalf("Status = %+v, %v", status, err)
	}
	if !status.Probe.PeerEstablished || !status.Probe.WelcomeDMSent {
		t.Fatalf("probe = %+v", status.Probe)
	}

	items, err := dm_queue_repo.NewDMQueueRepository(store.DB).ListByUser(ctx, 42, 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 1 || items[0].Label != dmqueue.LabelWelcome {
		t.Fatalf("queue = %+v", items)
	}
}

func TestUnreachableProbeIsAbandoned(t *testing.T) {
	ctx := context.Background()
	joined := calendar.Date(2026, 3, 4, 12, 0, 0)
	p, res, store := newPipeline(t, joined)

	if err := p.Enroll(ctx, 42, joined); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	runUntil(t, p, res.clock, joined.Add(25*time.Hour))

	status, _ := p.Status(ctx, 42)
	if !status.Probe.Abandoned() {
		t.Fatalf("probe = %+v", status.Probe)
	}
	last := res.checks[len(res.checks)-1]
	if last.Before(joined.Add(24 * time.Hour)) {
		t.Fatalf("last check at %v, before the 24h cutoff", last)
	}
	counts, err := p.Counts(ctx)
	if err != nil || counts.Abandoned != 1 || counts.Waiting != 0 {
		t.Fatalf("Counts = %+v, %v", counts, err)
	}
	items, _ := dm_queue_repo.NewDMQueueRepository(store.DB).ListByUser(ctx, 42, 10)
	if len(items) != 0 {
		t.Fatalf("abandoned probe queued %d DMs", len(items))
	}
}
