package trial

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/cache/memory"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	trial_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trial"
)

const (
	vipChat  = int64(-1001)
	freeChat = int64(-1002)
)

type fakeMembership struct {
	approved, declined, kicked []int64
	presence                   map[int64]Presence
	statusErr                  map[int64]error
}

func (m *fakeMembership) ApproveJoin(_ context.Context, _, userID int64) error {
	m.approved = append(m.approved, userID)
	return nil
}

func (m *fakeMembership) DeclineJoin(_ context.Context, _, userID int64) error {
	m.declined = append(m.declined, userID)
	return nil
}

func (m *fakeMembership) KickAndUnban(_ context.Context, _, userID int64) error {
	m.kicked = append(m.kicked, userID)
	return nil
}

func (m *fakeMembership) MemberStatus(_ context.Context, _, userID int64) (Presence, error) {
	if err := m.statusErr[userID]; err != nil {
		return Absent, err
	}
	return m.presence[userID], nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type fixture struct {
	engine *Engine
	store  *postgres.Store
	clock  *calendar.ManualClock
	member *fakeMembership
	cache  *memory.Cache
	trials *trial_repo.TrialRepositoryImpl
	queue  *dm_queue_repo.DMQueueRepositoryImpl
}

func newFixture(t *testing.T, start time.Time) *fixture {
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
	f := &fixture{
		store:  store,
		clock:  calendar.NewManualClock(start),
		member: &fakeMembership{presence: map[int64]Presence{}, statusErr: map[int64]error{}},
		cache:  memory.NewCache(),
		trials: trial_repo.NewTrialRepository(store.DB),
		queue:  dm_queue_repo.NewDMQueueRepository(store.DB),
	}
	producer := dmqueue.NewProducer(f.queue, set, f.clock)
	f.engine = NewEngine(Config{VIPChatID: vipChat, FreeChatID: freeChat}, store, producer, f.member, f.cache, nopNotifier{}, f.clock)
	return f
}

// labels returns a user's queued DM labels, oldest first.
func (f *fixture) labels(t *testing.T, userID int64) []string {
	t.Helper()
	items, err := f.queue.ListByUser(context.Background(), userID, 100)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it.Label
	}
	return out
}

func TestSaturdayTrialLifecycle(t *testing.T) {
	ctx := context.Background()
	const userA = int64(501)
	f := newFixture(t, calendar.Date(2026, 3, 7, 13, 37, 0))

	decision, err := f.engine.HandleJoinRequest(ctx, vipChat, userA)
	if err != nil || decision != Approved {
		t.Fatalf("HandleJoinRequest = %v, %v", decision, err)
	}
	if err := f.engine.HandleJoin(ctx, vipChat, userA); err != nil {
		t.Fatalf("HandleJoin: %v", err)
	}
	m, err := f.trials.GetMember(ctx, userA)
	if err != nil || m == nil {
		t.Fatalf("GetMember = %v, %v", m, err)
	}
	if want := calendar.Date(2026, 3, 11, 22, 59, 0); !m.ExpiryTime.Equal(want) {
		t.Fatalf("expiry = %v, want %v", calendar.Local(m.ExpiryTime), want)
	}
	if !m.WeekendDelayed {
		t.Fatal("Saturday join must be weekend_delayed")
	}
	items, _ := f.queue.ListByUser(ctx, userA, 1)
	if !strings.Contains(items[0].MessageText, "Wed 11 Mar 22:59") {
		t.Errorf("start DM = %q", items[0].MessageText)
	}

	f.clock.Set(calendar.Date(2026, 3, 9, 0, 1, 0))
	for i := 0; i < 2; i++ {
		if _, err := f.engine.ExpiryTick(ctx); err != nil {
			t.Fatalf("ExpiryTick: %v", err)
		}
	}

	f.clock.Set(calendar.Date(2026, 3, 10, 23, 0, 0))
	if n, _ := f.engine.WarningTick(ctx, false); n != 1 {
		t.Fatalf("24h warnings = %d", n)
	}
	if n, _ := f.engine.WarningTick(ctx, false); n != 0 {
		t.Fatalf("24h warning sent twice")
	}
	f.clock.Set(calendar.Date(2026, 3, 11, 20, 0, 0))
	if n, _ := f.engine.WarningTick(ctx, false); n != 1 {
		t.Fatalf("3h warnings = %d", n)
	}

	f.clock.Set(calendar.Date(2026, 3, 11, 22, 59, 0))
	if n, err := f.engine.ExpiryTick(ctx); err != nil || n != 1 {
		t.Fatalf("ExpiryTick = %d, %v", n, err)
	}
	if !reflect.DeepEqual(f.member.kicked, []int64{userA}) {
		t.Fatalf("kicked = %v", f.member.kicked)
	}
	if m, _ := f.trials.GetMember(ctx, userA); m != nil {
		t.Fatal("membership row survived expiry")
	}
	h, _ := f.trials.GetHistory(ctx, userA)
	if h == nil || !h.LastExpired.Valid {
		t.Fatalf("history = %+v", h)
	}

	expired := f.clock.Now()
	for _, day := range []int{3, 7, 14} {
		f.clock.Set(expired.Add(time.Duration(day) * 24 * time.Hour))
		if n, err := f.engine.FollowupTick(ctx); err != nil || n != 1 {
			t.Fatalf("follow-up day %d = %d, %v", day, n, err)
		}
		if n, _ := f.engine.FollowupTick(ctx); n != 0 {
			t.Fatalf("follow-up day %d sent twice", day)
		}
	}

	want := []string{
		dmqueue.LabelTrialStarted, dmqueue.LabelMondayActivation, dmqueue.LabelWarning24h,
		dmqueue.LabelWarning3h, dmqueue.LabelTrialExpired,
		dmqueue.LabelFollowup3, dmqueue.LabelFollowup7, dmqueue.LabelFollowup14,
	}
	if got := f.labels(t, userA); !reflect.DeepEqual(got, want) {
		t.Fatalf("queue = %v\nwant    %v", got, want)
	}
}

func TestTrialReuseIsDeclined(t *testing.T) {
	ctx := context.Background()
	const userB = int64(502)
	f := newFixture(t, calendar.Date(2026, 3, 4, 10, 0, 0))
	if err := f.trials.RecordGrant(ctx, userB, calendar.Date(2026, 2, 2, 10, 0, 0)); err != nil {
		t.Fatalf("RecordGrant: %v", err)
	}

	decision, err := f.engine.HandleJoinRequest(ctx, vipChat, userB)
	if err != nil || decision != Rejected {
		t.Fatalf("HandleJoinRequest = %v, %v", decision, err)
	}
	if len(f.member.approved) != 0 || !reflect.DeepEqual(f.member.declined, []int64{userB}) {
		t.Fatalf("approved=%v declined=%v", f.member.approved, f.member.declined)
	}
	if got := f.labels(t, userB); !reflect.DeepEqual(got, []string{dmqueue.LabelTrialRejected}) {
		t.Fatalf("queue = %v", got)
	}
	if err := f.engine.HandleJoin(ctx, vipChat, userB); err != nil {
		t.Fatalf("HandleJoin: %v", err)
	}
	if m, _ := f.trials.GetMember(ctx, userB); m != nil {
		t.Fatal("declined user got a trial")
	}
}

func TestGateFallsBackToGrantedSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2026, 3, 4, 10, 0, 0))
	f.cache.MarkGranted(ctx, 7)
	f.store.Close()

	if d, err := f.engine.HandleJoinRequest(ctx, vipChat, 7); err != nil || d != Rejected {
		t.Fatalf("granted user: %v, %v", d, err)
	}
	if d, err := f.engine.HandleJoinRequest(ctx, vipChat, 8); err != nil || d != Deferred {
		t.Fatalf("unknown user: %v, %v", d, err)
	}
	if len(f.member.approved) != 0 || !reflect.DeepEqual(f.member.declined, []int64{7}) {
		t.Fatalf("approved=%v declined=%v", f.member.approved, f.member.declined)
	}
}

func TestPayingMemberAndFreeJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2026, 3, 4, 10, 0, 0))
	var hooked []int64
	f.engine.OnFreeJoin(func(_ context.Context, userID int64, at time.Time) error {
		hooked = append(hooked, userID)
		return errors.New("ignored")
	})

	if err := f.engine.HandleJoin(ctx, vipChat, 9); err != nil {
		t.Fatalf("HandleJoin vip: %v", err)
	}
	if m, _ := f.trials.GetMember(ctx, 9); m != nil {
		t.Fatal("paying member must not be tracked")
	}
	if err := f.engine.HandleJoin(ctx, freeChat, 10); err != nil {
		t.Fatalf("HandleJoin free: %v", err)
	}
	if !reflect.DeepEqual(hooked, []int64{10}) {
		t.Fatalf("hooks ran for %v", hooked)
	}
}

func TestFollowupCatchUpQueuesEveryMissedMilestone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2026, 3, 20, 10, 0, 0))
	for _, u := range []int64{1, 2, 3} {
		if err := f.trials.SeedFollowups(ctx, u, calendar.Date(2026, 3, 10, 9, 0, 0)); err != nil {
			t.Fatalf("SeedFollowups: %v", err)
		}
	}
	f.member.presence[2] = Present
	f.member.statusErr[3] = errors.New("timeout")

	n, err := f.engine.FollowupTick(ctx)
	if err != nil || n != 2 {
		t.Fatalf("FollowupTick = %d, %v", n, err)
	}
	if got := f.labels(t, 1); !reflect.DeepEqual(got, []string{dmqueue.LabelFollowup3, dmqueue.LabelFollowup7}) {
		t.Fatalf("user 1 queue = %v", got)
	}
	for _, u := range []int64{2, 3} {
		if got := f.labels(t, u); len(got) != 0 {
			t.Fatalf("user %d queue = %v", u, got)
		}
	}

	list, _ := f.trials.ListFollowups(ctx)
	for _, s := range list {
		if s.UserID == 1 && (!s.DM3Sent || !s.DM7Sent || s.DM14Sent) {
			t.Fatalf("user 1 schedule = %+v", s)
		}
		if s.UserID != 1 && (s.DM3Sent || s.DM7Sent) {
			t.Fatalf("user %d flipped: %+v", s.UserID, s)
		}
	}

	if n, err := f.engine.FollowupTick(ctx); err != nil || n != 0 {
		t.Fatalf("repeat FollowupTick = %d, %v", n, err)
	}
	f.clock.Set(calendar.Date(2026, 3, 24, 10, 0, 0))
	if n, err := f.engine.FollowupTick(ctx); err != nil || n != 1 {
		t.Fatalf("day 14 FollowupTick = %d, %v", n, err)
	}
	want := []string{dmqueue.LabelFollowup3, dmqueue.LabelFollowup7, dmqueue.LabelFollowup14}
	if got := f.labels(t, 1); !reflect.DeepEqual(got, want) {
		t.Fatalf("user 1 queue = %v", got)
	}
}

func TestEveryMemberGetsTheThreeHourWarning(t *testing.T) {
	ctx := context.Background()
	expiry := calendar.Date(2026, 3, 10, 22, 59, 0)
	for phase := time.Duration(0); phase < 10*time.Minute; phase += time.Minute {
		start := expiry.Add(-3*time.Hour - 20*time.Minute + phase)
		f := newFixture(t, start)
		if err := f.trials.InsertMember(ctx, &models.TrialMember{
			UserID: 5, ChatID: vipChat, JoinedAt: calendar.Date(2026, 3, 5, 22, 59, 0), ExpiryTime: expiry,
		}); err != nil {
			t.Fatalf("InsertMember: %v", err)
		}
		for f.clock.Now().Before(expiry.Add(-2*time.Hour - 30*time.Minute)) {
			if _, err := f.engine.WarningTick(ctx, false); err != nil {
				t.Fatalf("WarningTick: %v", err)
			}
			f.clock.Advance(WarningInterval)
		}
		if got := f.labels(t, 5); !reflect.DeepEqual(got, []string{dmqueue.LabelWarning3h}) {
			t.Fatalf("phase %s: queue = %v", phase, got)
		}
	}
}

func TestRecoverOfflineRecomputesAndCatchesUp(t *testing.T) {
	ctx := context.Background()
	joined := calendar.Date(2026, 3, 4, 14, 0, 0)
	f := newFixture(t, calendar.Date(2026, 3, 9, 12, 0, 0))
	if err := f.trials.InsertMember(ctx, &models.TrialMember{
		UserID: 77, ChatID: vipChat, JoinedAt: joined,
		ExpiryTime: calendar.Date(2026, 3, 10, 14, 0, 0),
	}); err != nil {
		t.Fatalf("InsertMember: %v", err)
	}

	rep, err := f.engine.RecoverOffline(ctx)
	if err != nil {
		t.Fatalf("RecoverOffline: %v", err)
	}
	if rep.Recomputed != 1 || rep.Warnings != 1 || rep.Expired != 0 {
		t.Fatalf("report = %+v", rep)
	}
	m, _ := f.trials.GetMember(ctx, 77)
	if want := calendar.Date(2026, 3, 9, 14, 0, 0); !m.ExpiryTime.Equal(want) {
		t.Fatalf("expiry = %v, want %v", calendar.Local(m.ExpiryTime), want)
	}
	if !m.Warning3hSent || !m.Warning24hSent {
		t.Fatalf("flags = %+v", m)
	}
	if got := f.labels(t, 77); !reflect.DeepEqual(got, []string{dmqueue.LabelWarning3h}) {
		t.Fatalf("queue = %v", got)
	}

	rep, err = f.engine.RecoverOffline(ctx)
	if err != nil || rep != (RecoveryReport{}) {
		t.Fatalf("second recovery = %+v, %v", rep, err)
	}
}

func TestAdjustAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2026, 3, 4, 14, 0, 0))
	if _, err := f.engine.StartTrial(ctx, 88, f.clock.Now()); err != nil {
		t.Fatalf("StartTrial: %v", err)
	}
	f.trials.MarkWarning(ctx, 88, trial_repo.Warning24h)

	d, err := ParseShift("+48h")
	if err != nil {
		t.Fatalf("ParseShift: %v", err)
	}
	m, err := f.engine.AdjustTrial(ctx, 88, d)
	if err != nil {
		t.Fatalf("AdjustTrial: %v", err)
	}
	if want := calendar.Date(2026, 3, 11, 14, 0, 0); !m.ExpiryTime.Equal(want) || m.Warning24hSent {
		t.Fatalf("adjusted = %+v", m)
	}
	if _, err := f.engine.AdjustTrial(ctx, 99, time.Hour); !errors.Is(err, ErrNoTrial) {
		t.Fatalf("AdjustTrial unknown = %v", err)
	}

	if err := f.engine.ClearTrial(ctx, 88); err != nil {
		t.Fatalf("ClearTrial: %v", err)
	}
	if granted, _ := f.cache.WasGranted(ctx, 88); granted {
		t.Fatal("granted set still holds the user")
	}
	if d, _ := f.engine.HandleJoinRequest(ctx, vipChat, 88); d != Approved {
		t.Fatalf("cleared user decision = %v", d)
	}
}

func TestParseShift(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"+2h", 2 * time.Hour, true},
		{"-30m", -30 * time.Minute, true},
		{"+1h30m", 90 * time.Minute, true},
		{"2h", 0, false},
		{"+10s", 0, false},
		{"+0m", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseShift(c.in)
			if (err == nil) != c.ok || got != c.want {
				t.Fatalf("ParseShift(%q) = %v, %v", c.in, got, err)
			}
		})
	}
}
