package userbot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

type fakeQueue struct {
	items     []*models.DMQueueItem
	sent      map[int64]bool
	failed    map[int64]string
	postponed map[int64]time.Time
}

func (q *fakeQueue) FetchPending(_ context.Context, _ time.Time, limit int) ([]*models.DMQueueItem, error) {
	if len(q.items) > limit {
		return q.items[:limit], nil
	}
	return q.items, nil
}

func (q *fakeQueue) Postpone(_ context.Context, id int64, until time.Time) error {
	if q.postponed == nil {
		q.postponed = map[int64]time.Time{}
	}
	q.postponed[id] = until
	return nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id int64, _ time.Time) error {
	q.sent[id] = true
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id int64, reason string) error {
	q.failed[id] = reason
	return nil
}

type fakePeers map[int64]*models.UserbotPeer

func (p fakePeers) GetPeer(_ context.Context, userID int64) (*models.UserbotPeer, error) {
	return p[userID], nil
}

func (p fakePeers) UpsertPeer(_ context.Context, peer *models.UserbotPeer) error {
	p[peer.UserID] = peer
	return nil
}

// fakeMessenger answers each user with a queue of errors; nil means delivered.
type fakeMessenger struct {
	answers map[int64][]error
	calls   map[int64]int
}

func (m *fakeMessenger) SendText(_ context.Context, peer *models.UserbotPeer, _ string) error {
	m.calls[peer.UserID]++
	queue := m.answers[peer.UserID]
	if len(queue) == 0 {
		return nil
	}
	m.answers[peer.UserID] = queue[1:]
	return queue[0]
}

type memSettings map[string]string

func (m memSettings) Get(_ context.Context, key string) (*models.BotSetting, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &models.BotSetting{Key: key, Value: v}, nil
}

func (m memSettings) Set(_ context.Context, key, value string, _ time.Time) error {
	m[key] = value
	return nil
}

func TestDrainOutcomes(t *testing.T) {
	now := calendar.Date(2026, 3, 10, 12, 0, 0)
	clock := calendar.NewManualClock(now)

	queue := &fakeQueue{
		items: []*models.DMQueueItem{
			{ID: 1, UserID: 10, Label: dmqueue.LabelTrialStarted, MessageText: "hi", CreatedAt: now.Add(-time.Hour)},
			{ID: 2, UserID: 20, Label: dmqueue.LabelWelcome, MessageText: "welcome", CreatedAt: now.Add(-5 * time.Minute)},
			{ID: 3, UserID: 30, Label: dmqueue.LabelWarning24h, MessageText: "24h", CreatedAt: now.Add(-time.Hour)},
			{ID: 4, UserID: 40, Label: dmqueue.LabelWarning3h, MessageText: "3h", CreatedAt: now.Add(-time.Hour)},
			{ID: 5, UserID: 50, Label: dmqueue.LabelTrialExpired, MessageText: "bye", CreatedAt: now.Add(-time.Hour)},
			{ID: 6, UserID: 60, Label: dmqueue.LabelFollowup3, MessageText: "day 3", CreatedAt: now.Add(-time.Hour)},
			{ID: 7, UserID: 70, Label: dmqueue.LabelFollowup7, MessageText: "day 7", CreatedAt: now.Add(-25 * time.Hour)},
		},
		sent:   map[int64]bool{},
		failed: map[int64]string{},
	}
	peers := fakePeers{}
	for _, id := range []int64{10, 20, 30, 40, 50} {
		peers[id] = &models.UserbotPeer{UserID: id, AccessHash: id * 100}
	}
	messenger := &fakeMessenger{
		answers: map[int64][]error{
			30: {fmt.Errorf("%w: USER_PRIVACY_RESTRICTED", ErrUndeliverable)},
			40: {&FloodWaitError{Wait: 7 * time.Second}, nil},
			50: {errors.New("rpc timeout")},
		},
		calls: map[int64]int{},
	}
	settings := memSettings{}

	s := NewSender(queue, peers, messenger, settings, clock)
	var slept []time.Duration
	s.pause = func() time.Duration { return time.Second }
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res, err := s.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}

	want := DrainResult{Sent: 2, Failed: 2, Deferred: 2, Skipped: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if !queue.sent[1] || !queue.sent[4] {
		t.Fatalf("sent = %v", queue.sent)
	}
	if _, ok := queue.failed[3]; !ok {
		t.Fatalf("privacy-restricted row not failed: %v", queue.failed)
	}
	if _, ok := queue.failed[7]; !ok {
		t.Fatalf("row without a peer after a day not failed: %v", queue.failed)
	}
	if queue.sent[5] || queue.failed[5] != "" || queue.sent[6] {
		t.Fatal("transient and undiscovered rows must stay pending")
	}
	if messenger.calls[20] != 0 {
		t.Fatal("young welcome DM was sent")
	}
	if !queue.postponed[2].Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("young welcome DM postponed to %v", queue.postponed[2])
	}
	if !queue.postponed[6].Equal(now.Add(PeerRetry)) {
		t.Fatalf("undiscovered recipient postponed to %v", queue.postponed[6])
	}
	if _, ok := queue.postponed[5]; ok {
		t.Fatal("transient failure must be retried on the next drain")
	}
	if messenger.calls[40] != 2 {
		t.Fatalf("flood wait retried %d times", messenger.calls[40]-1)
	}

	var flood bool
	for _, d := range slept {
		if d == 7*time.Second {
			flood = true
		}
	}
	if !flood {
		t.Fatalf("flood wait not honoured, slept %v", slept)
	}
	if settings[models.SettingUserbotHeartbeat] != now.UTC().Format(time.RFC3339) {
		t.Fatalf("heartbeat = %q", settings[models.SettingUserbotHeartbeat])
	}
}

func TestDrainFloodWaitTwiceStaysPending(t *testing.T) {
	now := calendar.Date(2026, 3, 10, 12, 0, 0)
	queue := &fakeQueue{
		items:  []*models.DMQueueItem{{ID: 1, UserID: 10, Label: dmqueue.LabelTrialStarted, CreatedAt: now}},
		sent:   map[int64]bool{},
		failed: map[int64]string{},
	}
	messenger := &fakeMessenger{
		answers: map[int64][]error{10: {&FloodWaitError{Wait: time.Second}, &FloodWaitError{Wait: time.Second}}},
		calls:   map[int64]int{},
	}
	s := NewSender(queue, fakePeers{10: {UserID: 10}}, messenger, memSettings{}, calendar.NewManualClock(now))
	s.sleep = func(context.Context, time.Duration) error { return nil }

	res, err := s.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Deferred != 1 || len(queue.sent) != 0 || len(queue.failed) != 0 {
		t.Fatalf("unexpected %+v sent=%v failed=%v", res, queue.sent, queue.failed)
	}
}

func TestDrainStopsOnCancel(t *testing.T) {
	now := calendar.Date(2026, 3, 10, 12, 0, 0)
	queue := &fakeQueue{
		items:  []*models.DMQueueItem{{ID: 1, UserID: 10, CreatedAt: now}, {ID: 2, UserID: 10, CreatedAt: now}},
		sent:   map[int64]bool{},
		failed: map[int64]string{},
	}
	s := NewSender(queue, fakePeers{10: {UserID: 10}}, &fakeMessenger{calls: map[int64]int{}}, memSettings{}, calendar.NewManualClock(now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if len(queue.sent) != 0 {
		t.Fatal("sent after cancellation")
	}
}

func TestClassify(t *testing.T) {
	var flood *FloodWaitError
	if err := classify(tgerr.New(420, "FLOOD_WAIT_30")); !errors.As(err, &flood) || flood.Wait != 30*time.Second {
		t.Fatalf("flood wait: %v", err)
	}
	for _, typ := range []string{"USER_PRIVACY_RESTRICTED", "PEER_ID_INVALID", "USER_DEACTIVATED", "USER_IS_BLOCKED"} {
		if err := classify(tgerr.New(400, typ)); !errors.Is(err, ErrUndeliverable) {
			t.Errorf("%s: %v", typ, err)
		}
	}
	if err := classify(tgerr.New(500, "INTERNAL")); errors.Is(err, ErrUndeliverable) {
		t.Fatal("server error classified as undeliverable")
	}
	if classify(nil) != nil {
		t.Fatal("nil error changed")
	}
}

func TestChannelID(t *testing.T) {
	tests := []struct {
		chat, want int64
	}{
		{-1001234567890, 1234567890},
		{-4567, 4567},
		{99, 99},
	}
	for _, tt := range tests {
		if got := ChannelID(tt.chat); got != tt.want {
			t.Errorf("ChannelID(%d) = %d, want %d", tt.chat, got, tt.want)
		}
	}
}
