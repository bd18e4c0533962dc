package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/infrastructure/config/trading"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	trade_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trade"
)

var errNoPrice = errors.New("no price")

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
}

func (f *fakePrices) set(pair, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = map[string]decimal.Decimal{}
	}
	f.prices[pair] = decimal.RequireFromString(price)
}

func (f *fakePrices) GetPrice(_ context.Context, pair, _ string) (decimal.Decimal, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.prices[pair]
	if !ok {
		return decimal.Zero, "", errNoPrice
	}
	return p, "fxratesapi", nil
}

func (f *fakePrices) WorkingProvider(context.Context, string) string { return "fxratesapi" }

type reply struct {
	key  trades.Key
	text string
}

type fakeChat struct {
	mu      sync.Mutex
	deleted map[trades.Key]bool
	replies []reply
}

func (c *fakeChat) MessageExists(_ context.Context, chatID, messageID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.deleted[trades.Key{ChatID: chatID, MessageID: messageID}], nil
}

func (c *fakeChat) Reply(_ context.Context, chatID, messageID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := trades.Key{ChatID: chatID, MessageID: messageID}
	if c.deleted[key] {
		return fmt.Errorf("reply: %w", ErrMessageGone)
	}
	c.replies = append(c.replies, reply{key, text})
	return nil
}

func (c *fakeChat) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.replies))
	for i, r := range c.replies {
		out[i] = r.text
	}
	return out
}

type levelReplies struct{}

func (levelReplies) Reply(l trades.Level) string        { return string(l) }
func (levelReplies) EntryHit(a trades.Action) string { return "ENTRY " + string(a) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type fixture struct {
	tracker *Tracker
	store   *postgres.Store
	repo    trade_repo.TradeRepository
	prices  *fakePrices
	chat    *fakeChat
	clock   *calendar.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := postgres.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:  store,
		repo:   trade_repo.NewTradeRepository(store.DB),
		prices: &fakePrices{},
		chat:   &fakeChat{deleted: map[trades.Key]bool{}},
		// Tuesday
		clock: calendar.NewManualClock(calendar.Date(2026, 3, 3, 10, 0, 0)),
	}
	f.tracker = f.newTracker()
	return f
}

// newTracker builds a second tracker over the same database, as after a restart.
func (f *fixture) newTracker() *Tracker {
	tc := &trading.Config{
		Pips:            trades.NewPipTable(nil),
		ManualPairs:     map[string]bool{"US100": true},
		DisclaimerPairs: map[string]bool{"US100": true},
		Disclaimer:      "Careful.",
	}
	return New(Config{}, tc, NewSQLStore(f.store), f.prices, f.chat, levelReplies{}, nopNotifier{}, f.clock)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func signal(pair string, action trades.Action, entryType trades.EntryType, entry string) trades.Signal {
	return trades.Signal{Pair: pair, Action: action, EntryType: entryType, Entry: d(entry)}
}

func (f *fixture) tick(t *testing.T, pair, price string) {
	t.Helper()
	f.prices.set(pair, price)
	if err := f.tracker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func (f *fixture) completed(t *testing.T, key trades.Key) string {
	t.Helper()
	row, err := f.repo.GetCompleted(context.Background(), key)
	if err != nil || row == nil {
		t.Fatalf("GetCompleted %s = %v, %v", key, row, err)
	}
	return row.CompletionReason
}

func equalTexts(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCleanBuyRunsTheLadder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := trades.Key{ChatID: -100, MessageID: 1}

	f.prices.set("EURUSD", "1.0852")
	tr, err := f.tracker.Register(ctx, key, signal("EUR/USD", trades.ActionBuy, trades.EntryExecution, "1.0850"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !tr.LiveEntry.Equal(d("1.0852")) || !tr.Levels.TP1.Equal(d("1.0872")) || !tr.Levels.SL.Equal(d("1.0802")) {
		t.Fatalf("levels = %+v live %s", tr.Levels, tr.LiveEntry)
	}
	if !tr.OperatorEntry.Equal(d("1.0850")) {
		t.Fatalf("operator entry = %s", tr.OperatorEntry)
	}

	f.tick(t, "EURUSD", "1.0875")
	f.tick(t, "EURUSD", "1.0920")
	stored, _ := f.repo.Get(ctx, key)
	if stored.TPHits.String() != "TP1,TP2" || !stored.BreakevenActive {
		t.Fatalf("after 1.0920: hits %s breakeven %v", stored.TPHits, stored.BreakevenActive)
	}

	f.tick(t, "EURUSD", "1.0930")
	if got := f.chat.texts(); !equalTexts(got, "TP1", "TP2", "TP3") {
		t.Fatalf("replies = %v", got)
	}
	if reason := f.completed(t, key); reason != string(trades.ReasonTP3Hit) {
		t.Fatalf("reason = %s", reason)
	}
	if stored, _ := f.repo.Get(ctx, key); stored != nil {
		t.Fatal("trade still active after archive")
	}
	if f.tracker.Count() != 0 {
		t.Fatal("mirror still holds archived trade")
	}
}

func TestSellBreakevenShortCircuitsSL(t *testing.T) {
	f := newFixture(t)
	key := trades.Key{ChatID: -200, MessageID: 7}

	f.prices.set("GBPJPY", "194.980")
	tr, err := f.tracker.Register(context.Background(), key, signal("GBPJPY", trades.ActionSell, trades.EntryExecution, "195.000"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := trades.Levels{TP1: d("194.780"), TP2: d("194.580"), TP3: d("194.280"), SL: d("195.480")}
	if !tr.Levels.TP1.Equal(want.TP1) || !tr.Levels.TP2.Equal(want.TP2) || !tr.Levels.TP3.Equal(want.TP3) || !tr.Levels.SL.Equal(want.SL) {
		t.Fatalf("levels = %+v", tr.Levels)
	}

	f.tick(t, "GBPJPY", "194.600")
	f.tick(t, "GBPJPY", "194.570")
	f.tick(t, "GBPJPY", "195.000")

	if got := f.chat.texts(); !equalTexts(got, "TP1", "TP2", "BREAKEVEN") {
		t.Fatalf("replies = %v", got)
	}
	if reason := f.completed(t, key); reason != string(trades.ReasonBreakevenHit) {
		t.Fatalf("reason = %s", reason)
	}
}

func TestLimitEntryThenSL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := trades.Key{ChatID: -300, MessageID: 3}

	f.prices.set("XAUUSD", "2645.30")
	tr, err := f.tracker.Register(ctx, key, signal("XAUUSD", trades.ActionSell, trades.EntryLimit, "2650.00"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tr.Status != trades.StatusPendingEntry || !tr.LiveEntry.IsZero() {
		t.Fatalf("status %s live %s", tr.Status, tr.LiveEntry)
	}

	f.tick(t, "XAUUSD", "2650.10")
	stored, _ := f.repo.Get(ctx, key)
	if stored.Status != trades.StatusActive || !stored.LiveEntry.Equal(d("2650.10")) {
		t.Fatalf("after fill: %s %s", stored.Status, stored.LiveEntry)
	}
	if !stored.Levels.TP1.Equal(d("2648.10")) || !stored.Levels.TP3.Equal(d("2643.10")) || !stored.Levels.SL.Equal(d("2655.10")) {
		t.Fatalf("levels = %+v", stored.Levels)
	}

	f.tick(t, "XAUUSD", "2656.00")
	if got := f.chat.texts(); !equalTexts(got, "ENTRY SELL", "SL") {
		t.Fatalf("replies = %v", got)
	}
	if reason := f.completed(t, key); reason != string(trades.ReasonSLHit) {
		t.Fatalf("reason = %s", reason)
	}
}

func TestDeletedMessageIsArchivedVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := trades.Key{ChatID: -100, MessageID: 9}

	f.prices.set("EURUSD", "1.0852")
	if _, err := f.tracker.Register(ctx, key, signal("EURUSD", trades.ActionBuy, trades.EntryExecution, "1.0850")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.chat.deleted[key] = true
	f.tick(t, "EURUSD", "1.0853")

	row, err := f.repo.GetCompleted(ctx, key)
	if err != nil || row == nil {
		t.Fatalf("GetCompleted = %v, %v", row, err)
	}
	if row.CompletionReason != string(trades.ReasonMessageDeleted) || !row.DeletionVerified {
		t.Fatalf("archive = %s verified %v", row.CompletionReason, row.DeletionVerified)
	}

	// a verified deletion survives recovery
	report, err := f.newTracker().Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Restored != 0 || report.Loaded != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRecoveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.prices.set("EURUSD", "1.0852")
	for i := int64(1); i <= 3; i++ {
		if _, err := f.tracker.Register(ctx, trades.Key{ChatID: -100, MessageID: i}, signal("EURUSD", trades.ActionBuy, trades.EntryExecution, "1.0850")); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	// price moved past TP1 while the service was down
	f.prices.set("EURUSD", "1.0880")

	restarted := f.newTracker()
	first, err := restarted.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if first.Loaded != 3 || first.Repaired != 3 {
		t.Fatalf("first = %+v", first)
	}
	repliesAfterFirst := len(f.chat.texts())

	second, err := restarted.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if second.Repaired != 0 || second.Restored != 0 {
		t.Fatalf("second = %+v", second)
	}
	if len(f.chat.texts()) != repliesAfterFirst {
		t.Fatal("second recovery sent replies")
	}
}

func TestOverrideCascadesAndSuppressesAutomaticHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := trades.Key{ChatID: -100, MessageID: 1}
	b := trades.Key{ChatID: -100, MessageID: 2}

	f.prices.set("EURUSD", "1.0852")
	for _, key := range []trades.Key{a, b} {
		if _, err := f.tracker.Register(ctx, key, signal("EURUSD", trades.ActionBuy, trades.EntryExecution, "1.0850")); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	results, err := f.tracker.Override(ctx, []trades.Key{a}, OutcomeTP2)
	if err != nil || results[0].Err != nil {
		t.Fatalf("Override = %v, %+v", err, results)
	}
	if got := f.chat.texts(); !equalTexts(got, "TP1", "TP2") {
		t.Fatalf("override replies = %v", got)
	}
	stored, _ := f.repo.Get(ctx, a)
	if stored.ManualOverrides.String() != "TP1,TP2" || !stored.BreakevenActive {
		t.Fatalf("overrides %s breakeven %v", stored.ManualOverrides, stored.BreakevenActive)
	}

	// price passes TP1 and TP2: only b replies
	f.tick(t, "EURUSD", "1.0895")
	if got := f.chat.texts(); !equalTexts(got, "TP1", "TP2", "TP1", "TP2") {
		t.Fatalf("replies = %v", got)
	}
	stored, _ = f.repo.Get(ctx, a)
	if stored.TPHits.String() != "TP1,TP2" {
		t.Fatalf("a hits = %s", stored.TPHits)
	}

	results, _ = f.tracker.Override(ctx, []trades.Key{a, b}, OutcomeEndTracking)
	for _, r := range results {
		if r.Err != nil || !r.Archived {
			t.Fatalf("end tracking = %+v", r)
		}
	}
	if reason := f.completed(t, b); reason != string(trades.ReasonManualEndTracking) {
		t.Fatalf("reason = %s", reason)
	}
	if len(f.chat.texts()) != 4 {
		t.Fatal("end tracking must not reply")
	}
}

func TestOverrideLimits(t *testing.T) {
	f := newFixture(t)
	keys := make([]trades.Key, MaxOverride+1)
	if _, err := f.tracker.Override(context.Background(), keys, OutcomeSL); !errors.Is(err, ErrTooManyTrades) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.tracker.Override(context.Background(), nil, OutcomeSL); !errors.Is(err, ErrNoTrades) {
		t.Fatalf("err = %v", err)
	}
}

func TestManualPairIsNeverPriced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := trades.Key{ChatID: -100, MessageID: 5}

	tr, err := f.tracker.Register(ctx, key, signal("US100", trades.ActionBuy, trades.EntryExecution, "18000"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tr.AssignedAPI != trades.ManualAPI || !tr.ManualTrackingOnly {
		t.Fatalf("trade = %+v", tr)
	}
	calls := f.prices.calls
	f.tick(t, "US100", "19000")
	if f.prices.calls != calls {
		t.Fatal("manual trade was priced")
	}
}

func TestTickSuspendedWhileMarketClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.prices.set("EURUSD", "1.0852")
	if _, err := f.tracker.Register(ctx, trades.Key{ChatID: -100, MessageID: 1}, signal("EURUSD", trades.ActionBuy, trades.EntryExecution, "1.0850")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.clock.Set(calendar.Date(2026, 3, 7, 12, 0, 0)) // Saturday
	calls := f.prices.calls
	f.tick(t, "EURUSD", "1.0950")
	if f.prices.calls != calls || len(f.chat.texts()) != 0 {
		t.Fatal("tick ran during the weekend close")
	}
}

func TestIngestMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prices.set("EURUSD", "1.0852")

	text := "*Trade Signal For: EUR/USD*\nEntry Type: Buy execution\nEntry Price: $1.0850\n"
	key := trades.Key{ChatID: -100, MessageID: 11}
	tr, err := f.tracker.IngestMessage(ctx, key, text)
	if err != nil || tr == nil {
		t.Fatalf("IngestMessage = %v, %v", tr, err)
	}
	if again, err := f.tracker.IngestMessage(ctx, key, text); again != nil || err != nil {
		t.Fatalf("second ingest = %v, %v", again, err)
	}
	if tr, _ := f.tracker.IngestMessage(ctx, trades.Key{ChatID: -100, MessageID: 12}, "Trade Signal For: EURUSD"); tr != nil {
		t.Fatal("incomplete signal registered")
	}
	if tr, _ := f.tracker.IngestMessage(ctx, trades.Key{ChatID: -100, MessageID: 13}, "good morning"); tr != nil {
		t.Fatal("chatter registered")
	}
}

func TestComposeAddsDisclaimer(t *testing.T) {
	f := newFixture(t)
	_, text := f.tracker.Compose(trades.ActionBuy, trades.EntryExecution, "us100", d("18000"))
	if want := "Careful."; text[len(text)-len(want):] != want {
		t.Fatalf("text = %q", text)
	}
}
