// internal/core/domain/tracker/tracker.go
package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/infrastructure/config/trading"
	trade_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trade"
	"signal-desk-bot/internal/metrics"
)

// ErrMessageGone must be wrapped by ChatGateway implementations when the chat
// definitively reports the source message as deleted.
var ErrMessageGone = errors.New("source message deleted")

// TradeStore persists trades. Commit saves t, or archives it when a is non-nil, atomically.
type TradeStore interface {
	Insert(ctx context.Context, t *trades.Trade) error
	Get(ctx context.Context, key trades.Key) (*trades.Trade, error)
	Exists(ctx context.Context, key trades.Key) (bool, error)
	ListActive(ctx context.Context) ([]*trades.Trade, error)
	RestoreUnverifiedDeleted(ctx context.Context) ([]*trades.Trade, error)
	Commit(ctx context.Context, t *trades.Trade, a *trade_repo.Archived) error
}

// PriceSource is the price oracle.
type PriceSource interface {
	GetPrice(ctx context.Context, pair, preferred string) (decimal.Decimal, string, error)
	WorkingProvider(ctx context.Context, pair string) string
}

// ChatGateway talks to the chats trades live in.
type ChatGateway interface {
	// MessageExists returns false only for a definitive "not found".
	MessageExists(ctx context.Context, chatID, messageID int64) (bool, error)
	// Reply answers the source message; ErrMessageGone when it was deleted.
	Reply(ctx context.Context, chatID, messageID int64, text string) error
}

// Notifier receives operator-facing debug lines.
type Notifier interface {
	Notify(text string)
}

// ReplyPicker chooses reply texts.
type ReplyPicker interface {
	Reply(level trades.Level) string
	EntryHit(action trades.Action) string
}

type Config struct {
	CheckInterval  time.Duration
	TradePause     time.Duration
	RecoveryWindow time.Duration
}

// Tracker owns the in-memory mirror of active trades and drives their state machines.
type Tracker struct {
	cfg     Config
	trading *trading.Config
	store   TradeStore
	prices  PriceSource
	chat    ChatGateway
	replies ReplyPicker
	notify  Notifier
	clock   calendar.Clock

	mu     sync.Mutex
	mirror map[trades.Key]*trades.Trade

	// work serializes per-trade processing between the tick and the override path
	work sync.Mutex
}

func New(cfg Config, tc *trading.Config, store TradeStore, prices PriceSource, chat ChatGateway,
	replies ReplyPicker, notify Notifier, clock calendar.Clock) *Tracker {
	return &Tracker{
		cfg:     cfg,
		trading: tc,
		store:   store,
		prices:  prices,
		chat:    chat,
		replies: replies,
		notify:  notify,
		clock:   clock,
		mirror:  make(map[trades.Key]*trades.Trade),
	}
}

// Active returns copies of the mirrored trades, oldest first.
func (t *Tracker) Active() []*trades.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*trades.Trade, 0, len(t.mirror))
	for _, tr := range t.mirror {
		out = append(out, tr.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Count returns the mirror size.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mirror)
}

func (t *Tracker) get(key trades.Key) (*trades.Trade, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.mirror[key]
	if !ok {
		return nil, false
	}
	return tr.Clone(), true
}

func (t *Tracker) put(tr *trades.Trade) {
	t.mu.Lock()
	t.mirror[tr.Key] = tr.Clone()
	n := len(t.mirror)
	t.mu.Unlock()
	metrics.ActiveTrades.Set(float64(n))
}

func (t *Tracker) drop(key trades.Key) {
	t.mu.Lock()
	delete(t.mirror, key)
	n := len(t.mirror)
	t.mu.Unlock()
	metrics.ActiveTrades.Set(float64(n))
}

func (t *Tracker) keys() []trades.Key {
	list := t.Active()
	keys := make([]trades.Key, len(list))
	for i, tr := range list {
		keys[i] = tr.Key
	}
	return keys
}

func (t *Tracker) spec(pair string) trades.PipSpec {
	return t.trading.Pips.Lookup(pair)
}

func (t *Tracker) debug(text string) {
	if t.notify != nil {
		t.notify.Notify(text)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
