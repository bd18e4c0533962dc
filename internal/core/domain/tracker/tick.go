// internal/core/domain/tracker/tick.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/trades"
	trade_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trade"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

type checkOptions struct {
	// price skips the oracle call
	price      *decimal.Decimal
	skipExists bool
}

// Tick runs one pass over every active trade. It does nothing while the market is closed.
func (t *Tracker) Tick(ctx context.Context) error {
	if calendar.IsWeekendClosed(t.clock.Now()) {
		logger.Debug("💤 Market closed, price tick skipped")
		return nil
	}
	keys := t.keys()
	for i, key := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.work.Lock()
		t.checkLocked(ctx, key, checkOptions{})
		t.work.Unlock()

		if i < len(keys)-1 && !sleep(ctx, t.cfg.TradePause) {
			return ctx.Err()
		}
	}
	return nil
}

// checkLocked processes one trade. The caller holds t.work.
// It returns the trade state afterwards, or nil when the trade was not processed.
func (t *Tracker) checkLocked(ctx context.Context, key trades.Key, opts checkOptions) *trades.Trade {
	tr, ok := t.get(key)
	if !ok {
		return nil
	}

	if !opts.skipExists {
		exists, err := t.chat.MessageExists(ctx, key.ChatID, key.MessageID)
		if err != nil {
			logger.Debug("⚠️ Existence check for %s failed, assuming present: %v", key, err)
		} else if !exists {
			t.archiveDeleted(ctx, tr)
			return tr
		}
	}

	stored, err := t.store.Get(ctx, key)
	if err != nil {
		logger.Warn("⚠️ Reconcile %s failed: %v", key, err)
		return nil
	}
	if stored == nil {
		// archived by another path
		t.drop(key)
		return nil
	}
	tr.Reconcile(stored)
	if tr.IsTerminal() || tr.ManualTrackingOnly {
		return tr
	}

	var price decimal.Decimal
	if opts.price != nil {
		price = *opts.price
	} else {
		p, provider, err := t.prices.GetPrice(ctx, tr.Pair, tr.AssignedAPI)
		if err != nil {
			logger.Debug("💱 %s skipped this tick: %v", key, err)
			return tr
		}
		price = p
		if provider != tr.AssignedAPI {
			logger.Debug("💱 %s priced by %s instead of %s", key, provider, tr.AssignedAPI)
		}
	}

	now := t.clock.Now()
	if tr.Status == trades.StatusPendingEntry {
		if !tr.LimitReached(price) {
			return tr
		}
		tr.Fill(price, t.spec(tr.Pair), now)
		if err := t.store.Commit(ctx, tr, nil); err != nil {
			logger.Error("❌ Saving fill of %s failed: %v", key, err)
			return nil
		}
		t.put(tr)
		if err := t.chat.Reply(ctx, key.ChatID, key.MessageID, t.replies.EntryHit(tr.Action)); err != nil {
			t.replyFailed(ctx, tr, err)
		}
		t.debug(fmt.Sprintf("🎯 %s %s limit filled at %s", key, tr.Pair, t.spec(tr.Pair).FormatPrice(price)))
		return tr
	}

	ev := trades.Evaluate(tr, price)
	if ev.Conflict {
		logger.Warn("⚠️ %s: TP2 and SL crossed by the same price %s, applying TP2", key, price)
	}
	if !ev.Changed() {
		return tr
	}

	tr.Apply(ev, now)
	if err := tr.CheckInvariants(); err != nil {
		logger.Error("❌ %s: %v", key, err)
		return nil
	}

	gone := false
	for _, lvl := range ev.Events {
		metrics.LevelHits.WithLabelValues(string(lvl)).Inc()
		if err := t.chat.Reply(ctx, key.ChatID, key.MessageID, t.replies.Reply(lvl)); err != nil {
			if errors.Is(err, ErrMessageGone) {
				gone = true
				break
			}
			logger.Warn("⚠️ Reply %s to %s failed: %v", lvl, key, err)
		}
	}
	if gone {
		t.archiveDeleted(ctx, tr)
		return tr
	}

	var archive *trade_repo.Archived
	if ev.Terminal {
		archive = &trade_repo.Archived{
			Trade:      tr,
			Reason:     ev.Reason,
			At:         now,
			FinalPrice: decimal.NewNullDecimal(price),
		}
	}
	if err := t.store.Commit(ctx, tr, archive); err != nil {
		logger.Error("❌ Saving %s after %s failed: %v", key, levels(ev.Events), err)
		return nil
	}
	if archive != nil {
		t.drop(key)
		metrics.TradesArchived.WithLabelValues(string(ev.Reason)).Inc()
		logger.Info("🏁 %s %s closed: %s at %s", key, tr.Pair, ev.Reason, price)
	} else {
		t.put(tr)
	}
	t.debug(fmt.Sprintf("📈 %s %s: %s at %s (hits %s)", key, tr.Pair, levels(ev.Events),
		t.spec(tr.Pair).FormatPrice(price), tr.TPHits))
	return tr
}

// archiveDeleted archives a trade whose source message is gone.
func (t *Tracker) archiveDeleted(ctx context.Context, tr *trades.Trade) {
	now := t.clock.Now()
	err := t.store.Commit(ctx, tr, &trade_repo.Archived{
		Trade:    tr,
		Reason:   trades.ReasonMessageDeleted,
		At:       now,
		Verified: true,
	})
	if err != nil {
		logger.Error("❌ Archiving deleted %s failed: %v", tr.Key, err)
		return
	}
	t.drop(tr.Key)
	metrics.TradesArchived.WithLabelValues(string(trades.ReasonMessageDeleted)).Inc()
	logger.Info("🗑️ %s %s archived: source message deleted", tr.Key, tr.Pair)
	t.debug(fmt.Sprintf("🗑️ %s %s archived, message deleted", tr.Key, tr.Pair))
}

func (t *Tracker) replyFailed(ctx context.Context, tr *trades.Trade, err error) {
	if errors.Is(err, ErrMessageGone) {
		t.archiveDeleted(ctx, tr)
		return
	}
	logger.Warn("⚠️ Reply to %s failed: %v", tr.Key, err)
}

func levels(ls []trades.Level) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = string(l)
	}
	return strings.Join(parts, "+")
}
