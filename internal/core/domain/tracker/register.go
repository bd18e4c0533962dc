// internal/core/domain/tracker/register.go
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/pkg/logger"
)

// ErrAlreadyTracked is returned when a message already produced a trade.
var ErrAlreadyTracked = errors.New("message already tracked")

// Register turns a posted signal into a tracked trade and runs one hit check on it.
func (t *Tracker) Register(ctx context.Context, key trades.Key, sig trades.Signal) (*trades.Trade, error) {
	return t.register(ctx, key, sig, false)
}

// RegisterManual records a posted signal without price tracking, whatever the pair.
// The trade stays listed until the operator closes it with an override.
func (t *Tracker) RegisterManual(ctx context.Context, key trades.Key, sig trades.Signal) (*trades.Trade, error) {
	return t.register(ctx, key, sig, true)
}

func (t *Tracker) register(ctx context.Context, key trades.Key, sig trades.Signal, manual bool) (*trades.Trade, error) {
	if _, ok := t.get(key); ok {
		return nil, ErrAlreadyTracked
	}
	exists, err := t.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("Tracker.Register: %w", err)
	}
	if exists {
		return nil, ErrAlreadyTracked
	}

	t.work.Lock()
	defer t.work.Unlock()

	now := t.clock.Now()
	pair := trades.NormalizePair(sig.Pair)
	spec := t.spec(pair)

	tr := &trades.Trade{
		Key:           key,
		Pair:          pair,
		Action:        sig.Action,
		EntryType:     sig.EntryType,
		Status:        trades.StatusActive,
		OperatorEntry: sig.Entry,
		CreatedAt:     now,
		LastUpdated:   now,
	}
	if tr.EntryType == "" {
		tr.EntryType = trades.EntryExecution
	}
	tr.OperatorLevels = sig.Levels
	if !sig.HasLevels {
		tr.OperatorLevels = trades.ComputeLevels(tr.Action, tr.OperatorEntry, spec)
	}

	var price decimal.Decimal
	var priced bool
	if manual || t.trading.IsManual(pair) {
		tr.AssignedAPI = trades.ManualAPI
		tr.ManualTrackingOnly = true
		tr.LiveEntry = tr.OperatorEntry
		tr.Levels = tr.OperatorLevels
	} else {
		tr.AssignedAPI = t.prices.WorkingProvider(ctx, pair)
		p, provider, err := t.prices.GetPrice(ctx, pair, tr.AssignedAPI)
		if err != nil {
			logger.Debug("💱 No price for %s at registration: %v", pair, err)
		} else {
			price, priced = p, true
			logger.Debug("💱 %s priced %s by %s", pair, p, provider)
		}

		switch {
		case tr.EntryType == trades.EntryLimit:
			// live entry stays unset until the limit fills
			tr.Status = trades.StatusPendingEntry
			tr.Levels = trades.ComputeLevels(tr.Action, tr.OperatorEntry, spec)
		case priced:
			tr.LiveEntry = price
			tr.Levels = trades.ComputeLevels(tr.Action, price, spec)
		default:
			tr.LiveEntry = tr.OperatorEntry
			tr.Levels = trades.ComputeLevels(tr.Action, tr.OperatorEntry, spec)
		}
	}

	if err := tr.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("Tracker.Register %s: %w", key, err)
	}
	if err := t.store.Insert(ctx, tr); err != nil {
		return nil, fmt.Errorf("Tracker.Register: %w", err)
	}
	t.put(tr)

	logger.Info("📌 Tracking %s %s %s %s entry %s (%s)", key, tr.Action, tr.EntryType, pair,
		spec.FormatPrice(tr.Reference()), tr.AssignedAPI)
	t.debug(fmt.Sprintf("📌 Registered %s %s %s %s, entry %s, provider %s",
		key, pair, tr.Action, tr.EntryType, spec.FormatPrice(tr.Reference()), tr.AssignedAPI))

	if priced {
		if res := t.checkLocked(ctx, key, checkOptions{price: &price, skipExists: true}); res != nil {
			tr = res
		}
	}
	return tr, nil
}

// IngestMessage registers an operator-authored chat message that carries a signal.
// Messages that are not signals, incomplete or already tracked return nil, nil.
func (t *Tracker) IngestMessage(ctx context.Context, key trades.Key, text string) (*trades.Trade, error) {
	if !trades.LooksLikeSignal(text) {
		return nil, nil
	}
	sig, err := trades.ParseSignal(text)
	if err != nil {
		logger.Debug("🗑️ Discarded signal-shaped message %s: %v", key, err)
		return nil, nil
	}
	tr, err := t.Register(ctx, key, sig)
	if errors.Is(err, ErrAlreadyTracked) {
		return nil, nil
	}
	return tr, err
}
