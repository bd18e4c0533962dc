// internal/core/domain/tracker/override.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"signal-desk-bot/internal/core/domain/trades"
	trade_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trade"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// Outcome is an operator-applied trade event.
type Outcome string

const (
	OutcomeSL          Outcome = "sl"
	OutcomeTP1         Outcome = "tp1"
	OutcomeTP2         Outcome = "tp2"
	OutcomeTP3         Outcome = "tp3"
	OutcomeBreakeven   Outcome = "breakeven"
	OutcomeEndTracking Outcome = "end"
)

// Outcomes in menu order.
var Outcomes = []Outcome{OutcomeSL, OutcomeTP1, OutcomeTP2, OutcomeTP3, OutcomeBreakeven, OutcomeEndTracking}

// MaxOverride is the largest selection one override may apply to.
const MaxOverride = 5

var (
	ErrNoTrades       = errors.New("no trades selected")
	ErrTooManyTrades  = fmt.Errorf("at most %d trades per override", MaxOverride)
	ErrUnknownOutcome = errors.New("unknown outcome")
)

func ParseOutcome(s string) (Outcome, bool) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Outcomes {
		if v == o {
			return o, true
		}
	}
	return "", false
}

// Label is the button text of an outcome.
func (o Outcome) Label() string {
	switch o {
	case OutcomeSL:
		return "SL hit"
	case OutcomeTP1:
		return "TP1 hit"
	case OutcomeTP2:
		return "TP2 hit"
	case OutcomeTP3:
		return "TP3 hit"
	case OutcomeBreakeven:
		return "Breakeven after TP2"
	case OutcomeEndTracking:
		return "End tracking"
	}
	return string(o)
}

// OverrideResult is the per-trade result of an override.
type OverrideResult struct {
	Key      trades.Key
	Pair     string
	Applied  []trades.Level
	Archived bool
	Err      error
}

// Override applies an outcome to up to MaxOverride trades. The database is written first,
// then the mirror is refreshed and replies are sent. Applied levels are added to
// manual_overrides so the tick never fires them again.
func (t *Tracker) Override(ctx context.Context, keys []trades.Key, outcome Outcome) ([]OverrideResult, error) {
	if len(keys) == 0 {
		return nil, ErrNoTrades
	}
	if len(keys) > MaxOverride {
		return nil, ErrTooManyTrades
	}
	if _, ok := ParseOutcome(string(outcome)); !ok {
		return nil, ErrUnknownOutcome
	}

	t.work.Lock()
	defer t.work.Unlock()

	results := make([]OverrideResult, 0, len(keys))
	for _, key := range keys {
		res := OverrideResult{Key: key}
		res.Applied, res.Archived, res.Pair, res.Err = t.overrideOne(ctx, key, outcome)
		if res.Err != nil {
			logger.Warn("⚠️ Override %s on %s: %v", outcome, key, res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (t *Tracker) overrideOne(ctx context.Context, key trades.Key, outcome Outcome) ([]trades.Level, bool, string, error) {
	tr, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, false, "", err
	}
	if tr == nil {
		t.drop(key)
		return nil, false, "", fmt.Errorf("trade %s is not active", key)
	}

	now := t.clock.Now()
	events, reason, err := applyOutcome(tr, outcome)
	if err != nil {
		return nil, false, tr.Pair, err
	}
	tr.LastUpdated = now
	if err := tr.CheckInvariants(); err != nil {
		return nil, false, tr.Pair, err
	}

	var archive *trade_repo.Archived
	if reason != "" {
		archive = &trade_repo.Archived{Trade: tr, Reason: reason, At: now}
	}
	if err := t.store.Commit(ctx, tr, archive); err != nil {
		return nil, false, tr.Pair, err
	}
	if archive != nil {
		t.drop(key)
		metrics.TradesArchived.WithLabelValues(string(reason)).Inc()
	} else {
		t.put(tr)
	}

	for _, lvl := range events {
		metrics.LevelHits.WithLabelValues(string(lvl)).Inc()
		if err := t.chat.Reply(ctx, key.ChatID, key.MessageID, t.replies.Reply(lvl)); err != nil {
			logger.Warn("⚠️ Override reply %s to %s failed: %v", lvl, key, err)
		}
	}

	logger.Info("✍️ Override %s on %s %s: %s", outcome, key, tr.Pair, levels(events))
	t.debug(fmt.Sprintf("✍️ Override %s on %s %s (applied %s, archived %v)",
		outcome.Label(), key, tr.Pair, levels(events), archive != nil))
	return events, archive != nil, tr.Pair, nil
}

// applyOutcome mutates tr and returns the reply-worthy events and, for terminal
// outcomes, the completion reason.
func applyOutcome(tr *trades.Trade, outcome Outcome) ([]trades.Level, trades.CompletionReason, error) {
	if outcome == OutcomeEndTracking {
		return nil, trades.ReasonManualEndTracking, nil
	}
	if tr.Status == trades.StatusPendingEntry {
		return nil, "", errors.New("limit entry not filled yet; only end tracking applies")
	}

	switch outcome {
	case OutcomeSL:
		if tr.TPHits.Has(trades.LevelTP2) {
			return nil, "", errors.New("TP2 already hit; use breakeven")
		}
		tr.ManualOverrides = tr.ManualOverrides.With(trades.LevelSL)
		tr.Status = trades.StatusClosed
		return []trades.Level{trades.LevelSL}, trades.ReasonSLHit, nil

	case OutcomeBreakeven:
		if !tr.TPHits.Has(trades.LevelTP2) {
			return nil, "", errors.New("breakeven applies only after TP2")
		}
		tr.ManualOverrides = tr.ManualOverrides.With(trades.LevelBreakeven)
		tr.Status = trades.StatusClosed
		return []trades.Level{trades.LevelBreakeven}, trades.ReasonBreakevenHit, nil
	}

	target := map[Outcome]int{OutcomeTP1: 0, OutcomeTP2: 1, OutcomeTP3: 2}[outcome]
	var events []trades.Level
	for _, lvl := range trades.TakeProfits[:target+1] {
		if tr.TPHits.Has(lvl) {
			continue
		}
		tr.TPHits = tr.TPHits.With(lvl)
		tr.ManualOverrides = tr.ManualOverrides.With(lvl)
		events = append(events, lvl)
	}
	if len(events) == 0 {
		return nil, "", fmt.Errorf("%s already recorded", strings.ToUpper(string(outcome)))
	}
	if tr.TPHits.Has(trades.LevelTP2) {
		tr.BreakevenActive = true
	}
	if tr.TPHits.Has(trades.LevelTP3) {
		tr.Status = trades.StatusCompleted
		return events, trades.ReasonTP3Hit, nil
	}
	return events, "", nil
}
