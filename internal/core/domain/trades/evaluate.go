// internal/core/domain/trades/evaluate.go
package trades

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evaluation is the outcome of one hit check at a single price.
type Evaluation struct {
	Price decimal.Decimal
	// Events are the reply-worthy levels in the order they happened.
	Events   []Level
	Terminal bool
	Reason   CompletionReason
	// Conflict is set when TP2 and SL were crossed by the same price; TP2 wins.
	Conflict bool
}

// Changed reports whether the evaluation alters the trade.
func (e Evaluation) Changed() bool { return len(e.Events) > 0 }

func (t *Trade) crossedTP(level decimal.Decimal, p decimal.Decimal) bool {
	if t.Action == ActionSell {
		return p.LessThanOrEqual(level)
	}
	return p.GreaterThanOrEqual(level)
}

func (t *Trade) crossedSL(p decimal.Decimal) bool {
	if t.Action == ActionSell {
		return p.GreaterThanOrEqual(t.Levels.SL)
	}
	return p.LessThanOrEqual(t.Levels.SL)
}

func (t *Trade) crossedBreakeven(p decimal.Decimal) bool {
	if t.Action == ActionSell {
		return p.GreaterThanOrEqual(t.Reference())
	}
	return p.LessThanOrEqual(t.Reference())
}

// Evaluate applies the ordered hit rules to an active trade without mutating it.
//
//  1. breakeven (only once TP2 is recorded)
//  2. SL, unless TP2 is recorded
//  3. TP1, TP2, TP3 in order; TP3 terminates
func Evaluate(t *Trade, p decimal.Decimal) Evaluation {
	ev := Evaluation{Price: p}
	if t.Status != StatusActive {
		return ev
	}

	if t.BreakevenActive && !t.ManualOverrides.Has(LevelBreakeven) && t.crossedBreakeven(p) {
		ev.Events = []Level{LevelBreakeven}
		ev.Terminal = true
		ev.Reason = ReasonBreakevenHit
		return ev
	}

	if !t.ManualOverrides.Has(LevelSL) && !t.TPHits.Has(LevelTP2) && t.crossedSL(p) {
		tp2Open := !t.ManualOverrides.Has(LevelTP2)
		if tp2Open && t.crossedTP(t.Levels.TP2, p) {
			ev.Conflict = true
		} else {
			ev.Events = []Level{LevelSL}
			ev.Terminal = true
			ev.Reason = ReasonSLHit
			return ev
		}
	}

	for _, lvl := range TakeProfits {
		if t.TPHits.Has(lvl) || t.ManualOverrides.Has(lvl) {
			continue
		}
		if !t.crossedTP(t.Levels.Of(lvl), p) {
			continue
		}
		ev.Events = append(ev.Events, lvl)
		if lvl == LevelTP3 {
			ev.Terminal = true
			ev.Reason = ReasonTP3Hit
		}
	}
	return ev
}

// Apply records an evaluation on the trade.
func (t *Trade) Apply(ev Evaluation, now time.Time) {
	for _, lvl := range ev.Events {
		switch lvl {
		case LevelTP1, LevelTP2, LevelTP3:
			t.TPHits = t.TPHits.With(lvl)
			if lvl == LevelTP2 {
				t.BreakevenActive = true
			}
		}
	}
	if ev.Terminal {
		switch ev.Reason {
		case ReasonTP3Hit:
			t.Status = StatusCompleted
		default:
			t.Status = StatusClosed
		}
	}
	if ev.Changed() {
		t.LastUpdated = now
	}
}

// LimitReached reports whether a pending limit order is filled at p.
// A sell limit fills at or above the entry, a buy limit at or below.
func (t *Trade) LimitReached(p decimal.Decimal) bool {
	if t.Status != StatusPendingEntry {
		return false
	}
	if t.Action == ActionSell {
		return p.GreaterThanOrEqual(t.OperatorEntry)
	}
	return p.LessThanOrEqual(t.OperatorEntry)
}

// Fill activates a pending limit order at the observed price.
func (t *Trade) Fill(p decimal.Decimal, spec PipSpec, now time.Time) {
	t.Status = StatusActive
	t.LiveEntry = p
	t.Levels = ComputeLevels(t.Action, p, spec)
	t.LastUpdated = now
}
