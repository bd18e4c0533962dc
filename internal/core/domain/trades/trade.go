// internal/core/domain/trades/trade.go
package trades

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction accepts buy/sell in any case.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy, true
	case "SELL":
		return ActionSell, true
	}
	return "", false
}

// Title returns "Buy" or "Sell".
func (a Action) Title() string {
	if a == ActionSell {
		return "Sell"
	}
	return "Buy"
}

type EntryType string

const (
	EntryExecution EntryType = "execution"
	EntryLimit     EntryType = "limit"
)

type Status string

const (
	StatusPendingEntry Status = "pending_entry"
	StatusActive       Status = "active"
	StatusClosed       Status = "closed"
	StatusCompleted    Status = "completed"
)

// Level is a short code stored in tp_hits and manual_overrides.
type Level string

const (
	LevelTP1       Level = "TP1"
	LevelTP2       Level = "TP2"
	LevelTP3       Level = "TP3"
	LevelSL        Level = "SL"
	LevelBreakeven Level = "BREAKEVEN"
)

var levelOrder = []Level{LevelTP1, LevelTP2, LevelTP3, LevelSL, LevelBreakeven}

// TakeProfits in hit order.
var TakeProfits = []Level{LevelTP1, LevelTP2, LevelTP3}

type CompletionReason string

const (
	ReasonTP3Hit            CompletionReason = "tp3_hit"
	ReasonSLHit             CompletionReason = "sl_hit"
	ReasonBreakevenHit      CompletionReason = "breakeven_hit"
	ReasonMessageDeleted    CompletionReason = "message_deleted"
	ReasonManualEndTracking CompletionReason = "manual_end_tracking"
)

// ManualAPI is the assigned_api sentinel for trades the oracle never prices.
const ManualAPI = "manual"

// LevelSet is an ordered set of levels, stored comma-joined.
type LevelSet []Level

func ParseLevelSet(s string) LevelSet {
	var set LevelSet
	for _, part := range strings.Split(s, ",") {
		lvl := Level(strings.ToUpper(strings.TrimSpace(part)))
		if lvl == "" {
			continue
		}
		set = set.With(lvl)
	}
	return set
}

func (s LevelSet) Has(l Level) bool {
	for _, v := range s {
		if v == l {
			return true
		}
	}
	return false
}

// With returns the set including l, kept in canonical order.
func (s LevelSet) With(l Level) LevelSet {
	if s.Has(l) {
		return s
	}
	out := append(append(LevelSet(nil), s...), l)
	sort.SliceStable(out, func(i, j int) bool { return levelRank(out[i]) < levelRank(out[j]) })
	return out
}

func levelRank(l Level) int {
	for i, v := range levelOrder {
		if v == l {
			return i
		}
	}
	return len(levelOrder)
}

func (s LevelSet) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// Key identifies a trade by the chat message that announced it.
type Key struct {
	ChatID    int64
	MessageID int64
}

func (k Key) String() string { return fmt.Sprintf("%d_%d", k.ChatID, k.MessageID) }

// Levels are the four price targets.
type Levels struct {
	TP1 decimal.Decimal
	TP2 decimal.Decimal
	TP3 decimal.Decimal
	SL  decimal.Decimal
}

// Of returns the price of a target level.
func (l Levels) Of(level Level) decimal.Decimal {
	switch level {
	case LevelTP1:
		return l.TP1
	case LevelTP2:
		return l.TP2
	case LevelTP3:
		return l.TP3
	case LevelSL:
		return l.SL
	}
	return decimal.Zero
}

// Trade is one tracked signal.
type Trade struct {
	Key
	Pair      string
	Action    Action
	EntryType EntryType
	Status    Status

	OperatorEntry  decimal.Decimal
	OperatorLevels Levels

	// LiveEntry is zero until the trade is priced (pending limits stay unpriced).
	LiveEntry decimal.Decimal
	Levels    Levels

	TPHits          LevelSet
	BreakevenActive bool
	ManualOverrides LevelSet

	AssignedAPI        string
	ManualTrackingOnly bool

	CreatedAt   time.Time
	LastUpdated time.Time
}

// Clone returns a copy that shares no slices with t.
func (t *Trade) Clone() *Trade {
	c := *t
	c.TPHits = append(LevelSet(nil), t.TPHits...)
	c.ManualOverrides = append(LevelSet(nil), t.ManualOverrides...)
	return &c
}

// Reference is the price hit math is relative to.
func (t *Trade) Reference() decimal.Decimal {
	if t.LiveEntry.IsZero() {
		return t.OperatorEntry
	}
	return t.LiveEntry
}

func (t *Trade) IsTerminal() bool {
	return t.Status == StatusClosed || t.Status == StatusCompleted
}

// Reconcile copies the fields the database owns.
func (t *Trade) Reconcile(stored *Trade) {
	t.Status = stored.Status
	t.TPHits = append(LevelSet(nil), stored.TPHits...)
	t.BreakevenActive = stored.BreakevenActive
	t.ManualOverrides = append(LevelSet(nil), stored.ManualOverrides...)
}

// CheckInvariants reports the first violated model invariant, if any.
func (t *Trade) CheckInvariants() error {
	for i, lvl := range t.TPHits {
		if i >= len(TakeProfits) || TakeProfits[i] != lvl {
			return fmt.Errorf("tp_hits %q is not a prefix of TP1,TP2,TP3", t.TPHits)
		}
	}
	if t.TPHits.Has(LevelTP2) && !t.BreakevenActive {
		return fmt.Errorf("TP2 recorded without breakeven_active")
	}
	if t.Status == StatusPendingEntry && t.EntryType != EntryLimit {
		return fmt.Errorf("pending_entry on a %s order", t.EntryType)
	}
	return nil
}
