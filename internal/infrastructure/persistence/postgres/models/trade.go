// internal/infrastructure/persistence/postgres/models/trade.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
)

// Trade - row of active_trades
type Trade struct {
	ChatID    int64  `db:"chat_id"`
	MessageID int64  `db:"message_id"`
	Pair      string `db:"pair"`
	Action    string `db:"action"`
	EntryType string `db:"entry_type"`
	Status    string `db:"status"`

	OperatorEntry decimal.Decimal `db:"operator_entry"`
	OperatorTP1   decimal.Decimal `db:"operator_tp1"`
	OperatorTP2   decimal.Decimal `db:"operator_tp2"`
	OperatorTP3   decimal.Decimal `db:"operator_tp3"`
	OperatorSL    decimal.Decimal `db:"operator_sl"`

	LiveEntry decimal.Decimal `db:"live_entry"`
	TP1       decimal.Decimal `db:"tp1"`
	TP2       decimal.Decimal `db:"tp2"`
	TP3       decimal.Decimal `db:"tp3"`
	SL        decimal.Decimal `db:"sl"`

	TPHits             string `db:"tp_hits"`
	BreakevenActive    bool   `db:"breakeven_active"`
	ManualOverrides    string `db:"manual_overrides"`
	AssignedAPI        string `db:"assigned_api"`
	ManualTrackingOnly bool   `db:"manual_tracking_only"`

	CreatedAt   time.Time `db:"created_at"`
	LastUpdated time.Time `db:"last_updated"`
}

// CompletedTrade - row of completed_trades
type CompletedTrade struct {
	Trade
	CompletionReason string              `db:"completion_reason"`
	CompletedAt      time.Time           `db:"completed_at"`
	FinalPrice       decimal.NullDecimal `db:"final_price"`
	DeletionVerified bool                `db:"deletion_verified"`
}

// TradeColumns is the column list shared by both trade tables.
const TradeColumns = `chat_id, message_id, pair, action, entry_type, status,
	operator_entry, operator_tp1, operator_tp2, operator_tp3, operator_sl,
	live_entry, tp1, tp2, tp3, sl,
	tp_hits, breakeven_active, manual_overrides, assigned_api, manual_tracking_only,
	created_at, last_updated`

// TradeValues is TradeColumns as named parameters.
const TradeValues = `:chat_id, :message_id, :pair, :action, :entry_type, :status,
	:operator_entry, :operator_tp1, :operator_tp2, :operator_tp3, :operator_sl,
	:live_entry, :tp1, :tp2, :tp3, :sl,
	:tp_hits, :breakeven_active, :manual_overrides, :assigned_api, :manual_tracking_only,
	:created_at, :last_updated`

// NewTrade converts a domain trade to its row.
func NewTrade(t *trades.Trade) Trade {
	return Trade{
		ChatID:             t.ChatID,
		MessageID:          t.MessageID,
		Pair:               t.Pair,
		Action:             string(t.Action),
		EntryType:          string(t.EntryType),
		Status:             string(t.Status),
		OperatorEntry:      t.OperatorEntry,
		OperatorTP1:        t.OperatorLevels.TP1,
		OperatorTP2:        t.OperatorLevels.TP2,
		OperatorTP3:        t.OperatorLevels.TP3,
		OperatorSL:         t.OperatorLevels.SL,
		LiveEntry:          t.LiveEntry,
		TP1:                t.Levels.TP1,
		TP2:                t.Levels.TP2,
		TP3:                t.Levels.TP3,
		SL:                 t.Levels.SL,
		TPHits:             t.TPHits.String(),
		BreakevenActive:    t.BreakevenActive,
		ManualOverrides:    t.ManualOverrides.String(),
		AssignedAPI:        t.AssignedAPI,
		ManualTrackingOnly: t.ManualTrackingOnly,
		CreatedAt:          Stamp(t.CreatedAt),
		LastUpdated:        Stamp(t.LastUpdated),
	}
}

// ToDomain converts the row back to a domain trade.
func (r *Trade) ToDomain() *trades.Trade {
	return &trades.Trade{
		Key:           trades.Key{ChatID: r.ChatID, MessageID: r.MessageID},
		Pair:          r.Pair,
		Action:        trades.Action(r.Action),
		EntryType:     trades.EntryType(r.EntryType),
		Status:        trades.Status(r.Status),
		OperatorEntry: r.OperatorEntry,
		OperatorLevels: trades.Levels{
			TP1: r.OperatorTP1, TP2: r.OperatorTP2, TP3: r.OperatorTP3, SL: r.OperatorSL,
		},
		LiveEntry: r.LiveEntry,
		Levels: trades.Levels{
			TP1: r.TP1, TP2: r.TP2, TP3: r.TP3, SL: r.SL,
		},
		TPHits:             trades.ParseLevelSet(r.TPHits),
		BreakevenActive:    r.BreakevenActive,
		ManualOverrides:    trades.ParseLevelSet(r.ManualOverrides),
		AssignedAPI:        r.AssignedAPI,
		ManualTrackingOnly: r.ManualTrackingOnly,
		CreatedAt:          r.CreatedAt,
		LastUpdated:        r.LastUpdated,
	}
}

// Stamp normalizes a time for storage: UTC, whole seconds.
// Keeps TIMESTAMP text on SQLite lexically comparable.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
